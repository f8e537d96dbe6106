package sleeplog

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/sleep-weather-logger/internal/weather"
)

func f(v float64) *float64 { return &v }

func validEntry() Entry {
	return Entry{
		StressLevel:         3,
		CaffeineCups:        2,
		AlcoholBeforeBed:    "no",
		ScreenTimeBeforeBed: "yes",
		PhysicalActivity:    "yes",
		MedicationUsage:     "no",
		DinnerTime:          "19:30",
		SatietyLevel:        "moderate",
		SleepQuality:        4,
	}
}

func nightResult(path weather.Path) weather.NightResult {
	return weather.NightResult{
		PostalCode:  "10001",
		Coordinates: weather.Coordinates{Lat: 40.7484, Lon: -73.9967},
		Date:        "2024-05-01",
		Path:        path,
		Aggregate: weather.AggregateRecord{
			AvgTempC:           f(13),
			AvgHumidityPercent: f(55.5),
			AvgWindMps:         f(2.25),
		},
	}
}

func TestEntryValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Entry)
		ok     bool
	}{
		{"valid", func(e *Entry) {}, true},
		{"blank dinner time", func(e *Entry) { e.DinnerTime = "" }, true},
		{"zero caffeine", func(e *Entry) { e.CaffeineCups = 0 }, true},
		{"stress too low", func(e *Entry) { e.StressLevel = 0 }, false},
		{"stress too high", func(e *Entry) { e.StressLevel = 6 }, false},
		{"caffeine too high", func(e *Entry) { e.CaffeineCups = 11 }, false},
		{"alcohol not yes/no", func(e *Entry) { e.AlcoholBeforeBed = "maybe" }, false},
		{"bad dinner time", func(e *Entry) { e.DinnerTime = "7pm" }, false},
		{"bad satiety", func(e *Entry) { e.SatietyLevel = "stuffed" }, false},
		{"quality too high", func(e *Entry) { e.SleepQuality = 9 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEntry()
			tt.mutate(&e)
			err := e.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidEntry) {
				t.Fatalf("expected ErrInvalidEntry, got %v", err)
			}
		})
	}
}

func TestEntryValidateField(t *testing.T) {
	// Only the named field is checked; the rest of the entry is still blank.
	e := Entry{SleepQuality: 4}
	if err := e.ValidateField("SleepQuality"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e.SleepQuality = 0
	if err := e.ValidateField("SleepQuality"); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if err := e.ValidateField("DinnerTime"); err != nil {
		t.Fatalf("blank dinner time should pass, got %v", err)
	}
}

func TestEntryNormalize(t *testing.T) {
	e := validEntry()
	e.AlcoholBeforeBed = " YES "
	e.SatietyLevel = "Full"
	e.DinnerTime = " 20:15 "
	e.Normalize()

	if e.AlcoholBeforeBed != "yes" || e.SatietyLevel != "full" || e.DinnerTime != "20:15" {
		t.Fatalf("unexpected normalized entry: %+v", e)
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("normalized entry should validate: %v", err)
	}
}

func TestRowRoundTrip(t *testing.T) {
	entry := validEntry()
	rec := NewRecord(nightResult(weather.PathLive), &entry, SourceLive, time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC))

	row := rec.Row()
	if len(row) != len(Columns) {
		t.Fatalf("expected %d cells, got %d", len(Columns), len(row))
	}
	if row[14] != "" {
		t.Fatalf("expected empty pressure cell, got %q", row[14])
	}

	got, err := ParseRow(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}
}

func TestParseRowWithoutEntry(t *testing.T) {
	rec := NewRecord(nightResult(weather.PathLive), nil, SourceScheduled, time.Now())
	got, err := ParseRow(rec.Row())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Entry != nil {
		t.Fatalf("expected no entry, got %+v", got.Entry)
	}
	if got.Source != SourceScheduled {
		t.Fatalf("expected scheduled source, got %q", got.Source)
	}
}

func TestParseRowLegacyLayout(t *testing.T) {
	row := []string{"2024-05-01", "40.75", "-73.99", "2", "1", "no", "no", "yes", "no", "18:00", "mild", "5", "12.5", "", "101325", "3.1"}
	got, err := ParseRow(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "" || got.Source != "" || !got.CreatedAt.IsZero() {
		t.Fatalf("expected empty trailing fields, got %+v", got)
	}
	if got.Weather.AvgHumidityPercent != nil || *got.Weather.AvgPressurePa != 101325 {
		t.Fatalf("unexpected weather: %+v", got.Weather)
	}
}

func TestParseRowRejectsShortRows(t *testing.T) {
	if _, err := ParseRow([]string{"2024-05-01", "1"}); err == nil {
		t.Fatalf("expected error for short row")
	}
}

type fakeNight struct {
	res   weather.NightResult
	err   error
	calls int
	req   weather.NightRequest
}

func (n *fakeNight) GetNightAggregate(ctx context.Context, req weather.NightRequest) (weather.NightResult, error) {
	n.calls++
	n.req = req
	return n.res, n.err
}

type memAppender struct {
	mu   sync.Mutex
	recs []Record
	err  error
}

func (m *memAppender) Append(ctx context.Context, rec Record) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

type fakePublisher struct {
	published []Record
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, rec Record) error {
	p.published = append(p.published, rec)
	return p.err
}

type countingObserver struct {
	sources []string
}

func (o *countingObserver) RecordAppended(source string) {
	o.sources = append(o.sources, source)
}

func TestJournalLog(t *testing.T) {
	night := &fakeNight{res: nightResult(weather.PathHistorical)}
	store := &memAppender{}
	pub := &fakePublisher{err: errors.New("broker down")}
	obs := &countingObserver{}

	j := NewJournal(night, store, WithPublisher(pub), WithAppendObserver(obs))
	date, _ := weather.ParseDate("2024-05-01")
	rec, err := j.Log(context.Background(), weather.NightRequest{PostalCode: "10001", Date: date}, validEntry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Source != SourceHistorical || rec.Entry == nil || rec.ID == "" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(store.recs) != 1 || store.recs[0].ID != rec.ID {
		t.Fatalf("expected record to be appended once")
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected publish attempt despite failure")
	}
	if !reflect.DeepEqual(obs.sources, []string{"historical"}) {
		t.Fatalf("unexpected observed sources: %v", obs.sources)
	}
}

func TestJournalLogRejectsInvalidEntryBeforeFetching(t *testing.T) {
	night := &fakeNight{res: nightResult(weather.PathLive)}
	store := &memAppender{}
	j := NewJournal(night, store)

	e := validEntry()
	e.SleepQuality = 0
	_, err := j.Log(context.Background(), weather.NightRequest{PostalCode: "10001"}, e)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if night.calls != 0 || len(store.recs) != 0 {
		t.Fatalf("invalid entry must not reach the pipeline or the store")
	}
}

func TestJournalPipelineErrorPassesThrough(t *testing.T) {
	night := &fakeNight{err: weather.ErrNoStationsNearby}
	store := &memAppender{}
	j := NewJournal(night, store)

	_, err := j.Log(context.Background(), weather.NightRequest{PostalCode: "10001"}, validEntry())
	if !errors.Is(err, weather.ErrNoStationsNearby) {
		t.Fatalf("expected ErrNoStationsNearby, got %v", err)
	}
	if len(store.recs) != 0 {
		t.Fatalf("nothing should be appended on failure")
	}
}

func TestJournalCapture(t *testing.T) {
	night := &fakeNight{res: nightResult(weather.PathLive)}
	store := &memAppender{}
	now := time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC)
	j := NewJournal(night, store, WithClock(func() time.Time { return now }))

	rec, err := j.Capture(context.Background(), "10001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Source != SourceScheduled || rec.Entry != nil || !rec.CreatedAt.Equal(now) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !night.req.Date.IsZero() {
		t.Fatalf("capture must use the live path")
	}
}

func TestJournalEmptyNight(t *testing.T) {
	night := &fakeNight{res: weather.NightResult{Date: "2024-05-01"}}
	store := &memAppender{}
	j := NewJournal(night, store)

	_, err := j.Capture(context.Background(), "10001")
	if !errors.Is(err, ErrNoNightData) {
		t.Fatalf("expected ErrNoNightData, got %v", err)
	}
	if len(store.recs) != 0 {
		t.Fatalf("nothing should be appended for an empty night")
	}
}

func TestJournalAppendFailure(t *testing.T) {
	night := &fakeNight{res: nightResult(weather.PathLive)}
	store := &memAppender{err: errors.New("disk full")}
	pub := &fakePublisher{}
	j := NewJournal(night, store, WithPublisher(pub))

	if _, err := j.Capture(context.Background(), "10001"); err == nil {
		t.Fatalf("expected append error")
	}
	if len(pub.published) != 0 {
		t.Fatalf("failed appends must not be published")
	}
}
