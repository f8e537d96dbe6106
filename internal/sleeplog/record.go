package sleeplog

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/sleep-weather-logger/internal/weather"
)

// Source records how a record came to be written.
type Source string

const (
	SourceLive       Source = "live"
	SourceHistorical Source = "historical"
	SourceScheduled  Source = "scheduled"
)

// SourceFor maps a pipeline path to the record source used for user-submitted records.
func SourceFor(p weather.Path) Source {
	if p == weather.PathHistorical {
		return SourceHistorical
	}
	return SourceLive
}

// Record is one persisted night: weather averages plus an optional journal entry.
// Scheduled captures carry no entry.
type Record struct {
	ID        string                  `json:"id"`
	Date      string                  `json:"date"`
	Lat       float64                 `json:"lat"`
	Lon       float64                 `json:"lon"`
	Entry     *Entry                  `json:"entry,omitempty"`
	Weather   weather.AggregateRecord `json:"weather"`
	Source    Source                  `json:"source"`
	CreatedAt time.Time               `json:"created_at"`
}

// NewRecord merges a pipeline result with an entry.
func NewRecord(res weather.NightResult, entry *Entry, source Source, now time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		Date:      res.Date,
		Lat:       res.Coordinates.Lat,
		Lon:       res.Coordinates.Lon,
		Entry:     entry,
		Weather:   res.Aggregate,
		Source:    source,
		CreatedAt: now.UTC(),
	}
}

// Columns is the flat layout used by the CSV log.
var Columns = []string{
	"date", "lat", "lon",
	"stress_level", "caffeine_cups", "alcohol_before_bed", "screen_time_before_bed",
	"physical_activity", "medication_usage", "dinner_time", "satiety_level", "sleep_quality",
	"avg_temp_C", "avg_humidity_percent", "avg_pressure_Pa", "avg_wind_mps",
	"id", "source", "created_at",
}

// Row flattens the record in Columns order. Missing values are empty cells.
func (r Record) Row() []string {
	row := make([]string, 0, len(Columns))
	row = append(row, r.Date, formatFloat(r.Lat), formatFloat(r.Lon))

	if e := r.Entry; e != nil {
		row = append(row,
			strconv.Itoa(e.StressLevel),
			strconv.Itoa(e.CaffeineCups),
			e.AlcoholBeforeBed,
			e.ScreenTimeBeforeBed,
			e.PhysicalActivity,
			e.MedicationUsage,
			e.DinnerTime,
			e.SatietyLevel,
			strconv.Itoa(e.SleepQuality),
		)
	} else {
		row = append(row, "", "", "", "", "", "", "", "", "")
	}

	w := r.Weather
	row = append(row,
		formatOptional(w.AvgTempC),
		formatOptional(w.AvgHumidityPercent),
		formatOptional(w.AvgPressurePa),
		formatOptional(w.AvgWindMps),
		r.ID,
		string(r.Source),
	)
	if r.CreatedAt.IsZero() {
		row = append(row, "")
	} else {
		row = append(row, r.CreatedAt.UTC().Format(time.RFC3339))
	}
	return row
}

// ParseRow is the inverse of Row. Rows written before the id, source and
// created_at columns existed are accepted with those fields left empty.
func ParseRow(row []string) (Record, error) {
	if len(row) < 16 || len(row) > len(Columns) {
		return Record{}, fmt.Errorf("expected %d columns, got %d", len(Columns), len(row))
	}
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	var (
		rec Record
		err error
	)
	rec.Date = row[0]
	if rec.Lat, err = strconv.ParseFloat(row[1], 64); err != nil {
		return Record{}, fmt.Errorf("lat: %w", err)
	}
	if rec.Lon, err = strconv.ParseFloat(row[2], 64); err != nil {
		return Record{}, fmt.Errorf("lon: %w", err)
	}

	if row[3] != "" {
		e := &Entry{
			AlcoholBeforeBed:    row[5],
			ScreenTimeBeforeBed: row[6],
			PhysicalActivity:    row[7],
			MedicationUsage:     row[8],
			DinnerTime:          row[9],
			SatietyLevel:        row[10],
		}
		if e.StressLevel, err = strconv.Atoi(row[3]); err != nil {
			return Record{}, fmt.Errorf("stress_level: %w", err)
		}
		if e.CaffeineCups, err = strconv.Atoi(row[4]); err != nil {
			return Record{}, fmt.Errorf("caffeine_cups: %w", err)
		}
		if e.SleepQuality, err = strconv.Atoi(row[11]); err != nil {
			return Record{}, fmt.Errorf("sleep_quality: %w", err)
		}
		rec.Entry = e
	}

	targets := []**float64{&rec.Weather.AvgTempC, &rec.Weather.AvgHumidityPercent, &rec.Weather.AvgPressurePa, &rec.Weather.AvgWindMps}
	for i, dst := range targets {
		v, err := parseOptional(row[12+i])
		if err != nil {
			return Record{}, fmt.Errorf("%s: %w", Columns[12+i], err)
		}
		*dst = v
	}

	rec.ID = cell(16)
	rec.Source = Source(cell(17))
	if ts := cell(18); ts != "" {
		if rec.CreatedAt, err = time.Parse(time.RFC3339, ts); err != nil {
			return Record{}, fmt.Errorf("created_at: %w", err)
		}
	}
	return rec, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func parseOptional(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
