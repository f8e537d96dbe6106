package sleeplog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/sleep-weather-logger/internal/weather"
)

// ErrNoNightData is returned when the night window held no usable readings.
var ErrNoNightData = errors.New("no nighttime weather data available")

// NightSource runs the night aggregation pipeline.
type NightSource interface {
	GetNightAggregate(ctx context.Context, req weather.NightRequest) (weather.NightResult, error)
}

// Appender persists records.
type Appender interface {
	Append(ctx context.Context, rec Record) error
}

// Publisher forwards appended records to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

// AppendObserver is told about every record that was appended.
type AppendObserver interface {
	RecordAppended(source string)
}

// Journal ties the pipeline to the record log.
type Journal struct {
	night     NightSource
	store     Appender
	publisher Publisher
	observer  AppendObserver
	logger    *zap.Logger
	now       func() time.Time
}

type JournalOption func(*Journal)

func WithPublisher(p Publisher) JournalOption {
	return func(j *Journal) { j.publisher = p }
}

func WithAppendObserver(o AppendObserver) JournalOption {
	return func(j *Journal) { j.observer = o }
}

func WithLogger(l *zap.Logger) JournalOption {
	return func(j *Journal) {
		if l != nil {
			j.logger = l
		}
	}
}

func WithClock(now func() time.Time) JournalOption {
	return func(j *Journal) {
		if now != nil {
			j.now = now
		}
	}
}

func NewJournal(night NightSource, store Appender, opts ...JournalOption) *Journal {
	j := &Journal{
		night:  night,
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Night runs the pipeline without recording anything.
func (j *Journal) Night(ctx context.Context, req weather.NightRequest) (weather.NightResult, error) {
	return j.night.GetNightAggregate(ctx, req)
}

// Log runs the pipeline for req and saves the result together with entry.
func (j *Journal) Log(ctx context.Context, req weather.NightRequest, entry Entry) (Record, error) {
	entry.Normalize()
	if err := entry.Validate(); err != nil {
		return Record{}, err
	}

	res, err := j.night.GetNightAggregate(ctx, req)
	if err != nil {
		return Record{}, err
	}
	return j.Save(ctx, res, &entry, SourceFor(res.Path))
}

// Capture records the current night for postalCode without a journal entry.
func (j *Journal) Capture(ctx context.Context, postalCode string) (Record, error) {
	res, err := j.night.GetNightAggregate(ctx, weather.NightRequest{PostalCode: postalCode})
	if err != nil {
		return Record{}, err
	}
	return j.Save(ctx, res, nil, SourceScheduled)
}

// Save validates entry when present, appends the merged record and publishes
// it. A publish failure is logged and does not fail the save.
func (j *Journal) Save(ctx context.Context, res weather.NightResult, entry *Entry, source Source) (Record, error) {
	if res.Aggregate.Empty() {
		return Record{}, ErrNoNightData
	}
	if entry != nil {
		entry.Normalize()
		if err := entry.Validate(); err != nil {
			return Record{}, err
		}
	}

	rec := NewRecord(res, entry, source, j.now())
	if err := j.store.Append(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("append record: %w", err)
	}
	if j.observer != nil {
		j.observer.RecordAppended(string(source))
	}

	j.logger.Info("record appended",
		zap.String("id", rec.ID),
		zap.String("date", rec.Date),
		zap.String("source", string(source)),
		zap.Bool("has_entry", entry != nil))

	if j.publisher != nil {
		if err := j.publisher.Publish(ctx, rec); err != nil {
			j.logger.Warn("record publish failed", zap.String("id", rec.ID), zap.Error(err))
		}
	}
	return rec, nil
}
