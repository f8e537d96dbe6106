package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/sleep-weather-logger/internal/sleeplog"
)

// Capturer records the current night for a postal code.
type Capturer interface {
	Capture(ctx context.Context, postalCode string) (sleeplog.Record, error)
}

// Scheduler captures one postal code's night on a cron schedule.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	capturer   Capturer
	postalCode string
	schedule   string
	timeout    time.Duration
	logger     *zap.Logger
}

// New creates a new Scheduler. Schedules are evaluated in UTC.
func New(postalCode, schedule string, capturer Capturer, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler:  s,
		capturer:   capturer,
		postalCode: postalCode,
		schedule:   schedule,
		timeout:    60 * time.Second,
		logger:     logger,
	}
}

// Start schedules the capture job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.postalCode == "" {
		s.logger.Info("scheduler: no capture postal code configured; nothing to schedule")
		return nil
	}

	if _, err := s.scheduler.Cron(s.schedule).Do(s.runCapture); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler: nightly capture scheduled",
		zap.String("postal_code", s.postalCode),
		zap.String("schedule", s.schedule))
	return nil
}

func (s *Scheduler) runCapture() {
	s.logger.Info("scheduler: running nightly capture", zap.String("postal_code", s.postalCode))

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rec, err := s.capturer.Capture(ctx, s.postalCode)
	if err != nil {
		s.logger.Error("scheduler: capture failed", zap.String("postal_code", s.postalCode), zap.Error(err))
		return
	}
	s.logger.Info("scheduler: capture completed", zap.String("id", rec.ID), zap.String("date", rec.Date))
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
