package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/i474232898/sleep-weather-logger/internal/sleeplog"
)

var (
	// ErrNotFound is returned when the record log is empty.
	ErrNotFound = errors.New("no records logged")
)

// Store is an append-only log of night records.
type Store interface {
	Append(ctx context.Context, rec sleeplog.Record) error
	List(ctx context.Context) ([]sleeplog.Record, error)
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendCSV    Backend = "csv"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Config selects and parameterises a backend.
type Config struct {
	Backend    Backend
	CSVPath    string
	SQLitePath string
	MaxHistory int // memory backend only; <= 0 is unlimited
}

// Open creates the configured backend.
func Open(cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case BackendCSV, "":
		return NewCSVStore(cfg.CSVPath)
	case BackendSQLite:
		return OpenSQLite(cfg.SQLitePath, logger)
	case BackendMemory:
		return NewMemoryStore(cfg.MaxHistory), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
