package store

import (
	"context"
	"sync"

	"github.com/i474232898/sleep-weather-logger/internal/sleeplog"
)

// MemoryStore is a concurrency-safe in-memory record log.
type MemoryStore struct {
	mu sync.RWMutex

	records []sleeplog.Record

	// retention configuration
	maxHistory int // max number of records kept
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{maxHistory: maxHistory}
}

// Append adds a record and enforces retention.
func (s *MemoryStore) Append(ctx context.Context, rec sleeplog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.records) > s.maxHistory {
		over := len(s.records) - s.maxHistory
		s.records = s.records[over:]
	}
	return nil
}

// List returns a copy of all retained records, oldest first.
func (s *MemoryStore) List(ctx context.Context) ([]sleeplog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, ErrNotFound
	}
	out := make([]sleeplog.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
