package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marcelsud/webhook-engine/idempotency"
)

/* Store is an in-process implementation of idempotency.Store
 * Suitable for single-node deployments and tests; multi-instance
 * deployments need the Redis store so all instances share claims
 */
type Store struct {
	mu      sync.Mutex
	records map[string]idempotency.Record
	now     func() time.Time
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock creates a store with an injected clock, used by
// tests to control record expiry
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		records: make(map[string]idempotency.Record),
		now:     now,
	}
}

// InsertIfAbsent inserts rec only if no live record exists under key
func (s *Store) InsertIfAbsent(_ context.Context, key string, rec idempotency.Record, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[key]; ok && existing.ExpiresAt.After(s.now()) {
		return false, nil
	}

	s.records[key] = rec
	return true, nil
}

// Get returns the live record for key; expired records count as absent
func (s *Store) Get(_ context.Context, key string) (idempotency.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return idempotency.Record{}, false, nil
	}
	if !rec.ExpiresAt.After(s.now()) {
		delete(s.records, key)
		return idempotency.Record{}, false, nil
	}

	return rec, true, nil
}

// Update overwrites the record for key
func (s *Store) Update(_ context.Context, key string, rec idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = rec
	return nil
}
