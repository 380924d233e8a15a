package counter

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local [Backend]. All keys share one mutex;
// critical sections are O(window size) slice scans bounded by the limit, so
// contention stays short.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore. now overrides the clock; pass nil
// for time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string][]time.Time),
		now:     now,
	}
}

// Evaluate implements [Backend].
func (s *MemoryStore) Evaluate(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := s.now()
	cutoff := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[key][:0]
	for _, ts := range s.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		s.entries[key] = kept
		res := Result{Allowed: false, Count: len(kept)}
		if len(kept) > 0 {
			res.Oldest = kept[0]
		}
		return res, nil
	}

	kept = append(kept, now)
	s.entries[key] = kept
	return Result{Allowed: true, Count: len(kept), Oldest: kept[0]}, nil
}

// Reset implements [Backend].
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Sweep removes keys whose entries have all aged out of window. The store is
// correct without it (pruning is lazy, per evaluation); Sweep only bounds
// memory for identifiers that stop sending traffic.
func (s *MemoryStore) Sweep(window time.Duration) {
	cutoff := s.now().Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entries := range s.entries {
		live := false
		for _, ts := range entries {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(s.entries, key)
		}
	}
}
