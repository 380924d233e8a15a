package lockout

import (
	"context"
	"sync"
	"time"
)

type episodeCount struct {
	n       int
	touched time.Time
}

// MemoryStore is a process-local [Store] guarded by a single mutex.
type MemoryStore struct {
	mu       sync.Mutex
	config   Config
	attempts map[string][]time.Time
	until    map[string]time.Time
	counts   map[string]episodeCount
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore. now overrides the clock; pass nil
// for time.Now.
func NewMemoryStore(cfg Config, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		config:   cfg,
		attempts: make(map[string][]time.Time),
		until:    make(map[string]time.Time),
		counts:   make(map[string]episodeCount),
		now:      now,
	}
}

// Status implements [Store].
func (s *MemoryStore) Status(_ context.Context, id string) (Status, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.until[id]
	if !ok {
		return Status{}, nil
	}
	if remaining := until.Sub(now); remaining > 0 {
		return Status{Locked: true, Remaining: remaining}, nil
	}
	delete(s.until, id)
	return Status{}, nil
}

// RecordFailure implements [Store].
func (s *MemoryStore) RecordFailure(_ context.Context, id string) (Attempt, error) {
	now := s.now()
	cutoff := now.Add(-s.config.Window)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.attempts[id][:0]
	for _, ts := range s.attempts[id] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)

	if len(kept) >= s.config.MaxAttempts {
		count := s.episodes(id, now)
		s.until[id] = now.Add(s.config.Duration(count))
		s.counts[id] = episodeCount{n: count + 1, touched: now}
		delete(s.attempts, id)
		return Attempt{LockedNow: true}, nil
	}

	s.attempts[id] = kept
	return Attempt{Remaining: s.config.MaxAttempts - len(kept)}, nil
}

// ClearAttempts implements [Store].
func (s *MemoryStore) ClearAttempts(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.attempts, id)
	s.mu.Unlock()
	return nil
}

// episodes returns the live episode count for id, expiring stale counters.
// Callers must hold s.mu.
func (s *MemoryStore) episodes(id string, now time.Time) int {
	c, ok := s.counts[id]
	if !ok {
		return 0
	}
	if s.config.CountTTL > 0 && now.Sub(c.touched) >= s.config.CountTTL {
		delete(s.counts, id)
		return 0
	}
	return c.n
}
