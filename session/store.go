package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no record exists for a session id.
var ErrNotFound = errors.New("session not found")

// ErrStoreUnavailable wraps backend connectivity failures.
var ErrStoreUnavailable = errors.New("session store unavailable")

const minTTL = time.Second

// Record is a server-side session keyed by an opaque identifier. Values
// holds application state; the remaining fields are integrity bookkeeping
// owned by [Manager].
type Record struct {
	ID           string            `json:"-"`
	UserID       string            `json:"user_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	Fingerprint  string            `json:"fingerprint,omitempty"`
	CSRFToken    string            `json:"csrf_token,omitempty"`
	Values       map[string]string `json:"values,omitempty"`
}

// Authenticated reports whether the record carries a logged-in user.
func (r *Record) Authenticated() bool {
	return r != nil && r.UserID != ""
}

// Store persists session records. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, rec *Record, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps JSON-encoded records under <prefix><id> with the record's
// remaining absolute lifetime as the key TTL.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore namespaced by prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		// Corrupt blob: treat as absent rather than failing the request.
		return nil, ErrNotFound
	}
	rec.ID = id
	return rec, nil
}

func (s *RedisStore) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	if ttl < minTTL {
		ttl = minTTL
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.prefix+rec.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// MemoryStore is a process-local [Store] for single-instance deployments and
// tests. Expiry is lazy.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore. now overrides the clock; pass nil
// for time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, id)
		return nil, ErrNotFound
	}

	rec := entry.rec
	if entry.rec.Values != nil {
		rec.Values = make(map[string]string, len(entry.rec.Values))
		for k, v := range entry.rec.Values {
			rec.Values[k] = v
		}
	}
	return &rec, nil
}

func (s *MemoryStore) Save(_ context.Context, rec *Record, ttl time.Duration) error {
	if ttl < minTTL {
		ttl = minTTL
	}

	stored := *rec
	if rec.Values != nil {
		stored.Values = make(map[string]string, len(rec.Values))
		for k, v := range rec.Values {
			stored.Values[k] = v
		}
	}

	s.mu.Lock()
	s.entries[rec.ID] = memoryEntry{rec: stored, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}
