package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisStore(rdb, "sess:"), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0).UTC()
	rec := &Record{
		ID:           "abc123",
		UserID:       "u7",
		CreatedAt:    now,
		LastActivity: now,
		Fingerprint:  "deadbeefdeadbeef",
		CSRFToken:    "tok",
		Values:       map[string]string{"theme": "dark"},
	}
	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, "abc123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "abc123" || got.UserID != "u7" || got.Values["theme"] != "dark" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
}

func TestRedisStore_MissingKeyIsNotFound(t *testing.T) {
	store, _ := newTestRedisStore(t)

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_TTLExpires(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	rec := &Record{ID: "short", CreatedAt: time.Now()}
	if err := store.Save(ctx, rec, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if _, err := store.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after TTL = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_CorruptBlobReadsAsNotFound(t *testing.T) {
	store, mr := newTestRedisStore(t)

	mr.Set("sess:bad", "{not json")
	if _, err := store.Get(context.Background(), "bad"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get corrupt = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_UnreachableWrapsErrStoreUnavailable(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()

	if _, err := store.Get(context.Background(), "x"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Get = %v, want ErrStoreUnavailable", err)
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	rec := &Record{ID: "a", CreatedAt: time.Now(), Values: map[string]string{"k": "v"}}
	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's map after Save must not leak into the store.
	rec.Values["k"] = "mutated"

	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Values["k"] != "v" {
		t.Fatalf("stored value = %q, want isolation from caller mutation", got.Values["k"])
	}
}
