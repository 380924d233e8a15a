package gatekeep

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newLocalGate builds a Gate on in-memory stores with a controllable clock.
func newLocalGate(t *testing.T, cfg Config) (*Gate, *testClock) {
	t.Helper()

	clock := newTestClock()
	gate, err := New().WithConfig(cfg).WithClock(clock.Now).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(gate.Close)
	return gate, clock
}

// newRedisGate builds a Gate against miniredis.
func newRedisGate(t *testing.T, cfg Config) (*Gate, *miniredis.Miniredis, *testClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newTestClock()
	gate, err := New().WithConfig(cfg).WithRedis(rdb).WithClock(clock.Now).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(gate.Close)

	if !gate.RemoteBacked() {
		t.Fatal("expected remote-backed gate")
	}
	return gate, mr, clock
}
