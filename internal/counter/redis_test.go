package counter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, clock *fakeClock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var now func() time.Time
	if clock != nil {
		now = clock.Now
	}
	return NewRedisStore(rdb, "rl:", now), mr
}

func TestRedisStore_AdmitsUpToLimit(t *testing.T) {
	store, _ := newRedisStore(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := store.Evaluate(ctx, "user_42", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, i+1, res.Count)
	}

	res, err := store.Evaluate(ctx, "user_42", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Count)
	assert.False(t, res.Oldest.IsZero())
}

func TestRedisStore_RejectionDoesNotMutate(t *testing.T) {
	store, mr := newRedisStore(t, nil)
	ctx := context.Background()

	_, err := store.Evaluate(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		res, err := store.Evaluate(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	}

	members, err := mr.ZMembers("rl:k")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestRedisStore_WindowSlides(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store, _ := newRedisStore(t, clock)
	ctx := context.Background()

	res, err := store.Evaluate(ctx, "k", 1, 2*time.Minute)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = store.Evaluate(ctx, "k", 1, 2*time.Minute)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	clock.Advance(2*time.Minute + time.Second)
	res, err = store.Evaluate(ctx, "k", 1, 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Count)
}

func TestRedisStore_SameMillisecondEventsStayDistinct(t *testing.T) {
	// A frozen clock forces every member onto the same score; the sequence
	// suffix must keep them from collapsing into one set member.
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store, mr := newRedisStore(t, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := store.Evaluate(ctx, "k", 5, time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		assert.Equal(t, i+1, res.Count)
	}

	members, err := mr.ZMembers("rl:k")
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestRedisStore_ConcurrentCallersAdmitExactlyLimit(t *testing.T) {
	store, _ := newRedisStore(t, nil)
	ctx := context.Background()

	const workers = 32
	const limit = 5

	var admitted atomic.Int64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := store.Evaluate(ctx, "contended", limit, time.Minute)
			if err != nil {
				t.Error(err)
				return
			}
			if res.Allowed {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())
}

func TestRedisStore_UnreachableBackendWrapsErrUnavailable(t *testing.T) {
	store, mr := newRedisStore(t, nil)
	mr.Close()

	_, err := store.Evaluate(context.Background(), "k", 5, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}
