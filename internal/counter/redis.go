package counter

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// evaluateScript performs the whole prune/count/admit sequence server-side
// so that concurrent evaluations for one key are serialized by Redis. At or
// above the limit it returns without mutating state. Timestamps are
// millisecond scores; members carry a client sequence suffix so two events
// landing on the same millisecond stay distinct set members.
const evaluateScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)

if count >= limit then
  local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
  local score = 0
  if oldest[2] then
    score = tonumber(oldest[2])
  end
  return {0, count, score}
end

redis.call("ZADD", key, now, member)
redis.call("PEXPIRE", key, window)
count = count + 1

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local score = now
if oldest[2] then
  score = tonumber(oldest[2])
end
return {1, count, score}
`

var evaluateLua = redis.NewScript(evaluateScript)

// RedisStore is a [Backend] shared across processes through a Redis sorted
// set per key.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	seq    atomic.Uint64
	now    func() time.Time
}

// NewRedisStore creates a RedisStore. prefix namespaces every key; now
// overrides the clock (nil for time.Now).
func NewRedisStore(client redis.UniversalClient, prefix string, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		now:    now,
	}
}

// Evaluate implements [Backend].
func (s *RedisStore) Evaluate(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	nowMs := s.now().UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + strconv.FormatUint(s.seq.Add(1), 10)

	raw, err := evaluateLua.Run(ctx, s.redis, []string{s.prefix + key},
		nowMs, window.Milliseconds(), limit, member).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("%w: unexpected script reply of length %d", ErrUnavailable, len(raw))
	}

	allowed, ok1 := raw[0].(int64)
	count, ok2 := raw[1].(int64)
	oldestMs, ok3 := raw[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return Result{}, fmt.Errorf("%w: unexpected script reply types", ErrUnavailable)
	}

	res := Result{
		Allowed: allowed == 1,
		Count:   int(count),
	}
	if oldestMs > 0 {
		res.Oldest = time.UnixMilli(oldestMs)
	}
	return res, nil
}

// Reset implements [Backend].
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
