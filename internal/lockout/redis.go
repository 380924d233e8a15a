package lockout

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// recordFailureScript appends a failure, prunes the window, and — at the
// threshold — computes the progressive duration from the episode counter,
// sets the lockout key, bumps the counter, and clears the window, all in one
// atomic invocation.
const recordFailureScript = `
local attempts = KEYS[1]
local lock = KEYS[2]
local countkey = KEYS[3]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]
local base = tonumber(ARGV[5])
local maxdur = tonumber(ARGV[6])
local countttl = tonumber(ARGV[7])
local progressive = tonumber(ARGV[8])

redis.call("ZADD", attempts, now, member)
redis.call("ZREMRANGEBYSCORE", attempts, "-inf", now - window)
local n = redis.call("ZCARD", attempts)
redis.call("PEXPIRE", attempts, window)

if n >= max then
  local dur = base
  if progressive == 1 then
    local c = tonumber(redis.call("GET", countkey) or "0")
    dur = math.floor(base * 2 ^ c)
    if dur > maxdur then
      dur = maxdur
    end
  end
  redis.call("SET", lock, now + dur, "PX", dur)
  redis.call("INCR", countkey)
  redis.call("PEXPIRE", countkey, countttl)
  redis.call("DEL", attempts)
  return {1, 0}
end

return {0, max - n}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// RedisStore is a [Store] shared across processes. Key layout per id:
// <prefix><id>:attempts (ZSET), <prefix><id>:lockout (PX string),
// <prefix><id>:count (counter with CountTTL).
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	config Config
	seq    atomic.Uint64
	now    func() time.Time
}

// NewRedisStore creates a RedisStore. now overrides the clock; pass nil for
// time.Now.
func NewRedisStore(client redis.UniversalClient, prefix string, cfg Config, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		config: cfg,
		now:    now,
	}
}

// Status implements [Store]. The lockout key's TTL is the remaining time.
func (s *RedisStore) Status(ctx context.Context, id string) (Status, error) {
	remaining, err := s.redis.PTTL(ctx, s.prefix+id+":lockout").Result()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if remaining <= 0 {
		return Status{}, nil
	}
	return Status{Locked: true, Remaining: remaining}, nil
}

// RecordFailure implements [Store].
func (s *RedisStore) RecordFailure(ctx context.Context, id string) (Attempt, error) {
	nowMs := s.now().UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + strconv.FormatUint(s.seq.Add(1), 10)

	progressive := 0
	if s.config.Progressive {
		progressive = 1
	}

	keys := []string{
		s.prefix + id + ":attempts",
		s.prefix + id + ":lockout",
		s.prefix + id + ":count",
	}
	raw, err := recordFailureLua.Run(ctx, s.redis, keys,
		nowMs,
		s.config.Window.Milliseconds(),
		s.config.MaxAttempts,
		member,
		s.config.BaseDuration.Milliseconds(),
		s.config.MaxDuration.Milliseconds(),
		s.config.CountTTL.Milliseconds(),
		progressive,
	).Slice()
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(raw) != 2 {
		return Attempt{}, fmt.Errorf("%w: unexpected script reply of length %d", ErrUnavailable, len(raw))
	}

	locked, ok1 := raw[0].(int64)
	remaining, ok2 := raw[1].(int64)
	if !ok1 || !ok2 {
		return Attempt{}, fmt.Errorf("%w: unexpected script reply types", ErrUnavailable)
	}

	return Attempt{LockedNow: locked == 1, Remaining: int(remaining)}, nil
}

// ClearAttempts implements [Store].
func (s *RedisStore) ClearAttempts(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.prefix+id+":attempts").Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
