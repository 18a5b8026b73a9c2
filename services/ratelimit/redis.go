package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The counter is only incremented when the request is admitted, so a key never
// holds more than the ceiling. Expiry is left to the key TTL.
var fixedWindowScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if current >= limit then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    redis.call("PEXPIRE", KEYS[1], window)
    ttl = window
  end
  return {0, current, ttl}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], window)
end
return {1, current, redis.call("PTTL", KEYS[1])}
`)

var ErrUnexpectedReply = errors.New("ratelimit: unexpected redis reply")

// RedisLimiter shares windows between server instances through Redis. Window
// boundaries follow the Redis server clock; now is only used to report ResetAt.
type RedisLimiter struct {
	Client  redis.Scripter
	Prefix  string
	Timeout time.Duration

	cfg Config
}

func NewRedis(client redis.Scripter, cfg Config) *RedisLimiter {
	return &RedisLimiter{
		Client:  client,
		Prefix:  "saathi:rl:",
		Timeout: 250 * time.Millisecond,
		cfg:     cfg.withDefaults(),
	}
}

func (l *RedisLimiter) Config() Config {
	return l.cfg
}

func (l *RedisLimiter) Admit(ctx context.Context, key string, now time.Time) (Decision, error) {
	if l.Client == nil {
		return Decision{}, errors.New("ratelimit: redis client not initialized")
	}
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	res, err := fixedWindowScript.Run(ctx, l.Client, []string{l.Prefix + key},
		l.cfg.MaxRequests, l.cfg.Window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis admit %q: %w", key, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		return Decision{}, ErrUnexpectedReply
	}
	admitted, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	ttlMs, _ := vals[2].(int64)
	if ttlMs < 0 {
		ttlMs = l.cfg.Window.Milliseconds()
	}

	resetAt := now.Add(time.Duration(ttlMs) * time.Millisecond)
	start := resetAt.Add(-l.cfg.Window)
	if admitted == 1 {
		return allow(l.cfg, int(count), start), nil
	}
	return deny(l.cfg, int(count), start, now), nil
}
