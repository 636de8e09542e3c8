package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login throttle tuning parameters.
type Config struct {
	Prefix      string
	MaxAttempts int
	Window      time.Duration
	PerIP       bool
}

// Limiter enforces per-identifier and optional per-IP attempt budgets
// using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// reserveScript counts one attempt against every key and returns the
// highest resulting count. The window starts on the first hit.
const reserveScript = `
local highest = 0
for _, key in ipairs(KEYS) do
  local n = redis.call("INCR", key)
  if n == 1 then
    redis.call("PEXPIRE", key, ARGV[1])
  end
  if n > highest then
    highest = n
  end
end
return highest
`

var reserveLua = redis.NewScript(reserveScript)

// releaseScript clears the identifier counter and hands the attempt back
// to the address counter.
const releaseScript = `
redis.call("DEL", KEYS[1])
if KEYS[2] then
  local n = tonumber(redis.call("GET", KEYS[2]) or "0")
  if n > 1 then
    redis.call("DECR", KEYS[2])
  elseif n == 1 then
    redis.call("DEL", KEYS[2])
  end
end
return 1
`

var releaseLua = redis.NewScript(releaseScript)

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "login"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Reserve atomically counts one attempt for identifier (and, with PerIP,
// the address). It returns [ErrRateLimited] when the attempt exceeds
// MaxAttempts in the current window. Callers reserve before verifying
// credentials, so concurrent attempts cannot overrun the budget.
func (l *Limiter) Reserve(ctx context.Context, identifier, ip string) error {
	count, err := reserveLua.Run(ctx, l.redis, l.keys(identifier, ip), l.config.Window.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Release undoes a reservation after a successful login. The identifier
// counter is cleared; the address counter only gives back this attempt so
// one valid account cannot launder failures from an address.
func (l *Limiter) Release(ctx context.Context, identifier, ip string) error {
	if err := releaseLua.Run(ctx, l.redis, l.keys(identifier, ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current attempt count for identifier. Missing keys
// return zero.
func (l *Limiter) Attempts(ctx context.Context, identifier string) (int, error) {
	count, err := l.redis.Get(ctx, l.userKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) keys(identifier, ip string) []string {
	keys := []string{l.userKey(identifier)}
	if l.config.PerIP && ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	return keys
}

func (l *Limiter) userKey(identifier string) string {
	return l.config.Prefix + ":u:" + strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + ":ip:" + ip
}
