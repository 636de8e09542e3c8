package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout under prefix P:
//
//	P:s:<hash>  HASH  d=encoded session, u=user id, e=expires (unix ms), a=last access (unix ms)
//	P:u:<user>  ZSET  member=<hash>, score=creation sequence
//	P:q:<user>  STRING creation sequence counter
//	P:x         ZSET  member=<hash>, score=expires (unix ms)
//
// Scripts touch session keys derived from the user index, so the backend
// requires a single Redis node (or a client that routes all keys to one).

const insertSessionScript = `
local session_prefix = ARGV[8]
local now = tonumber(ARGV[5])
local max = tonumber(ARGV[6])

local members = redis.call("ZRANGE", KEYS[2], 0, -1)
for _, m in ipairs(members) do
  local skey = session_prefix .. m
  local exp = tonumber(redis.call("HGET", skey, "e") or "0")
  if exp <= now then
    redis.call("DEL", skey)
    redis.call("ZREM", KEYS[2], m)
    redis.call("ZREM", KEYS[4], m)
  end
end

local evicted = 0
if max > 0 then
  while redis.call("ZCARD", KEYS[2]) >= max do
    local oldest = redis.call("ZRANGE", KEYS[2], 0, 0)[1]
    redis.call("DEL", session_prefix .. oldest)
    redis.call("ZREM", KEYS[2], oldest)
    redis.call("ZREM", KEYS[4], oldest)
    evicted = evicted + 1
  end
end

local seq = redis.call("INCR", KEYS[3])
redis.call("HSET", KEYS[1], "d", ARGV[2], "u", ARGV[3], "e", ARGV[4], "a", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[7])
redis.call("ZADD", KEYS[2], seq, ARGV[1])
redis.call("PEXPIRE", KEYS[2], ARGV[7])
redis.call("PEXPIRE", KEYS[3], ARGV[7])
redis.call("ZADD", KEYS[4], ARGV[4], ARGV[1])
return evicted
`

var insertSessionLua = redis.NewScript(insertSessionScript)

const lookupSessionScript = `
local vals = redis.call("HMGET", KEYS[1], "d", "u", "e")
if not vals[1] then
  return {0}
end
if tonumber(vals[3] or "0") <= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  redis.call("ZREM", KEYS[2], ARGV[1])
  if vals[2] then
    redis.call("ZREM", ARGV[3] .. vals[2], ARGV[1])
  end
  return {2}
end
redis.call("HSET", KEYS[1], "a", ARGV[2])
return {1, vals[1]}
`

var lookupSessionLua = redis.NewScript(lookupSessionScript)

const deleteSessionScript = `
local user = redis.call("HGET", KEYS[1], "u")
local existed = redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
if user then
  redis.call("ZREM", ARGV[2] .. user, ARGV[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

const deleteUserScript = `
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
local removed = 0
for _, m in ipairs(members) do
  removed = removed + redis.call("DEL", ARGV[1] .. m)
  redis.call("ZREM", KEYS[2], m)
end
redis.call("DEL", KEYS[1])
return removed
`

var deleteUserLua = redis.NewScript(deleteUserScript)

const sweepExpiredScript = `
local members = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
local removed = 0
for _, m in ipairs(members) do
  local skey = ARGV[3] .. m
  local user = redis.call("HGET", skey, "u")
  removed = removed + redis.call("DEL", skey)
  if user then
    redis.call("ZREM", ARGV[4] .. user, m)
  end
  redis.call("ZREM", KEYS[1], m)
end
return {#members, removed}
`

var sweepExpiredLua = redis.NewScript(sweepExpiredScript)

const (
	defaultRedisPrefix = "gk"
	defaultSweepBatch  = 500
)

// RedisBackend stores sessions in Redis. Each operation runs as one Lua
// script, so concurrent validators and creators are linearized by Redis.
type RedisBackend struct {
	redis      redis.UniversalClient
	prefix     string
	keyGrace   time.Duration
	sweepBatch int
}

// NewRedisBackend creates a [RedisBackend]. keyGrace is added to the Redis
// key TTL beyond the session expiry so that expiry is observed (and audited)
// by Lookup or the sweeper rather than by silent key eviction. It must be
// at least the sweep period for that to hold.
func NewRedisBackend(client redis.UniversalClient, prefix string, keyGrace time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if keyGrace < 0 {
		keyGrace = 0
	}
	return &RedisBackend{
		redis:      client,
		prefix:     prefix,
		keyGrace:   keyGrace,
		sweepBatch: defaultSweepBatch,
	}
}

func (r *RedisBackend) sessionPrefix() string { return r.prefix + ":s:" }
func (r *RedisBackend) userPrefix() string    { return r.prefix + ":u:" }

func (r *RedisBackend) sessionKey(member string) string {
	return r.sessionPrefix() + member
}

func (r *RedisBackend) userKey(userID string) string {
	return r.userPrefix() + userID
}

func (r *RedisBackend) seqKey(userID string) string {
	return r.prefix + ":q:" + userID
}

func (r *RedisBackend) expiryKey() string {
	return r.prefix + ":x"
}

// Insert implements [Backend].
//
//	Performance: 1 EVALSHA; O(sessions of the user).
func (r *RedisBackend) Insert(ctx context.Context, s *Session, maxPerUser int, now time.Time) (int, error) {
	data, err := Encode(s)
	if err != nil {
		return 0, err
	}
	member := hashHex(s.TokenHash)
	keyTTL := s.ExpiresAt.Sub(now) + r.keyGrace
	if keyTTL < time.Millisecond {
		keyTTL = time.Millisecond
	}

	evicted, err := insertSessionLua.Run(ctx, r.redis,
		[]string{r.sessionKey(member), r.userKey(s.UserID), r.seqKey(s.UserID), r.expiryKey()},
		member,
		data,
		s.UserID,
		s.ExpiresAt.UnixMilli(),
		now.UnixMilli(),
		maxPerUser,
		keyTTL.Milliseconds(),
		r.sessionPrefix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return evicted, nil
}

// Lookup implements [Backend].
//
//	Performance: 1 EVALSHA.
func (r *RedisBackend) Lookup(ctx context.Context, tokenHash [32]byte, now time.Time) (*Session, Status, error) {
	member := hashHex(tokenHash)
	res, err := lookupSessionLua.Run(ctx, r.redis,
		[]string{r.sessionKey(member), r.expiryKey()},
		member,
		now.UnixMilli(),
		r.userPrefix(),
	).Slice()
	if err != nil {
		return nil, StatusNotFound, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(res) == 0 {
		return nil, StatusNotFound, fmt.Errorf("%w: empty lookup reply", ErrStorageUnavailable)
	}

	code, ok := res[0].(int64)
	if !ok {
		return nil, StatusNotFound, fmt.Errorf("%w: unexpected lookup reply", ErrStorageUnavailable)
	}
	switch code {
	case 0:
		return nil, StatusNotFound, nil
	case 2:
		return nil, StatusExpired, nil
	}

	if len(res) < 2 {
		return nil, StatusNotFound, fmt.Errorf("%w: truncated lookup reply", ErrStorageUnavailable)
	}
	blob, ok := res[1].(string)
	if !ok {
		return nil, StatusNotFound, fmt.Errorf("%w: unexpected session payload", ErrStorageUnavailable)
	}
	sess, err := Decode([]byte(blob))
	if err != nil {
		return nil, StatusNotFound, err
	}
	sess.LastAccessedAt = now
	return sess, StatusActive, nil
}

// Delete implements [Backend].
func (r *RedisBackend) Delete(ctx context.Context, tokenHash [32]byte) error {
	member := hashHex(tokenHash)
	err := deleteSessionLua.Run(ctx, r.redis,
		[]string{r.sessionKey(member), r.expiryKey()},
		member,
		r.userPrefix(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// DeleteUser implements [Backend].
func (r *RedisBackend) DeleteUser(ctx context.Context, userID string) (int, error) {
	n, err := deleteUserLua.Run(ctx, r.redis,
		[]string{r.userKey(userID), r.expiryKey()},
		r.sessionPrefix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return n, nil
}

// DeleteExpired implements [Backend]. Expired entries are removed in
// batches so a large backlog never blocks Redis for long.
func (r *RedisBackend) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		res, err := sweepExpiredLua.Run(ctx, r.redis,
			[]string{r.expiryKey()},
			now.UnixMilli(),
			r.sweepBatch,
			r.sessionPrefix(),
			r.userPrefix(),
		).Int64Slice()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if len(res) != 2 {
			return total, fmt.Errorf("%w: unexpected sweep reply", ErrStorageUnavailable)
		}
		total += int(res[1])
		if res[0] < int64(r.sweepBatch) {
			return total, nil
		}
	}
}

// List implements [Backend].
func (r *RedisBackend) List(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	members, err := r.redis.ZRange(ctx, r.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.SliceCmd, len(members))
	_, err = r.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, m := range members {
			cmds[i] = pipe.HMGet(ctx, r.sessionKey(m), "d", "a")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	out := make([]*Session, 0, len(members))
	for _, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) != 2 {
			continue
		}
		blob, ok := vals[0].(string)
		if !ok {
			continue
		}
		sess, err := Decode([]byte(blob))
		if err != nil || sess.Expired(now) {
			continue
		}
		if a, ok := vals[1].(string); ok {
			if ms, err := strconv.ParseInt(a, 10, 64); err == nil {
				sess.LastAccessedAt = time.UnixMilli(ms)
			}
		}
		out = append(out, sess)
	}
	return out, nil
}
