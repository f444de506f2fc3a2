// Package ratelimit implements the fixed-window rate limiter keyed by
// API-key > user id > IP, prefixed by an endpoint label (spec §4.10).
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Backend is the counter abstraction spec §4.10 calls for: in-memory or a
// remote atomic-INCR+EXPIRE counter.
type Backend interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Key builds the lookup key from the identity precedence rule: API-key takes
// priority over user id, which takes priority over IP, all scoped by an
// endpoint label.
func Key(endpoint, apiKeyPrefix, userID, ip string) string {
	switch {
	case apiKeyPrefix != "":
		return fmt.Sprintf("%s:apikey:%s", endpoint, apiKeyPrefix)
	case userID != "":
		return fmt.Sprintf("%s:user:%s", endpoint, userID)
	default:
		return fmt.Sprintf("%s:ip:%s", endpoint, ip)
	}
}

// memoryEntry pairs a token-bucket limiter (approximating the fixed window)
// with the window's reset time.
type memoryEntry struct {
	limiter *rate.Limiter
	resetAt time.Time
	limit   int
}

// MemoryBackend is the in-memory backend, one golang.org/x/time/rate token
// bucket per key: a burst of `limit` that refills at `limit` per `window`,
// replaced by a full bucket once the window has passed. Unlike
// RedisBackend's counter it is not a strict fixed window: refills let a key
// through more than `limit` times within one window.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryBackend builds an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]*memoryEntry), now: time.Now}
}

func (m *MemoryBackend) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &memoryEntry{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			resetAt: now.Add(window),
			limit:   limit,
		}
		m.entries[key] = e
	}

	allowed := e.limiter.AllowN(now, 1)
	remaining := int(e.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Remaining: remaining, ResetAt: e.resetAt}, nil
}

// redisIncrExpireScript atomically increments a window counter and sets its
// expiry only on the first increment of the window, so concurrent callers
// never reset each other's TTL.
var redisIncrExpireScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisBackend is the remote counter backend, sharing the Redis client used
// by the session store (spec §4.10).
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (r *RedisBackend) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	count, err := redisIncrExpireScript.Run(ctx, r.rdb, []string{"ratelimit:" + key}, int(window.Seconds())).Int64()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: incr: %w", err)
	}
	ttl, err := r.rdb.TTL(ctx, "ratelimit:"+key).Result()
	if err != nil {
		ttl = window
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= int64(limit), Remaining: remaining, ResetAt: time.Now().Add(ttl)}, nil
}

// Limiter checks requests against a Backend using a named Preset.
type Limiter struct {
	backend Backend
	presets map[string]Preset
}

// NewLimiter builds a limiter over backend with the given presets registered
// by name (see presets.go for the spec-defined defaults).
func NewLimiter(backend Backend, presets map[string]Preset) *Limiter {
	return &Limiter{backend: backend, presets: presets}
}

// Check consumes one unit against the preset named presetName for the
// given identity key; CheckCost (presets.go) consumes several in one call.
func (l *Limiter) Check(ctx context.Context, presetName, endpoint, apiKeyPrefix, userID, ip string) (Decision, error) {
	preset, ok := l.presets[presetName]
	if !ok {
		return Decision{}, fmt.Errorf("ratelimit: unknown preset %q", presetName)
	}
	key := Key(endpoint, apiKeyPrefix, userID, ip)
	return l.backend.Allow(ctx, key, preset.Limit, preset.Window)
}
