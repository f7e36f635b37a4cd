// Package ratelimit implements fixed-window request counting over Redis.
//
// Each (scope, identifier) pair gets one counter per window. The key embeds
// the window index, so counters roll over naturally and expire shortly after
// their window closes. Enforcement policy (fail open, response headers)
// belongs to the HTTP middleware; this package only counts.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/schedule"
)

// expiryGrace is added to the counter TTL beyond the window length so a
// counter outlives its window by a margin instead of expiring mid-check.
const expiryGrace = 30 * time.Second

// CountStore increments a counter and guarantees it carries an expiry.
// Implemented by RedisStore; tests substitute an in-memory fake.
type CountStore interface {
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisStore implements CountStore on a Redis connection.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// IncrWithExpiry atomically increments the counter and sets its expiry when
// the increment created the key. INCR and EXPIRE run in one pipeline round
// trip.
func (s *RedisStore) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, expiry)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Result reports the outcome of one counted request.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces a fixed-window limit per (scope, identifier) pair.
type Limiter struct {
	store  CountStore
	limit  int
	window time.Duration
	clock  schedule.Clock
}

// NewLimiter creates a Limiter. The limit is the maximum number of requests
// allowed within one window. A nonpositive window falls back to one second
// so the window index math stays well-defined.
func NewLimiter(store CountStore, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		clock:  schedule.RealClock{},
	}
}

// WithClock substitutes the time source, for tests.
func (l *Limiter) WithClock(clock schedule.Clock) *Limiter {
	l.clock = clock
	return l
}

// Limit returns the configured per-window maximum.
func (l *Limiter) Limit() int {
	return l.limit
}

// Allow counts one request for the identifier and reports whether it fits
// within the current window's budget. A store error is returned to the
// caller, which decides the failure policy.
func (l *Limiter) Allow(ctx context.Context, scope, id string) (Result, error) {
	// Index math runs in the window's own unit so sub-second windows work.
	now := l.clock.Now()
	windowIdx := now.UnixNano() / int64(l.window)

	key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, id, windowIdx)
	count, err := l.store.IncrWithExpiry(ctx, key, l.window+expiryGrace)
	if err != nil {
		return Result{}, err
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(l.limit),
		Remaining: remaining,
		ResetAt:   time.Unix(0, (windowIdx+1)*int64(l.window)).UTC(),
	}, nil
}
