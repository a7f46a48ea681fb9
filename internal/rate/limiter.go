// Package rate enforces fixed-window attempt budgets on Redis counters.
// Counters are ephemeral abuse-prevention state, fully independent of the
// durable lockout columns on the account record.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when a key has exhausted its attempt
	// budget for the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable wraps Redis transport failures. Retryable,
	// and always distinguishable from ErrRateLimited.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)

// Policy is one action's attempt budget.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Limiter counts attempts per (action, key) pair. The window is fixed:
// the TTL is set when the first attempt of a window lands, and the counter
// disappears with it.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Limiter namespaced under prefix.
func New(client redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "acr"
	}
	return &Limiter{redis: client, prefix: prefix}
}

func (l *Limiter) key(action, key string) string {
	return l.prefix + ":" + action + ":" + key
}

// Check reports whether the key is already over budget without recording
// an attempt. Used on the login path so limited callers never reach the
// password hasher.
func (l *Limiter) Check(ctx context.Context, action, key string, p Policy) error {
	count, err := l.redis.Get(ctx, l.key(action, key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if count >= int64(p.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Hit records one attempt and returns the running count for the window.
// The count is monotonic within a window: no more than p.Limit attempts
// are ever admitted by Check/Allow before the window lapses.
func (l *Limiter) Hit(ctx context.Context, action, key string, p Policy) (int64, error) {
	k := l.key(action, key)

	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// Fixed-window semantics: TTL is set only for the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, k, p.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	return count, nil
}

// Allow records one attempt and admits it only while within budget. This
// is the counted-request form used for verification resends and reset
// requests, where every request consumes budget.
func (l *Limiter) Allow(ctx context.Context, action, key string, p Policy) error {
	count, err := l.Hit(ctx, action, key, p)
	if err != nil {
		return err
	}
	if count > int64(p.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counters for the given keys, e.g. after a successful
// login.
func (l *Limiter) Reset(ctx context.Context, action string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		full = append(full, l.key(action, k))
	}
	if len(full) == 0 {
		return nil
	}

	if err := l.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
