// Package throttle limits failed login attempts per identity using redis counters
package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/authgate/internal/apperrors"
)

const (
	defaultMaxAttempts = 5
	defaultLockout     = 15 * time.Minute

	keyPrefix = "authgate:login:"
)

type Config struct {
	// Failed attempts allowed within lockout window
	// If not set than default is used
	MaxAttempts int

	// Window counted from the first failure. Identity is locked until it ends
	// If not set than default is used
	Lockout time.Duration
}

type Limiter struct {
	redis       redis.UniversalClient
	maxAttempts int64
	lockout     time.Duration
}

func New(cfg Config, client redis.UniversalClient) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("redis client must not be nil")
	}

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Lockout == 0 {
		cfg.Lockout = defaultLockout
	}
	if cfg.MaxAttempts < 0 || cfg.Lockout < 0 {
		return nil, fmt.Errorf("invalid throttle config: max attempts %d, lockout %s", cfg.MaxAttempts, cfg.Lockout)
	}

	return &Limiter{
		redis:       client,
		maxAttempts: int64(cfg.MaxAttempts),
		lockout:     cfg.Lockout,
	}, nil
}

func key(identity string) string {
	return keyPrefix + identity
}

// Check fails with ErrTooManyLoginAttempts when identity is locked
func (l *Limiter) Check(ctx context.Context, identity string) error {
	count, err := l.redis.Get(ctx, key(identity)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("redis error: %w", err)
	}

	if count >= l.maxAttempts {
		return apperrors.ErrTooManyLoginAttempts
	}
	return nil
}

// Fail records failed attempt
func (l *Limiter) Fail(ctx context.Context, identity string) error {
	count, err := l.redis.Incr(ctx, key(identity)).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	// Window starts on the first failure
	if count == 1 {
		if err := l.redis.Expire(ctx, key(identity), l.lockout).Err(); err != nil {
			return fmt.Errorf("redis error: %w", err)
		}
	}

	return nil
}

// Reset forgets failures, called after successful login
func (l *Limiter) Reset(ctx context.Context, identity string) error {
	if err := l.redis.Del(ctx, key(identity)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}
