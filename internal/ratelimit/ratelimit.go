// Package ratelimit throttles abuse-prone account requests (password reset,
// signup and login) with Redis fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/accountkeeper/internal/apperror"
)

// Action names a throttled operation; it becomes part of the Redis key.
type Action string

const (
	ActionResetRequest Action = "reset"
	ActionResetRedeem  Action = "redeem"
	ActionSignup       Action = "signup"
	ActionLogin        Action = "login"
)

// Limiter counts attempts per identifier and per client IP. A nil *Limiter
// allows everything, so callers need not care whether Redis is configured.
type Limiter struct {
	redis       *redis.Client
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
}

func New(client *redis.Client, maxAttempts int, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		redis:       client,
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
	}
}

// Allow records one attempt of action for identifier and ip. Once either
// counter passes the limit within the window it returns an
// apperror.ErrRateLimited error.
//
// If Redis cannot be reached the attempt is allowed and a warning logged.
func (l *Limiter) Allow(ctx context.Context, action Action, identifier, ip string) error {
	if l == nil || l.redis == nil {
		return nil
	}

	keys := []string{fmt.Sprintf("ak:%s:id:%s", action, identifier)}
	if ip != "" {
		keys = append(keys, fmt.Sprintf("ak:%s:ip:%s", action, ip))
	}

	for _, key := range keys {
		over, err := l.hit(ctx, key)
		if err != nil {
			l.logger.Warn("rate limiter unavailable", slog.String("action", string(action)), slog.String("error", err.Error()))
			return nil
		}
		if over {
			return apperror.RateLimited("Too many attempts. Please try again later.")
		}
	}
	return nil
}

func (l *Limiter) hit(ctx context.Context, key string) (bool, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count > int64(l.maxAttempts), nil
}
