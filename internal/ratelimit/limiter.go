package ratelimit

import "context"

// RateLimiter controls transport send throughput per channel.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}

// NopLimiter never throttles. Used in tests and dev runs without Redis.
type NopLimiter struct{}

func (NopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (NopLimiter) Wait(context.Context, string) error          { return nil }
