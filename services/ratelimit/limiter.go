// Package ratelimit implements the fixed-window admission check that guards
// the chat and document endpoints.
//
// A key is admitted while its active window holds fewer than the configured
// ceiling of requests. A window whose start is at least one window duration in
// the past is expired and reads as empty, whether or not it has been evicted.
package ratelimit

import (
	"context"
	"time"
)

type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter admits or denies one request for key at time now.
// Implementations must serialize admissions on the same key.
type Limiter interface {
	Admit(ctx context.Context, key string, now time.Time) (Decision, error)
}

// Config holds the ceiling and window shared by every key of a limiter.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

const (
	DefaultMaxRequests = 3
	DefaultWindow      = 60 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxRequests <= 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

func allow(cfg Config, count int, start time.Time) Decision {
	return Decision{
		Allowed:   true,
		Count:     count,
		Limit:     cfg.MaxRequests,
		Remaining: cfg.MaxRequests - count,
		ResetAt:   start.Add(cfg.Window),
	}
}

func deny(cfg Config, count int, start, now time.Time) Decision {
	resetAt := start.Add(cfg.Window)
	return Decision{
		Allowed:    false,
		Count:      count,
		Limit:      cfg.MaxRequests,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: resetAt.Sub(now),
	}
}
