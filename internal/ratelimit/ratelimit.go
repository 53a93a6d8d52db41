// Package ratelimit throttles API callers with token buckets. Buckets live
// in Redis when a client is configured so that every cachebridge instance
// shares them, and in process otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Backend performs one token bucket check.
type Backend interface {
	CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (allowed bool, remaining int, err error)
}

// Config holds the bucket parameters applied to every caller.
type Config struct {
	RequestsPerSecond float64
	BurstSize         int
}

// Limiter applies Config to a Backend.
type Limiter struct {
	backend Backend
	cfg     Config
}

// New creates a new rate limiter
func New(backend Backend, cfg Config) *Limiter {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = max(1, int(cfg.RequestsPerSecond))
	}
	return &Limiter{backend: backend, cfg: cfg}
}

// Result contains the result of a rate limit check
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Allow checks if a request is allowed for the given key
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	allowed, remaining, err := l.backend.CheckRateLimit(ctx, key, l.cfg.BurstSize, l.cfg.RequestsPerSecond, 1)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check: %w", err)
	}

	// Calculate when bucket will be full again
	tokensNeeded := float64(l.cfg.BurstSize - remaining)
	refill := time.Duration(tokensNeeded / l.cfg.RequestsPerSecond * float64(time.Second))

	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   time.Now().Add(refill),
	}, nil
}

// KeyForSubject returns the rate limit key for an authenticated subject
func KeyForSubject(subject string) string {
	return "subject:" + subject
}

// KeyForIP returns the rate limit key for an anonymous client address
func KeyForIP(ip string) string {
	return "ip:" + ip
}
