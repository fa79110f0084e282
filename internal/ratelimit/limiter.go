// Package ratelimit throttles outbound fetches with one token bucket per source.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"social-graph-crawler/internal/models"
)

// ErrRateLimitExceeded is returned when a token could not be acquired
// within the configured wait budget. Retryable by the caller.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Config sets bucket behavior shared by all sources.
type Config struct {
	TokensPerSecond float64       // refill rate
	Burst           int           // bucket capacity
	MaxWait         time.Duration // give-up budget for one acquisition
}

// Limiter hands out tokens per source. Safe for concurrent use by
// crawl workers across jobs.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[models.Source]*rate.Limiter
}

// New creates a Limiter; zero config fields get conservative defaults.
func New(cfg Config) *Limiter {
	if cfg.TokensPerSecond <= 0 {
		cfg.TokensPerSecond = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 30 * time.Second
	}
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[models.Source]*rate.Limiter),
	}
}

// Acquire blocks until a token for the source is available, the wait budget
// is exceeded (ErrRateLimitExceeded), or ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context, source models.Source) error {
	bucket := l.bucketFor(source)

	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.MaxWait)
	defer cancel()

	if err := bucket.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: source=%s", ErrRateLimitExceeded, source)
	}
	return nil
}

func (l *Limiter) bucketFor(source models.Source) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[source]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(l.cfg.TokensPerSecond), l.cfg.Burst)
		l.buckets[source] = bucket
	}
	return bucket
}
