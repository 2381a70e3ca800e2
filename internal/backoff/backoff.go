// Package backoff computes retry delays for failed acquisition attempts.
//
// The delay after attempt n is base*2^n capped at Max, plus a uniform jitter
// drawn from [JitterMin, JitterMax]. Waiting is left to the caller so the
// computation stays pure and the wait stays cancellable.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/handiism/deck-media/internal/model"
)

// Config holds the retry schedule.
type Config struct {
	Base        time.Duration
	Max         time.Duration
	JitterMin   time.Duration
	JitterMax   time.Duration
	MaxAttempts int
}

// DefaultConfig returns the schedule used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Base:        time.Second,
		Max:         60 * time.Second,
		JitterMin:   0,
		JitterMax:   time.Second,
		MaxAttempts: 3,
	}
}

// Policy computes delays from a Config and a source of randomness.
// It is safe for concurrent use if its random source is.
type Policy struct {
	cfg  Config
	rand func() float64
}

// Option customizes a Policy.
type Option func(*Policy)

// WithRand replaces the random source. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(p *Policy) { p.rand = f }
}

// New creates a Policy. Missing or inverted bounds are normalised.
func New(cfg Config, opts ...Option) *Policy {
	if cfg.Base <= 0 {
		cfg.Base = DefaultConfig().Base
	}
	if cfg.Max < cfg.Base {
		cfg.Max = cfg.Base
	}
	if cfg.JitterMin < 0 {
		cfg.JitterMin = 0
	}
	if cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMax = cfg.JitterMin
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	p := &Policy{cfg: cfg, rand: rand.Float64}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the normalised configuration.
func (p *Policy) Config() Config { return p.cfg }

// MaxAttempts returns the attempt budget per asset.
func (p *Policy) MaxAttempts() int { return p.cfg.MaxAttempts }

// NextDelay returns how long to wait after the given 1-based attempt failed
// with signal. Non-retryable signals yield zero.
func (p *Policy) NextDelay(attempt int, signal model.Signal) time.Duration {
	if !signal.Retryable() {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	d := p.cfg.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.cfg.Max {
			d = p.cfg.Max
			break
		}
	}
	return d + Uniform(p.cfg.JitterMin, p.cfg.JitterMax, p.rand)
}

// ShouldRetry reports whether another attempt is allowed after the given
// 1-based attempt produced signal.
func (p *Policy) ShouldRetry(attempt int, signal model.Signal) bool {
	return signal.Retryable() && attempt < p.cfg.MaxAttempts
}

// Uniform draws a duration from [lo, hi] using r. A nil r returns lo.
func Uniform(lo, hi time.Duration, r func() float64) time.Duration {
	if hi <= lo || r == nil {
		return lo
	}
	return lo + time.Duration(r()*float64(hi-lo))
}

// Wait blocks for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
