package backoff

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out outgoing calls: an optional shared rate limit followed by
// a random pre-call delay, so bursts of work never hit a service in lockstep.
type Pacer struct {
	min, max time.Duration
	limiter  *rate.Limiter
	rand     func() float64
}

// NewPacer creates a Pacer drawing pre-call delays from [min, max].
// rps <= 0 disables the rate limit.
func NewPacer(min, max time.Duration, rps float64) *Pacer {
	if max < min {
		max = min
	}
	p := &Pacer{min: min, max: max, rand: rand.Float64}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return p
}

// WithRand replaces the random source, for tests.
func (p *Pacer) WithRand(f func() float64) *Pacer {
	p.rand = f
	return p
}

// Wait blocks until the next call may start or ctx is done.
// A nil Pacer returns immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return Wait(ctx, Uniform(p.min, p.max, p.rand))
}
