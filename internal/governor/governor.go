// Package governor bounds how many items are processed at once and adapts
// that bound to feedback from the remote services: it shrinks quickly on
// rate limiting and grows slowly after sustained success.
//
// A Governor is an ordinary value passed to whoever needs it. Lowering the
// limit never interrupts permits that are already held; it only delays new
// admissions until enough of them have been released.
package governor

import (
	"context"
	"sync"

	"github.com/handiism/deck-media/internal/model"
)

// Config controls the adaptive limit.
type Config struct {
	// Baseline is the initial limit.
	Baseline int

	// Ceiling is the largest limit growth may reach.
	Ceiling int

	// GrowAfter is the number of consecutive successes that trigger growth.
	GrowAfter int

	// ShrinkDivisor divides the limit on a rate-limit signal.
	ShrinkDivisor int

	// GrowFactor multiplies the limit on growth.
	GrowFactor int
}

// DefaultConfig returns baseline 3, ceiling 6, halve on rate limiting and
// double after five successes.
func DefaultConfig() Config {
	return Config{Baseline: 3, Ceiling: 6, GrowAfter: 5, ShrinkDivisor: 2, GrowFactor: 2}
}

// State is a point-in-time view of the governor.
type State struct {
	Limit         int
	InFlight      int
	SuccessStreak int
	FailureStreak int
	Shrinks       int
	Grows         int
}

// Change describes a limit adjustment.
type Change struct {
	From   int
	To     int
	Reason model.Signal
}

// Governor hands out permits up to an adaptive limit.
type Governor struct {
	cfg Config

	mu        sync.Mutex
	state     State
	wake      chan struct{}
	observers []func(Change)
}

// Option customizes a Governor.
type Option func(*Governor)

// WithObserver registers a callback invoked after every limit change.
// It runs without the governor's lock held.
func WithObserver(f func(Change)) Option {
	return func(g *Governor) { g.Observe(f) }
}

// Observe adds f to the callbacks run after every limit change, the same
// way WithObserver does for a governor being built.
func (g *Governor) Observe(f func(Change)) {
	if f == nil {
		return
	}
	g.mu.Lock()
	g.observers = append(g.observers, f)
	g.mu.Unlock()
}

// New creates a Governor. Invalid values fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Governor {
	def := DefaultConfig()
	if cfg.Baseline < 1 {
		cfg.Baseline = def.Baseline
	}
	if cfg.Ceiling < cfg.Baseline {
		cfg.Ceiling = cfg.Baseline
	}
	if cfg.GrowAfter < 1 {
		cfg.GrowAfter = def.GrowAfter
	}
	if cfg.ShrinkDivisor < 2 {
		cfg.ShrinkDivisor = def.ShrinkDivisor
	}
	if cfg.GrowFactor < 2 {
		cfg.GrowFactor = def.GrowFactor
	}

	g := &Governor{
		cfg:   cfg,
		state: State{Limit: cfg.Baseline},
		wake:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Permit is held by one item for its whole lifetime.
type Permit struct {
	g    *Governor
	once sync.Once
}

// Release returns the permit. Calling it more than once has no effect.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.g.release)
}

// Admit blocks until a permit is available or ctx is done.
func (g *Governor) Admit(ctx context.Context) (*Permit, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g.mu.Lock()
		if g.state.InFlight < g.state.Limit {
			g.state.InFlight++
			g.mu.Unlock()
			return &Permit{g: g}, nil
		}
		wake := g.wake
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// Release returns p to the governor. Equivalent to p.Release().
func (g *Governor) Release(p *Permit) {
	p.Release()
}

func (g *Governor) release() {
	g.mu.Lock()
	if g.state.InFlight > 0 {
		g.state.InFlight--
	}
	g.broadcastLocked()
	g.mu.Unlock()
}

// Report feeds one attempt outcome back into the governor.
func (g *Governor) Report(signal model.Signal) {
	var change *Change
	var observers []func(Change)

	g.mu.Lock()
	switch signal {
	case model.RateLimited:
		g.state.SuccessStreak = 0
		g.state.FailureStreak++
		next := g.state.Limit / g.cfg.ShrinkDivisor
		if next < 1 {
			next = 1
		}
		if next != g.state.Limit {
			change = &Change{From: g.state.Limit, To: next, Reason: signal}
			g.state.Limit = next
			g.state.Shrinks++
		}
	case model.TransientError:
		g.state.SuccessStreak = 0
		g.state.FailureStreak++
	case model.Success:
		g.state.FailureStreak = 0
		g.state.SuccessStreak++
		if g.state.SuccessStreak >= g.cfg.GrowAfter {
			g.state.SuccessStreak = 0
			next := g.state.Limit * g.cfg.GrowFactor
			if next > g.cfg.Ceiling {
				next = g.cfg.Ceiling
			}
			if next != g.state.Limit {
				change = &Change{From: g.state.Limit, To: next, Reason: signal}
				g.state.Limit = next
				g.state.Grows++
				g.broadcastLocked()
			}
		}
	}
	if change != nil {
		observers = g.observers
	}
	g.mu.Unlock()

	for _, f := range observers {
		f(*change)
	}
}

// Limit returns the current admission limit.
func (g *Governor) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Limit
}

// State returns a snapshot of the governor's counters.
func (g *Governor) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Config returns the normalised configuration.
func (g *Governor) Config() Config { return g.cfg }

// broadcastLocked wakes every waiter so it can re-check the limit.
func (g *Governor) broadcastLocked() {
	close(g.wake)
	g.wake = make(chan struct{})
}
