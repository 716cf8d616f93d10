// Package throttle paces accepted operations once spend crosses the
// throttle threshold. It computes delays; it never sleeps on its own.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Config controls pacing of throttled operations.
type Config struct {
	// RatePerSecond is the sustained rate of throttled operations.
	RatePerSecond float64 `yaml:"rate_per_second"`
	// Burst is how many throttled operations may pass back to back.
	Burst int `yaml:"burst"`
	// MinDelay is added to every throttled operation.
	MinDelay time.Duration `yaml:"min_delay"`
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration `yaml:"max_delay"`
}

// DefaultConfig returns conservative pacing defaults.
func DefaultConfig() Config {
	return Config{
		RatePerSecond: 5,
		Burst:         1,
		MinDelay:      100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
	}
}

// Pacer hands out delays for throttled operations from a token bucket.
type Pacer struct {
	cfg     Config
	limiter *rate.Limiter
	clock   func() time.Time
}

func NewPacer(cfg Config) *Pacer {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	return &Pacer{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		clock:   time.Now,
	}
}

// WithClock overrides clock for testing.
func (p *Pacer) WithClock(clock func() time.Time) *Pacer {
	p.clock = clock
	return p
}

// Delay reserves a slot and returns how long the operation should wait.
// The result is never below MinDelay and never above MaxDelay.
func (p *Pacer) Delay() time.Duration {
	now := p.clock()
	r := p.limiter.ReserveN(now, 1)
	if !r.OK() {
		return p.cfg.MaxDelay
	}
	d := r.DelayFrom(now)
	if d < p.cfg.MinDelay {
		d = p.cfg.MinDelay
	}
	if d > p.cfg.MaxDelay {
		r.CancelAt(now)
		d = p.cfg.MaxDelay
	}
	return d
}

// Wait blocks for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
