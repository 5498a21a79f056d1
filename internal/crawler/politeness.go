package crawler

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TimerPauser sleeps on a timer and wakes early when ctx is done.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// PacerConfig tunes the randomized delays between network-facing steps.
type PacerConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	// MaxRPS caps navigations per second; zero disables the cap.
	MaxRPS float64
}

// Pacer inserts randomized delays and rate-limits navigations.
type Pacer struct {
	minDelay time.Duration
	maxDelay time.Duration
	limiter  *rate.Limiter
	pauser   Pauser
	observe  func(time.Duration)

	mu    sync.Mutex
	slept time.Duration
}

// NewPacer builds a Pacer. A nil pauser defaults to TimerPauser.
func NewPacer(cfg PacerConfig, pauser Pauser) *Pacer {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	limit := rate.Inf
	if cfg.MaxRPS > 0 {
		limit = rate.Limit(cfg.MaxRPS)
	}
	if pauser == nil {
		pauser = TimerPauser{}
	}
	return &Pacer{
		minDelay: cfg.MinDelay,
		maxDelay: cfg.MaxDelay,
		limiter:  rate.NewLimiter(limit, 1),
		pauser:   pauser,
	}
}

// OnDelay registers a hook invoked with every randomized delay.
func (p *Pacer) OnDelay(fn func(time.Duration)) {
	p.observe = fn
}

// Delay sleeps for a random duration within the configured window.
func (p *Pacer) Delay(ctx context.Context) {
	if p == nil {
		return
	}
	p.Between(ctx, p.minDelay, p.maxDelay)
}

// Between sleeps for a random duration in [lo, hi].
func (p *Pacer) Between(ctx context.Context, lo, hi time.Duration) {
	if p == nil {
		return
	}
	d := randomBetween(lo, hi)
	if d <= 0 {
		return
	}
	if p.observe != nil {
		p.observe(d)
	}
	p.mu.Lock()
	p.slept += d
	p.mu.Unlock()
	p.pauser.Pause(ctx, d)
}

// Pause sleeps for exactly delay. It lets the Pacer stand in as a retry Pauser.
func (p *Pacer) Pause(ctx context.Context, delay time.Duration) {
	if p == nil {
		return
	}
	p.pauser.Pause(ctx, delay)
}

// WaitNavigation blocks until the navigation rate limit admits another request.
func (p *Pacer) WaitNavigation(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("navigation rate limit: %w", err)
	}
	return nil
}

// Slept reports the total randomized delay issued so far.
func (p *Pacer) Slept() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slept
}

func randomBetween(lo, hi time.Duration) time.Duration {
	if hi < lo {
		hi = lo
	}
	span := hi - lo
	if span <= 0 {
		return lo
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(span)+1))
	if err != nil {
		return lo + span/2
	}
	return lo + time.Duration(n.Int64())
}
