package proposal

import (
	"context"
	"sync"
	"time"
)

// Pacer spaces consecutive calls to the planner. The delay doubles on a
// rate-limit signal up to Max and shrinks by a fifth per success down to Base.
type Pacer struct {
	mu    sync.Mutex
	base  time.Duration
	max   time.Duration
	delay time.Duration
}

func NewPacer(base, max time.Duration) *Pacer {
	if base < 0 {
		base = 0
	}
	if max < base {
		max = base
	}
	return &Pacer{base: base, max: max, delay: base}
}

// Delay returns the current inter-call delay.
func (p *Pacer) Delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

func (p *Pacer) RateLimited() {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.delay * 2
	if next == 0 {
		next = time.Second
	}
	if next > p.max {
		next = p.max
	}
	p.delay = next
}

func (p *Pacer) Success() {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.delay - p.delay/5
	if next < p.base {
		next = p.base
	}
	p.delay = next
}

// Wait sleeps for the current delay or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.Delay()
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
