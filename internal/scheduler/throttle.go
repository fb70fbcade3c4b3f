package scheduler

import (
	"strings"
	"sync"
	"time"

	"ProfilePilot/internal/model"
)

// Throttle enforces each profile's minimum re-run interval.
type Throttle struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewThrottle(now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{last: make(map[string]time.Time), now: now}
}

// ShouldRun is true if the profile never ran or its interval has elapsed.
func (t *Throttle) ShouldRun(p model.TradingProfile) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.last[throttleKey(p)]
	return !ok || t.now().Sub(last) >= p.Interval()
}

func (t *Throttle) MarkRun(p model.TradingProfile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[throttleKey(p)] = t.now()
}

// NextRun returns when the profile becomes due. Zero if it never ran.
func (t *Throttle) NextRun(p model.TradingProfile) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.last[throttleKey(p)]
	if !ok {
		return time.Time{}
	}
	return last.Add(p.Interval())
}

func throttleKey(p model.TradingProfile) string {
	return strings.ToLower(strings.TrimSpace(p.ID))
}
