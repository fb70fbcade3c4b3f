// Package guardrail holds the per-scope pre-trade bookkeeping: symbol
// cooldowns, the daily risk budget and session open-position counts.
package guardrail

import (
	"strings"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// Ledger is the process-wide guardrail state. It is owned by the scheduler
// and handed to collaborators explicitly.
type Ledger struct {
	mu          sync.Mutex
	cooldowns   map[string]time.Time
	riskUsed    map[string]float64
	sessionOpen map[string]int
	day         string
	now         func() time.Time
}

// NewLedger creates an empty ledger. A nil clock defaults to time.Now.
func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		cooldowns:   make(map[string]time.Time),
		riskUsed:    make(map[string]float64),
		sessionOpen: make(map[string]int),
		day:         now().UTC().Format(dayLayout),
		now:         now,
	}
}

// MarkCooldown starts the cooldown window for symbol within scope.
func (l *Ledger) MarkCooldown(scope, symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cooldowns[cooldownKey(scope, symbol)] = l.now()
}

// IsOnCooldown is true while less than minutes have elapsed since the last mark.
func (l *Ledger) IsOnCooldown(scope, symbol string, minutes int) bool {
	if minutes <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	marked, ok := l.cooldowns[cooldownKey(scope, symbol)]
	if !ok {
		return false
	}
	return l.now().Sub(marked) < time.Duration(minutes)*time.Minute
}

// GetUsed returns the risk consumed today by scope.
func (l *Ledger) GetUsed(scope string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.riskUsed[normScope(scope)]
}

// SetUsed overwrites today's risk usage for scope, clamped at zero.
func (l *Ledger) SetUsed(scope string, used float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	if used < 0 {
		used = 0
	}
	l.riskUsed[normScope(scope)] = used
}

// AddUsed increments today's risk usage for scope.
func (l *Ledger) AddUsed(scope string, amount float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	key := normScope(scope)
	used := l.riskUsed[key] + amount
	if used < 0 {
		used = 0
	}
	l.riskUsed[key] = used
	return used
}

// SessionOpen returns the positions opened by this process for an account.
func (l *Ledger) SessionOpen(accountID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionOpen[strings.ToLower(accountID)]
}

// IncOpen records a newly opened position for an account.
func (l *Ledger) IncOpen(accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessionOpen[strings.ToLower(accountID)]++
}

// DecOpen records a closed position for an account, never going below zero.
func (l *Ledger) DecOpen(accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := strings.ToLower(accountID)
	if l.sessionOpen[key] > 0 {
		l.sessionOpen[key]--
	}
}

// rollover clears every scope's risk budget when the UTC date changes.
// Callers must hold l.mu.
func (l *Ledger) rollover() {
	today := l.now().UTC().Format(dayLayout)
	if today == l.day {
		return
	}
	l.riskUsed = make(map[string]float64)
	l.day = today
}

func normScope(scope string) string {
	return strings.ToLower(strings.TrimSpace(scope))
}
