package guardrail

import (
	"fmt"
	"strings"
	"time"

	"ProfilePilot/internal/model"
)

// Lookback bounds for persisted open-position reconstruction.
const (
	DefaultLookbackHours = 24
	MinLookbackHours     = 1
	MaxLookbackHours     = 168
)

// ClampLookbackHours keeps the reconstruction window within 1..168 hours,
// substituting the default for unset values.
func ClampLookbackHours(hours int) int {
	switch {
	case hours <= 0:
		return DefaultLookbackHours
	case hours < MinLookbackHours:
		return MinLookbackHours
	case hours > MaxLookbackHours:
		return MaxLookbackHours
	default:
		return hours
	}
}

// RiskVerdict explains a daily-risk check.
type RiskVerdict struct {
	Allowed  bool
	PlanRisk float64
	Used     float64
	Cap      float64
}

func (v RiskVerdict) String() string {
	return fmt.Sprintf("used %.2f + plan %.2f vs cap %.2f", v.Used, v.PlanRisk, v.Cap)
}

// CheckRisk rejects a plan whose risk would push the scope past
// equity*dailyRiskStopPct/100. The cap is recomputed on every call.
// A non-positive percentage disables the check.
func (l *Ledger) CheckRisk(scope string, plan model.TradePlan, equity, dailyRiskStopPct float64) RiskVerdict {
	v := RiskVerdict{Allowed: true, PlanRisk: plan.Risk(), Used: l.GetUsed(scope)}
	if dailyRiskStopPct <= 0 {
		return v
	}
	v.Cap = equity * (dailyRiskStopPct / 100)
	v.Allowed = v.Used+v.PlanRisk <= v.Cap
	return v
}

// OpenVerdict explains an open-position cap check.
type OpenVerdict struct {
	Allowed   bool
	Session   int
	Persisted int
	Limit     int
}

// Open is the effective open-position count.
func (v OpenVerdict) Open() int {
	if v.Persisted > v.Session {
		return v.Persisted
	}
	return v.Session
}

// CheckOpenPositions compares max(session, persisted) against the account's
// concurrency limit. A non-positive limit means unlimited.
func (l *Ledger) CheckOpenPositions(accountID string, limit, persisted int) OpenVerdict {
	v := OpenVerdict{Allowed: true, Session: l.SessionOpen(accountID), Persisted: persisted, Limit: limit}
	if limit > 0 {
		v.Allowed = v.Open() < limit
	}
	return v
}

// PersistedOpenCount reconstructs the open-position count for an account
// from the trade history: executed opens minus executed closes inside the
// lookback window. This is a heuristic, not a true position ledger.
func PersistedOpenCount(records []model.TradeRecord, accountID string, now time.Time, lookbackHours int) int {
	since := now.Add(-time.Duration(ClampLookbackHours(lookbackHours)) * time.Hour)
	opens, closes := 0, 0
	for _, r := range records {
		if !r.Executed() || !strings.EqualFold(r.AccountID, accountID) || r.Time.Before(since) {
			continue
		}
		switch {
		case r.RealizedPnL == nil && !r.Close:
			opens++
		case r.RealizedPnL != nil && r.Close:
			closes++
		}
	}
	if opens < closes {
		return 0
	}
	return opens - closes
}
