// Package telemetry records per-profile outcomes, aggregates them per
// cycle and grades the cycle's reliability.
package telemetry

import (
	"time"

	"ProfilePilot/internal/model"
)

// ProfileRecorder accumulates the telemetry of one profile pass. The
// snapshot returned by Finish is not touched again.
type ProfileRecorder struct {
	t   model.ProfileTelemetry
	now func() time.Time
}

func StartProfile(p model.TradingProfile, accountID, scope string, now func() time.Time) *ProfileRecorder {
	if now == nil {
		now = time.Now
	}
	if accountID == "" {
		accountID = p.AccountID
	}
	return &ProfileRecorder{
		now: now,
		t: model.ProfileTelemetry{
			ProfileID:   p.ID,
			ProfileName: p.Name,
			AccountID:   accountID,
			ScopeKey:    scope,
			PairScope:   p.PairScope,
			StartedAt:   now(),
		},
	}
}

// Symbols records the configured and resolved symbol counts.
func (r *ProfileRecorder) Symbols(expected, actual int) {
	r.t.ExpectedSymbols = expected
	r.t.ActualSymbols = actual
}

func (r *ProfileRecorder) ScanRows(n int) {
	r.t.ScanRows = n
}

// Proposals records the proposal step. The maps are copied.
func (r *ProfileRecorder) Proposals(proposed int, reasons, tags map[string]int) {
	r.t.Proposed = proposed
	r.t.RejectReasons = copyCounts(reasons)
	r.t.Tags = copyCounts(tags)
}

func (r *ProfileRecorder) Execution(c model.ExecutionCounts) {
	r.t.Execution = c
}

// Finish stamps the terminal status and returns the snapshot.
func (r *ProfileRecorder) Finish(status model.ProfileStatus, detail string) model.ProfileTelemetry {
	r.t.Status = status
	r.t.Detail = detail
	r.t.FinishedAt = r.now()
	out := r.t
	out.RejectReasons = copyCounts(r.t.RejectReasons)
	out.Tags = copyCounts(r.t.Tags)
	return out
}

// ExecutionStatus is executed when at least one order went through,
// completed otherwise.
func ExecutionStatus(c model.ExecutionCounts) model.ProfileStatus {
	if c.OK > 0 {
		return model.ProfileExecuted
	}
	return model.ProfileCompleted
}

func copyCounts(in map[string]int) map[string]int {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}
