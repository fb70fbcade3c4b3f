package model

import "time"

// ProfileStatus is the terminal status of one profile within a cycle.
type ProfileStatus string

const (
	ProfileSkipped   ProfileStatus = "skipped"
	ProfileBlocked   ProfileStatus = "blocked"
	ProfileExecuted  ProfileStatus = "executed"
	ProfileCompleted ProfileStatus = "completed"
	ProfileError     ProfileStatus = "error"
)

// CycleStatus is the terminal status of a whole cycle.
type CycleStatus string

const (
	CycleCompleted CycleStatus = "completed"
	CycleStopped   CycleStatus = "stopped"
	CycleFailed    CycleStatus = "failed"
)

// Gate and matrix statuses.
const (
	StatusPass         = "PASS"
	StatusPartial      = "PARTIAL"
	StatusInsufficient = "INSUFFICIENT"
)

// ExecutionCounts tallies the outcome of every plan the coordinator looked at.
type ExecutionCounts struct {
	OK                int `json:"ok"`
	Failed            int `json:"failed"`
	SkippedCooldown   int `json:"skipped_cooldown"`
	SkippedOpenCap    int `json:"skipped_open_cap"`
	SkippedRisk       int `json:"skipped_risk"`
	SkippedValidation int `json:"skipped_validation"`
	ProtectiveExits   int `json:"protective_exits"`
}

// GuardrailVetoes is the number of plans blocked by cooldown, open-position cap or daily risk.
func (c ExecutionCounts) GuardrailVetoes() int {
	return c.SkippedCooldown + c.SkippedOpenCap + c.SkippedRisk
}

// ProfileTelemetry is the immutable outcome snapshot of one profile in one cycle.
type ProfileTelemetry struct {
	ProfileID       string          `json:"profile_id"`
	ProfileName     string          `json:"profile_name"`
	AccountID       string          `json:"account_id"`
	ScopeKey        string          `json:"scope_key"`
	PairScope       PairScope       `json:"pair_scope"`
	ExpectedSymbols int             `json:"expected_symbols"`
	ActualSymbols   int             `json:"actual_symbols"`
	ScanRows        int             `json:"scan_rows"`
	Proposed        int             `json:"proposed"`
	RejectReasons   map[string]int  `json:"reject_reasons,omitempty"`
	Tags            map[string]int  `json:"tags,omitempty"`
	Execution       ExecutionCounts `json:"execution"`
	Status          ProfileStatus   `json:"status"`
	Detail          string          `json:"detail,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}

// Processed reports whether the profile actually ran this cycle.
func (p ProfileTelemetry) Processed() bool {
	return p.Status != ProfileSkipped
}

// Failed reports whether the profile ended blocked or in error.
func (p ProfileTelemetry) Failed() bool {
	return p.Status == ProfileBlocked || p.Status == ProfileError
}

// GateReport is the result of the reliability gate.
type GateReport struct {
	Status   string          `json:"status"`
	Observed map[string]bool `json:"observed"`
}

// MatrixCheck is one line of the configuration matrix evaluation.
type MatrixCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// MatrixReport is the result of the configuration matrix evaluation.
type MatrixReport struct {
	Status string        `json:"status"`
	Checks []MatrixCheck `json:"checks"`
}

// CycleTelemetry is the immutable report persisted once per cycle.
type CycleTelemetry struct {
	CycleID           string             `json:"cycle_id"`
	StartedAt         time.Time          `json:"started_at"`
	FinishedAt        time.Time          `json:"finished_at"`
	Status            CycleStatus        `json:"status"`
	Error             string             `json:"error,omitempty"`
	AdHoc             bool               `json:"ad_hoc"`
	EnabledProfileIDs []string           `json:"enabled_profile_ids"`
	Profiles          []ProfileTelemetry `json:"profiles"`
	Processed         int                `json:"processed"`
	Executed          int                `json:"executed"`
	Failed            int                `json:"failed"`
	RejectHistogram   map[string]int     `json:"reject_histogram"`
	Gate              GateReport         `json:"gate"`
	Matrix            MatrixReport       `json:"matrix"`
}
