package telemetry

import (
	"fmt"
	"sort"
	"strings"

	"ProfilePilot/internal/model"
)

// Signals a cycle must exhibit to pass the reliability gate.
const (
	SignalNoSignal = "no-signal"
	SignalAIVeto   = "ai-veto"
	SignalRiskVeto = "risk-veto"
	SignalSuccess  = "success"
)

var gateSignals = []string{SignalNoSignal, SignalAIVeto, SignalRiskVeto, SignalSuccess}

// Matrix check names.
const (
	CheckPairScope   = "pair-scope"
	CheckScopeIsol   = "scope-isolation"
	CheckContainment = "failure-containment"
	CheckCoverage    = "profile-coverage"
)

// MinCoverage is the number of processed enabled profiles a cycle needs
// for the matrix to be conclusive.
const MinCoverage = 2

// Evaluator finalizes cycle reports.
type Evaluator struct {
	categories Categories
}

func NewEvaluator(categories Categories) *Evaluator {
	return &Evaluator{categories: categories}
}

// Finalize fills the aggregate counts, the reject histogram, the gate and
// the matrix of a cycle from its profile records.
func (e *Evaluator) Finalize(c *model.CycleTelemetry) {
	c.Processed, c.Executed, c.Failed = Counts(c.Profiles)
	c.RejectHistogram = e.Histogram(c.Profiles)
	c.Gate = EvaluateGate(c.Profiles)
	c.Matrix = EvaluateMatrix(c.Profiles, c.EnabledProfileIDs)
}

// Counts returns processed, executed and failed profile counts.
func Counts(profiles []model.ProfileTelemetry) (processed, executed, failed int) {
	for _, p := range profiles {
		if p.Processed() {
			processed++
		}
		if p.Status == model.ProfileExecuted {
			executed++
		}
		if p.Failed() {
			failed++
		}
	}
	return processed, executed, failed
}

// Histogram folds planner reasons and guardrail vetoes into the bounded
// category set.
func (e *Evaluator) Histogram(profiles []model.ProfileTelemetry) map[string]int {
	h := make(map[string]int)
	add := func(reason string, n int) {
		if n > 0 {
			h[e.categories.Bucket(reason)] += n
		}
	}
	for _, p := range profiles {
		for reason, n := range p.RejectReasons {
			add(reason, n)
		}
		add("cooldown", p.Execution.SkippedCooldown)
		add("open-cap", p.Execution.SkippedOpenCap)
		add("risk-cap", p.Execution.SkippedRisk)
		add("validation", p.Execution.SkippedValidation)
	}
	return h
}

// EvaluateGate passes only when the cycle observed every gate signal in
// at least one profile.
func EvaluateGate(profiles []model.ProfileTelemetry) model.GateReport {
	observed := make(map[string]bool, len(gateSignals))
	for _, s := range gateSignals {
		observed[s] = false
	}
	for _, p := range profiles {
		if p.RejectReasons[SignalNoSignal] > 0 {
			observed[SignalNoSignal] = true
		}
		if p.RejectReasons[SignalAIVeto] > 0 {
			observed[SignalAIVeto] = true
		}
		if p.Execution.SkippedRisk > 0 || p.RejectReasons[SignalRiskVeto] > 0 {
			observed[SignalRiskVeto] = true
		}
		if p.Execution.OK > 0 {
			observed[SignalSuccess] = true
		}
	}
	status := model.StatusPass
	for _, s := range gateSignals {
		if !observed[s] {
			status = model.StatusPartial
			break
		}
	}
	return model.GateReport{Status: status, Observed: observed}
}

// MissingSignals lists the gate signals a report did not observe.
func MissingSignals(g model.GateReport) []string {
	var missing []string
	for _, s := range gateSignals {
		if !g.Observed[s] {
			missing = append(missing, s)
		}
	}
	return missing
}

// EvaluateMatrix checks pair-scope resolution, guardrail scope isolation,
// failure containment and profile coverage.
func EvaluateMatrix(profiles []model.ProfileTelemetry, enabledIDs []string) model.MatrixReport {
	checks := []model.MatrixCheck{
		checkPairScope(profiles),
		checkScopeIsolation(profiles),
		checkContainment(profiles, enabledIDs),
		checkCoverage(profiles, enabledIDs),
	}
	status := model.StatusPass
	for _, c := range checks {
		if c.Passed {
			continue
		}
		if c.Name == CheckCoverage {
			status = model.StatusInsufficient
			break
		}
		status = model.StatusPartial
	}
	return model.MatrixReport{Status: status, Checks: checks}
}

func checkPairScope(profiles []model.ProfileTelemetry) model.MatrixCheck {
	var bad []string
	for _, p := range profiles {
		if !p.Processed() || p.Status == model.ProfileError || p.ProfileID == "" {
			continue
		}
		switch p.PairScope {
		case model.PairScopeSelected:
			if p.ActualSymbols != p.ExpectedSymbols {
				bad = append(bad, fmt.Sprintf("%s resolved %d of %d", p.ProfileID, p.ActualSymbols, p.ExpectedSymbols))
			}
		default:
			if p.ActualSymbols == 0 {
				bad = append(bad, p.ProfileID+" resolved no symbols")
			}
		}
	}
	return check(CheckPairScope, bad)
}

func checkScopeIsolation(profiles []model.ProfileTelemetry) model.MatrixCheck {
	owner := make(map[string]string)
	scopeOf := make(map[string]string)
	var bad []string
	for _, p := range profiles {
		if p.ScopeKey == "" {
			continue
		}
		if other, ok := owner[p.ScopeKey]; ok && other != p.ProfileID {
			bad = append(bad, fmt.Sprintf("%s shared by %q and %q", p.ScopeKey, other, p.ProfileID))
		} else {
			owner[p.ScopeKey] = p.ProfileID
		}
		if prev, ok := scopeOf[p.ProfileID]; ok && prev != p.ScopeKey {
			bad = append(bad, fmt.Sprintf("%q uses %s and %s", p.ProfileID, prev, p.ScopeKey))
		} else {
			scopeOf[p.ProfileID] = p.ScopeKey
		}
	}
	return check(CheckScopeIsol, bad)
}

func checkContainment(profiles []model.ProfileTelemetry, enabledIDs []string) model.MatrixCheck {
	seen := make(map[string]bool, len(profiles))
	failures := 0
	for _, p := range profiles {
		seen[p.ProfileID] = true
		if p.Failed() {
			failures++
		}
	}
	var bad []string
	for _, id := range enabledIDs {
		if !seen[id] {
			bad = append(bad, id+" has no record")
		}
	}
	c := check(CheckContainment, bad)
	if c.Passed {
		c.Detail = fmt.Sprintf("%d failed, all %d enabled profiles recorded", failures, len(enabledIDs))
	}
	return c
}

func checkCoverage(profiles []model.ProfileTelemetry, enabledIDs []string) model.MatrixCheck {
	enabled := make(map[string]bool, len(enabledIDs))
	for _, id := range enabledIDs {
		enabled[id] = true
	}
	n := 0
	for _, p := range profiles {
		if enabled[p.ProfileID] && p.Processed() {
			n++
		}
	}
	return model.MatrixCheck{
		Name:   CheckCoverage,
		Passed: n >= MinCoverage,
		Detail: fmt.Sprintf("%d enabled profiles processed, need %d", n, MinCoverage),
	}
}

func check(name string, problems []string) model.MatrixCheck {
	if len(problems) == 0 {
		return model.MatrixCheck{Name: name, Passed: true}
	}
	return model.MatrixCheck{Name: name, Detail: strings.Join(problems, "; ")}
}

// Summarize renders the one-line rolling summary of a cycle report.
func Summarize(c model.CycleTelemetry) string {
	id := c.CycleID
	if len(id) > 8 {
		id = id[:8]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "cycle %s %s at %s: processed %d, executed %d, failed %d",
		id, c.Status, c.FinishedAt.UTC().Format("2006-01-02 15:04Z"), c.Processed, c.Executed, c.Failed)
	fmt.Fprintf(&b, " | gate %s", c.Gate.Status)
	if missing := MissingSignals(c.Gate); len(missing) > 0 && c.Gate.Status != "" {
		fmt.Fprintf(&b, " (missing %s)", strings.Join(missing, ", "))
	}
	fmt.Fprintf(&b, " | matrix %s", c.Matrix.Status)
	if len(c.RejectHistogram) > 0 {
		keys := make([]string, 0, len(c.RejectHistogram))
		for k := range c.RejectHistogram {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%d", k, c.RejectHistogram[k]))
		}
		fmt.Fprintf(&b, " | rejects %s", strings.Join(parts, " "))
	}
	if c.Error != "" {
		fmt.Fprintf(&b, " | error: %s", c.Error)
	}
	return b.String()
}
