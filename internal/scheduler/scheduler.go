// Package scheduler drives trading cycles: one at a time, profile by
// profile, on a fixed interval or on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ProfilePilot/internal/broker"
	"ProfilePilot/internal/execution"
	"ProfilePilot/internal/guardrail"
	"ProfilePilot/internal/metrics"
	"ProfilePilot/internal/model"
	"ProfilePilot/internal/notifier"
	"ProfilePilot/internal/proposal"
	"ProfilePilot/internal/recorder"
	"ProfilePilot/internal/telemetry"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrCycleRunning is returned when a trigger arrives while a cycle is active.
var ErrCycleRunning = errors.New("scheduler: cycle already running")

const stopDetail = "stop requested"

// ProfileSource lists the configured trading profiles in order.
type ProfileSource interface {
	Profiles(ctx context.Context) ([]model.TradingProfile, error)
}

// AccountSource resolves an account reference.
type AccountSource interface {
	Account(ctx context.Context, id string) (model.Account, error)
}

// Scanner projects a symbol list.
type Scanner interface {
	Scan(ctx context.Context, symbols []string, stop func() bool) proposal.ScanResult
}

// Proposer turns scan rows into ranked plans.
type Proposer interface {
	Aggregate(ctx context.Context, acct model.Account, rows []model.ScanRow, stop func() bool) proposal.Result
}

// Executor gates and places plans.
type Executor interface {
	Preflight(ctx context.Context, acct model.Account) (broker.Broker, error)
	Execute(ctx context.Context, brk broker.Broker, req execution.Request) execution.Outcome
}

// AdHoc is the context of the pass run when no profile is enabled.
type AdHoc struct {
	AccountID        string
	Symbols          []string
	MaxTrades        int
	CooldownMinutes  int
	DailyRiskStopPct float64
}

// Options are the scheduler tunables.
type Options struct {
	IntervalMinutes int
	MaxSymbolsAll   int
	StateFile       string
	AdHoc           AdHoc
}

// Deps bundles the collaborators of a Scheduler.
type Deps struct {
	Profiles  ProfileSource
	Accounts  AccountSource
	Universe  *Universe
	Scanner   Scanner
	Proposer  Proposer
	Executor  Executor
	Ledger    *guardrail.Ledger
	Evaluator *telemetry.Evaluator
	Reports   recorder.ReportStore
	Notifier  notifier.Notifier
	Now       func() time.Time
}

// Snapshot is the rolling status shown to operators.
type Snapshot struct {
	Running     bool      `json:"running"`
	CycleID     string    `json:"cycle_id,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	StopPending bool      `json:"stop_pending"`
	LastSummary string    `json:"last_summary,omitempty"`
}

// Scheduler owns the cycle loop and the single-flight flag.
type Scheduler struct {
	cron     *cron.Cron
	deps     Deps
	opts     Options
	throttle *Throttle
	now      func() time.Time
	logger   zerolog.Logger
	ctx      context.Context

	mu          sync.Mutex
	running     bool
	cycleID     string
	startedAt   time.Time
	lastSummary string

	stop atomic.Bool
	bg   sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, deps Deps, opts Options, logger zerolog.Logger) *Scheduler {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier.Nop{}
	}
	if deps.Universe == nil {
		deps.Universe = NewUniverse(nil)
	}
	if opts.IntervalMinutes < 1 {
		opts.IntervalMinutes = 1
	}
	return &Scheduler{
		cron:     cron.New(),
		deps:     deps,
		opts:     opts,
		throttle: NewThrottle(now),
		now:      now,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		ctx:      ctx,
	}
}

// Register installs the interval trigger.
func (s *Scheduler) Register() error {
	spec := fmt.Sprintf("@every %dm", s.opts.IntervalMinutes)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("register cycle task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("interval_minutes", s.opts.IntervalMinutes).Msg("scheduler started")
}

// Stop requests a cooperative stop and waits for running cycles, cron
// triggered or started by RunNow, to flush and end.
func (s *Scheduler) Stop() {
	s.RequestStop()
	<-s.cron.Stop().Done()
	s.bg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) tick() {
	if _, err := s.RunCycle(s.ctx); errors.Is(err, ErrCycleRunning) {
		s.logger.Debug().Msg("trigger ignored, cycle still running")
	}
}

// RunCycle runs one cycle synchronously. The report is returned even when
// the cycle failed; err is ErrCycleRunning or the cycle-level failure.
func (s *Scheduler) RunCycle(ctx context.Context) (model.CycleTelemetry, error) {
	id, ok := s.begin()
	if !ok {
		return model.CycleTelemetry{}, ErrCycleRunning
	}
	return s.execute(ctx, id)
}

// RunNow starts a cycle in the background.
func (s *Scheduler) RunNow() error {
	id, ok := s.begin()
	if !ok {
		return ErrCycleRunning
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		_, _ = s.execute(s.ctx, id)
	}()
	return nil
}

// RequestStop asks the running cycle to stop at the next poll point. It
// reports whether a cycle was running.
func (s *Scheduler) RequestStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.stop.Store(true)
	s.logger.Info().Str("cycle_id", s.cycleID).Msg("stop requested")
	return true
}

// Status returns the rolling status.
func (s *Scheduler) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Running: s.running, LastSummary: s.lastSummary, StopPending: s.running && s.stop.Load()}
	if s.running {
		snap.CycleID = s.cycleID
		snap.StartedAt = s.startedAt
	}
	return snap
}

// LatestReport reads back the most recent persisted report.
func (s *Scheduler) LatestReport(ctx context.Context) (model.CycleTelemetry, error) {
	if s.deps.Reports == nil {
		return model.CycleTelemetry{}, recorder.ErrNoReport
	}
	return s.deps.Reports.LatestReport(ctx)
}

// StatusLine renders Status for chat and logs.
func (s *Scheduler) StatusLine() string {
	st := s.Status()
	var b strings.Builder
	if st.Running {
		fmt.Fprintf(&b, "running cycle %s since %s", shortID(st.CycleID), st.StartedAt.UTC().Format("15:04:05"))
		if st.StopPending {
			b.WriteString(" (stopping)")
		}
	} else {
		b.WriteString("idle")
	}
	if st.LastSummary != "" {
		b.WriteString("\nlast: " + st.LastSummary)
	}
	return b.String()
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(strings.ToLower(command))
	if len(fields) == 0 {
		return helpText
	}
	switch strings.Split(fields[0], "@")[0] {
	case "/status":
		return s.StatusLine()
	case "/run":
		if err := s.RunNow(); err != nil {
			return "a cycle is already running"
		}
		return "cycle started"
	case "/stop":
		if s.RequestStop() {
			return "stop requested, the cycle ends at the next checkpoint"
		}
		return "no cycle is running"
	case "/report":
		report, err := s.LatestReport(s.ctx)
		if errors.Is(err, recorder.ErrNoReport) {
			return "no report recorded yet"
		}
		if err != nil {
			return "failed to read report: " + err.Error()
		}
		return notifier.FormatCycleReport(report)
	default:
		return helpText
	}
}

const helpText = "commands:\n/status - rolling status\n/run - start a cycle now\n/stop - stop the running cycle\n/report - latest cycle report"

func (s *Scheduler) begin() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return "", false
	}
	s.running = true
	s.stop.Store(false)
	s.cycleID = uuid.New().String()
	s.startedAt = s.now()
	return s.cycleID, true
}

func (s *Scheduler) end(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.stop.Store(false)
	s.cycleID = ""
	if summary != "" {
		s.lastSummary = summary
	}
}

func (s *Scheduler) stopRequested() bool {
	return s.stop.Load()
}

func (s *Scheduler) execute(ctx context.Context, cycleID string) (report model.CycleTelemetry, cycleErr error) {
	summary := ""
	defer func() { s.end(summary) }()

	logger := s.logger.With().Str("cycle_id", cycleID).Logger()
	report = model.CycleTelemetry{CycleID: cycleID, StartedAt: s.now(), Status: model.CycleCompleted}
	logger.Info().Msg("cycle started")

	cycleErr = s.runProfiles(ctx, &report, logger)
	if cycleErr != nil {
		report.Status = model.CycleFailed
		report.Error = cycleErr.Error()
		logger.Error().Err(cycleErr).Msg("cycle failed")
	}
	report.FinishedAt = s.now()
	if s.deps.Evaluator != nil {
		s.deps.Evaluator.Finalize(&report)
	}

	s.flush(ctx, report, logger)
	summary = telemetry.Summarize(report)
	logger.Info().Str("status", string(report.Status)).Int("processed", report.Processed).
		Int("executed", report.Executed).Int("failed", report.Failed).
		Str("gate", report.Gate.Status).Str("matrix", report.Matrix.Status).Msg("cycle finished")
	return report, cycleErr
}

// runProfiles fills report.Profiles. A returned error is a cycle-level
// failure; profile failures are contained in their records.
func (s *Scheduler) runProfiles(ctx context.Context, report *model.CycleTelemetry, logger zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	profiles, err := s.deps.Profiles.Profiles(ctx)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	var enabled []model.TradingProfile
	for _, p := range profiles {
		if p.Enabled {
			enabled = append(enabled, p)
			report.EnabledProfileIDs = append(report.EnabledProfileIDs, p.ID)
		}
	}

	if len(enabled) == 0 {
		report.AdHoc = true
		logger.Info().Str("account", s.opts.AdHoc.AccountID).Msg("no enabled profile, running ad-hoc pass")
		report.Profiles = append(report.Profiles, s.runProfile(ctx, s.adHocProfile(), logger))
		if s.stopRequested() {
			report.Status = model.CycleStopped
		}
		return nil
	}

	for i, p := range enabled {
		if s.stopRequested() || ctx.Err() != nil {
			s.abandon(report, enabled[i:], logger)
			return nil
		}
		if !s.throttle.ShouldRun(p) {
			report.Profiles = append(report.Profiles, s.skipped(p, fmt.Sprintf("throttled until %s",
				s.throttle.NextRun(p).UTC().Format("15:04:05"))))
			continue
		}
		s.throttle.MarkRun(p)
		report.Profiles = append(report.Profiles, s.runProfile(ctx, p, logger))
	}
	if s.stopRequested() {
		report.Status = model.CycleStopped
	}
	return nil
}

func (s *Scheduler) abandon(report *model.CycleTelemetry, rest []model.TradingProfile, logger zerolog.Logger) {
	report.Status = model.CycleStopped
	for _, p := range rest {
		report.Profiles = append(report.Profiles, s.skipped(p, stopDetail))
	}
	logger.Info().Int("abandoned", len(rest)).Msg("cycle stopped")
}

func (s *Scheduler) skipped(p model.TradingProfile, detail string) model.ProfileTelemetry {
	scope := guardrail.ScopeKey(p.ID, p.AccountID)
	return telemetry.StartProfile(p, "", scope, s.now).Finish(model.ProfileSkipped, detail)
}

func (s *Scheduler) adHocProfile() model.TradingProfile {
	a := s.opts.AdHoc
	p := model.TradingProfile{
		Name:              "ad-hoc",
		AccountID:         a.AccountID,
		PairScope:         model.PairScopeAll,
		MaxTradesPerCycle: a.MaxTrades,
		CooldownMinutes:   a.CooldownMinutes,
		DailyRiskStopPct:  a.DailyRiskStopPct,
		Enabled:           true,
	}
	if len(a.Symbols) > 0 {
		p.PairScope = model.PairScopeSelected
		p.SelectedSymbols = a.Symbols
	}
	return p
}

// runProfile runs scan, propose and execute for one profile. Panics and
// errors end up in the returned record with status error.
func (s *Scheduler) runProfile(ctx context.Context, p model.TradingProfile, parent zerolog.Logger) (t model.ProfileTelemetry) {
	scope := guardrail.ScopeKey(p.ID, p.AccountID)
	logger := parent.With().Str("profile_id", p.ID).Str("scope", scope).Logger()
	rec := telemetry.StartProfile(p, "", scope, s.now)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("profile failed")
			t = rec.Finish(model.ProfileError, fmt.Sprintf("panic: %v", r))
		}
		metrics.ProfileStatusTotal.WithLabelValues(string(t.Status)).Inc()
	}()

	symbols := s.resolveSymbols(p)
	rec.Symbols(configuredSymbols(p, symbols), len(symbols))

	acct, err := s.deps.Accounts.Account(ctx, p.AccountID)
	if err != nil {
		logger.Error().Err(err).Msg("profile failed")
		return rec.Finish(model.ProfileError, err.Error())
	}

	brk, err := s.deps.Executor.Preflight(ctx, acct)
	if err != nil {
		var blocked *execution.BlockedError
		if errors.As(err, &blocked) {
			logger.Warn().Err(err).Msg("profile blocked")
			return rec.Finish(model.ProfileBlocked, err.Error())
		}
		logger.Error().Err(err).Msg("profile failed")
		return rec.Finish(model.ProfileError, err.Error())
	}

	scan := s.deps.Scanner.Scan(ctx, symbols, s.stopRequested)
	rec.ScanRows(len(scan.Rows))
	if scan.Stopped {
		return rec.Finish(model.ProfileSkipped, stopDetail)
	}

	prop := s.deps.Proposer.Aggregate(ctx, acct, scan.Rows, s.stopRequested)
	rec.Proposals(len(prop.Plans), prop.Reasons, prop.Tags)
	if prop.Stopped {
		return rec.Finish(model.ProfileSkipped, stopDetail)
	}

	out := s.deps.Executor.Execute(ctx, brk, execution.Request{
		Account:          acct,
		ProfileID:        p.ID,
		Scope:            scope,
		MaxTrades:        p.MaxTradesPerCycle,
		CooldownMinutes:  p.CooldownMinutes,
		DailyRiskStopPct: p.DailyRiskStopPct,
		Plans:            prop.Plans,
		Stop:             s.stopRequested,
	})
	rec.Execution(out.ExecutionCounts)

	detail := ""
	if out.Stopped {
		detail = stopDetail
	}
	status := telemetry.ExecutionStatus(out.ExecutionCounts)
	logger.Info().Str("status", string(status)).Int("symbols", len(symbols)).Int("rows", len(scan.Rows)).
		Int("proposed", len(prop.Plans)).Int("ok", out.OK).Int("failed", out.Failed).
		Int("vetoed", out.GuardrailVetoes()).Int("exits", out.ProtectiveExits).Msg("profile finished")
	return rec.Finish(status, detail)
}

// configuredSymbols is the symbol count the profile asks for: every
// configured entry for Selected scope, the capped universe for All.
func configuredSymbols(p model.TradingProfile, resolved []string) int {
	if p.PairScope == model.PairScopeSelected {
		return len(p.SelectedSymbols)
	}
	return len(resolved)
}

func (s *Scheduler) resolveSymbols(p model.TradingProfile) []string {
	if p.PairScope == model.PairScopeSelected {
		return normalizeSymbols(p.SelectedSymbols)
	}
	return s.deps.Universe.Symbols(s.opts.MaxSymbolsAll)
}

// flush persists the report and the ledger, updates metrics and notifies.
// Failures are logged; the cycle result stands.
func (s *Scheduler) flush(ctx context.Context, report model.CycleTelemetry, logger zerolog.Logger) {
	// Persist with a fresh context so a cancelled cycle still leaves a report.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if s.deps.Reports != nil {
		if err := s.deps.Reports.SaveReport(persistCtx, report); err != nil {
			logger.Error().Err(err).Msg("persist cycle report")
		}
	}
	if s.deps.Ledger != nil && s.opts.StateFile != "" {
		if err := guardrail.SaveState(s.opts.StateFile, s.deps.Ledger.Snapshot()); err != nil {
			logger.Error().Err(err).Msg("save guardrail state")
		}
	}

	metrics.CyclesTotal.WithLabelValues(string(report.Status)).Inc()
	for category, n := range report.RejectHistogram {
		metrics.RejectsTotal.WithLabelValues(category).Add(float64(n))
	}
	if report.Gate.Status != "" {
		metrics.SetGate(report.Gate.Status, model.StatusPass, model.StatusPartial, model.StatusInsufficient)
	}

	if err := s.deps.Notifier.Notify(persistCtx, notifier.FormatCycleReport(report)); err != nil {
		logger.Warn().Err(err).Msg("send cycle report")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
