package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ProfilePilot/internal/account"
	"ProfilePilot/internal/broker"
	"ProfilePilot/internal/execution"
	"ProfilePilot/internal/model"
	"ProfilePilot/internal/proposal"
	"ProfilePilot/internal/recorder"
	"ProfilePilot/internal/telemetry"

	"github.com/rs/zerolog"
)

type fakeScanner struct {
	mu      sync.Mutex
	calls   [][]string
	panicOn string
	started chan struct{}
	release chan struct{}
}

func (f *fakeScanner) Scan(_ context.Context, symbols []string, stop func() bool) proposal.ScanResult {
	f.mu.Lock()
	f.calls = append(f.calls, symbols)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	var rows []model.ScanRow
	for _, s := range symbols {
		if s == f.panicOn {
			panic("projection exploded")
		}
		rows = append(rows, model.ScanRow{Symbol: s, Expectancy: 0.1})
	}
	return proposal.ScanResult{Rows: rows, Scanned: len(symbols)}
}

func (f *fakeScanner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeProposer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeProposer) Aggregate(_ context.Context, acct model.Account, rows []model.ScanRow, _ func() bool) proposal.Result {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	res := proposal.Result{Reasons: map[string]int{}, Symbols: len(rows)}
	for _, r := range rows {
		res.Plans = append(res.Plans, model.TradePlan{AccountID: acct.ID, Symbol: r.Symbol, Direction: model.Long, Quantity: 1, Entry: 10, Stop: 9})
	}
	if len(rows) == 0 {
		res.Reasons["no-signal"] = 1
	}
	return res
}

type fakeExecutor struct {
	mu        sync.Mutex
	preflight int
	executed  []execution.Request
	blocked   map[string]bool
}

func (f *fakeExecutor) Preflight(_ context.Context, acct model.Account) (broker.Broker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preflight++
	if f.blocked[acct.ID] {
		return nil, &execution.BlockedError{AccountID: acct.ID, Err: execution.ErrNotArmed}
	}
	return nil, nil
}

func (f *fakeExecutor) Execute(_ context.Context, _ broker.Broker, req execution.Request) execution.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, req)
	var out execution.Outcome
	out.OK = len(req.Plans)
	return out
}

type failingProfiles struct{}

func (failingProfiles) Profiles(context.Context) ([]model.TradingProfile, error) {
	return nil, errors.New("profile editor unreachable")
}

type harness struct {
	sched    *Scheduler
	scanner  *fakeScanner
	proposer *fakeProposer
	executor *fakeExecutor
	reports  *recorder.MemoryRecorder
}

func newHarness(t *testing.T, profiles []model.TradingProfile, opts Options) *harness {
	t.Helper()
	dir, err := account.NewDirectory([]model.Account{
		{ID: "paper-1", Equity: 1000},
		{ID: "live-1", Mode: model.ModeLive},
	}, profiles)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		scanner:  &fakeScanner{},
		proposer: &fakeProposer{},
		executor: &fakeExecutor{blocked: map[string]bool{"live-1": true}},
		reports:  recorder.NewMemoryRecorder(),
	}
	h.sched = NewScheduler(context.Background(), Deps{
		Profiles:  dir,
		Accounts:  dir,
		Universe:  NewUniverse([]string{"BTC-USD", "ETH-USD", "SOL-USD"}),
		Scanner:   h.scanner,
		Proposer:  h.proposer,
		Executor:  h.executor,
		Evaluator: telemetry.NewEvaluator(telemetry.NewCategories(nil)),
		Reports:   h.reports,
	}, opts, zerolog.Nop())
	return h
}

func selected(id, accountID string, symbols ...string) model.TradingProfile {
	return model.TradingProfile{ID: id, AccountID: accountID, PairScope: model.PairScopeSelected,
		SelectedSymbols: symbols, MaxTradesPerCycle: 3, IntervalMinutes: 5, Enabled: true}
}

func TestZeroEnabledProfilesRunsOneAdHocPass(t *testing.T) {
	disabled := selected("off", "paper-1", "BTC-USD")
	disabled.Enabled = false
	h := newHarness(t, []model.TradingProfile{disabled}, Options{AdHoc: AdHoc{AccountID: "paper-1", Symbols: []string{"eth-usd"}}})

	report, err := h.sched.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if h.scanner.Calls() != 1 || h.proposer.calls != 1 || h.executor.preflight != 1 || len(h.executor.executed) != 1 {
		t.Fatalf("expected exactly one pass, got scan=%d propose=%d preflight=%d execute=%d",
			h.scanner.Calls(), h.proposer.calls, h.executor.preflight, len(h.executor.executed))
	}
	if !report.AdHoc || len(report.Profiles) != 1 {
		t.Fatalf("expected a single ad-hoc record, got %+v", report)
	}
	req := h.executor.executed[0]
	if req.Scope != "account:paper-1" || req.ProfileID != "" || req.Plans[0].Symbol != "ETH-USD" {
		t.Errorf("ad-hoc request not scoped to the account: %+v", req)
	}
}

func TestProfileFailureIsContained(t *testing.T) {
	profiles := []model.TradingProfile{
		selected("p1", "paper-1", "BTC-USD", "ETH-USD"),
		selected("p2", "paper-1", "BOOM-USD"),
		selected("p3", "live-1", "SOL-USD"),
		selected("p4", "ghost", "SOL-USD"),
		{ID: "p5", AccountID: "paper-1", PairScope: model.PairScopeAll, Enabled: true},
	}
	h := newHarness(t, profiles, Options{MaxSymbolsAll: 2})
	h.scanner.panicOn = "BOOM-USD"

	report, err := h.sched.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(report.Profiles) != len(profiles) {
		t.Fatalf("expected %d profile records, got %d", len(profiles), len(report.Profiles))
	}
	want := []model.ProfileStatus{model.ProfileExecuted, model.ProfileError, model.ProfileBlocked, model.ProfileError, model.ProfileExecuted}
	for i, p := range report.Profiles {
		if p.ProfileID != profiles[i].ID || p.Status != want[i] {
			t.Errorf("profile %d: got %s/%s, want %s/%s (%s)", i, p.ProfileID, p.Status, profiles[i].ID, want[i], p.Detail)
		}
	}
	if !strings.Contains(report.Profiles[1].Detail, "projection exploded") {
		t.Errorf("panic detail missing: %q", report.Profiles[1].Detail)
	}
	if p5 := report.Profiles[4]; p5.ActualSymbols != 2 || p5.Execution.OK != 2 {
		t.Errorf("All scope should resolve the capped universe: %+v", p5)
	}
	if report.Processed != 5 || report.Executed != 2 || report.Failed != 3 {
		t.Errorf("unexpected counts %d/%d/%d", report.Processed, report.Executed, report.Failed)
	}
	if report.Matrix.Status != "PASS" {
		t.Errorf("matrix should pass, got %s: %+v", report.Matrix.Status, report.Matrix.Checks)
	}

	saved, err := h.reports.LatestReport(context.Background())
	if err != nil || saved.CycleID != report.CycleID {
		t.Fatalf("report not persisted: %v", err)
	}
}

func TestThrottledProfilesAreSkipped(t *testing.T) {
	h := newHarness(t, []model.TradingProfile{selected("p1", "paper-1", "BTC-USD")}, Options{})
	if _, err := h.sched.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	report, err := h.sched.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Profiles[0].Status != model.ProfileSkipped || !strings.HasPrefix(report.Profiles[0].Detail, "throttled") {
		t.Fatalf("second cycle should be throttled, got %+v", report.Profiles[0])
	}
	if h.scanner.Calls() != 1 {
		t.Fatalf("expected one scan, got %d", h.scanner.Calls())
	}
}

func TestSingleFlightAndStop(t *testing.T) {
	profiles := []model.TradingProfile{
		selected("p1", "paper-1", "BTC-USD"),
		selected("p2", "paper-1", "ETH-USD"),
		selected("p3", "paper-1", "SOL-USD"),
	}
	h := newHarness(t, profiles, Options{})
	h.scanner.started = make(chan struct{})
	h.scanner.release = make(chan struct{})

	type result struct {
		report model.CycleTelemetry
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := h.sched.RunCycle(context.Background())
		done <- result{r, err}
	}()

	select {
	case <-h.scanner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not start")
	}

	if _, err := h.sched.RunCycle(context.Background()); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("expected ErrCycleRunning, got %v", err)
	}
	if err := h.sched.RunNow(); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("RunNow should be ignored, got %v", err)
	}
	if st := h.sched.Status(); !st.Running || st.CycleID == "" {
		t.Fatalf("status should report running cycle: %+v", st)
	}
	if !h.sched.RequestStop() {
		t.Fatal("RequestStop should report a running cycle")
	}
	close(h.scanner.release)

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not finish")
	}
	if res.err != nil {
		t.Fatalf("stop must not surface as error: %v", res.err)
	}
	if res.report.Status != model.CycleStopped {
		t.Fatalf("expected stopped cycle, got %s", res.report.Status)
	}
	if len(res.report.Profiles) != 3 {
		t.Fatalf("expected a record per enabled profile, got %d", len(res.report.Profiles))
	}
	for _, p := range res.report.Profiles[1:] {
		if p.Status != model.ProfileSkipped || p.Detail != stopDetail {
			t.Errorf("remaining profile should be abandoned: %+v", p)
		}
	}
	if h.scanner.Calls() != 1 {
		t.Errorf("no work after stop, got %d scans", h.scanner.Calls())
	}
	if h.sched.Status().Running || h.sched.RequestStop() {
		t.Error("scheduler should be idle after the cycle")
	}
}

func TestCycleLevelFailureStillFlushes(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.sched.deps.Profiles = failingProfiles{}

	report, err := h.sched.RunCycle(context.Background())
	if err == nil || report.Status != model.CycleFailed || report.Error == "" {
		t.Fatalf("expected failed cycle, got %v / %+v", err, report)
	}
	if _, err := h.reports.LatestReport(context.Background()); err != nil {
		t.Fatalf("failed cycle should still be persisted: %v", err)
	}
	if !strings.Contains(h.sched.StatusLine(), "failed") {
		t.Errorf("status line should carry the last summary: %q", h.sched.StatusLine())
	}
}

func TestHandleCommand(t *testing.T) {
	h := newHarness(t, nil, Options{})

	if got := h.sched.HandleCommand("/report"); got != "no report recorded yet" {
		t.Errorf("unexpected /report reply %q", got)
	}
	if got := h.sched.HandleCommand("/stop"); got != "no cycle is running" {
		t.Errorf("unexpected /stop reply %q", got)
	}
	if got := h.sched.HandleCommand("/status@pilot_bot"); got != "idle" {
		t.Errorf("unexpected /status reply %q", got)
	}
	if got := h.sched.HandleCommand("hello"); !strings.Contains(got, "/run") {
		t.Errorf("unknown command should print help, got %q", got)
	}
	if _, err := h.sched.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.sched.HandleCommand("/report"); !strings.Contains(got, "Cycle") {
		t.Errorf("expected formatted report, got %q", got)
	}
}

func TestThrottle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	th := NewThrottle(func() time.Time { return now })
	p := model.TradingProfile{ID: "P1", IntervalMinutes: 0}

	if !th.ShouldRun(p) {
		t.Fatal("never-run profile should run")
	}
	th.MarkRun(p)
	now = now.Add(59 * time.Second)
	if th.ShouldRun(model.TradingProfile{ID: "p1"}) {
		t.Fatal("interval is at least one minute")
	}
	now = now.Add(time.Second)
	if !th.ShouldRun(p) {
		t.Fatal("profile should run once the interval elapsed")
	}
	if !th.NextRun(model.TradingProfile{ID: "other"}).IsZero() {
		t.Fatal("unknown profile has no next run")
	}
}

type universeSource struct {
	symbols []string
	err     error
	block   bool
}

func (u universeSource) Universe(ctx context.Context) ([]string, error) {
	if u.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return u.symbols, u.err
}

func TestUniverse(t *testing.T) {
	u := NewUniverse([]string{"btc-usd", "BTC-USD", "eth-usd"})
	if got := u.Symbols(0); len(got) != 2 || got[0] != "BTC-USD" {
		t.Fatalf("fallback not normalized: %v", got)
	}

	testCases := []struct {
		name string
		src  universeSource
		want int
	}{
		{"error keeps fallback", universeSource{err: errors.New("503")}, 2},
		{"empty keeps fallback", universeSource{}, 2},
		{"timeout keeps fallback", universeSource{block: true}, 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := u.Load(context.Background(), tc.src, 20*time.Millisecond); err == nil {
				t.Fatal("expected error")
			}
			if got := len(u.Symbols(0)); got != tc.want {
				t.Fatalf("expected %d symbols, got %d", tc.want, got)
			}
		})
	}

	if err := u.Load(context.Background(), universeSource{symbols: []string{"A", "B", "C", "D"}}, time.Second); err != nil {
		t.Fatal(err)
	}
	if got := u.Symbols(3); len(got) != 3 || got[2] != "C" {
		t.Fatalf("expected capped list, got %v", got)
	}
}

func TestSelectedScopeMismatchFailsMatrix(t *testing.T) {
	profiles := []model.TradingProfile{
		selected("dup", "paper-1", "btc-usd", "BTC-USD", "  "),
		selected("clean", "paper-1", "ETH-USD"),
	}
	h := newHarness(t, profiles, Options{})

	report, err := h.sched.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	dup := report.Profiles[0]
	if dup.ExpectedSymbols != 3 || dup.ActualSymbols != 1 {
		t.Fatalf("expected 3 configured and 1 resolved symbol, got %d/%d", dup.ExpectedSymbols, dup.ActualSymbols)
	}
	if clean := report.Profiles[1]; clean.ExpectedSymbols != 1 || clean.ActualSymbols != 1 {
		t.Fatalf("clean profile should resolve fully: %+v", clean)
	}
	if report.Matrix.Status != model.StatusPartial {
		t.Fatalf("expected PARTIAL matrix, got %s: %+v", report.Matrix.Status, report.Matrix.Checks)
	}
	for _, c := range report.Matrix.Checks {
		if c.Name == telemetry.CheckPairScope && (c.Passed || !strings.Contains(c.Detail, "dup")) {
			t.Errorf("pair-scope check should flag dup: %+v", c)
		}
	}
}

func TestStopWaitsForBackgroundCycle(t *testing.T) {
	h := newHarness(t, []model.TradingProfile{selected("p1", "paper-1", "BTC-USD")}, Options{})
	h.scanner.started = make(chan struct{})
	h.scanner.release = make(chan struct{})

	if err := h.sched.RunNow(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.scanner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not start")
	}

	stopped := make(chan struct{})
	go func() {
		h.sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a cycle was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(h.scanner.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the cycle ended")
	}
	report, err := h.reports.LatestReport(context.Background())
	if err != nil {
		t.Fatalf("background cycle report not persisted before Stop returned: %v", err)
	}
	if report.Status != model.CycleStopped {
		t.Errorf("expected stopped cycle, got %s", report.Status)
	}
}

func TestLatestReportWithoutStore(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.sched.deps.Reports = nil

	if _, err := h.sched.LatestReport(context.Background()); !errors.Is(err, recorder.ErrNoReport) {
		t.Fatalf("expected ErrNoReport, got %v", err)
	}
	if got := h.sched.HandleCommand("/report"); got != "no report recorded yet" {
		t.Errorf("unexpected /report reply %q", got)
	}
}
