// Package execution applies guardrails to ranked trade plans and places
// the survivors through the account's broker.
package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ProfilePilot/internal/account"
	"ProfilePilot/internal/broker"
	"ProfilePilot/internal/guardrail"
	"ProfilePilot/internal/metrics"
	"ProfilePilot/internal/model"
	"ProfilePilot/internal/paper"
	"ProfilePilot/internal/proposal"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// History is the trade audit store.
type History interface {
	AppendTrade(ctx context.Context, rec model.TradeRecord) error
	LoadTrades(ctx context.Context, accountID string, since time.Time) ([]model.TradeRecord, error)
}

// Config holds the coordinator tunables.
type Config struct {
	LookbackHours       int
	ProtectiveWatchdogs []string
	ReplanInterval      time.Duration
}

// Request is one execution pass for one profile.
type Request struct {
	Account          model.Account
	ProfileID        string
	Scope            string
	MaxTrades        int
	CooldownMinutes  int
	DailyRiskStopPct float64
	Plans            []model.TradePlan
	Stop             func() bool
}

// Outcome is the counted result of an execution pass.
type Outcome struct {
	model.ExecutionCounts
	Attempted int
	Replanned int
	Exits     []paper.Exit
	Stopped   bool
}

// Coordinator owns the placement loop. It mutates the ledger and book and
// must only be driven from the cycle goroutine.
type Coordinator struct {
	ledger    *guardrail.Ledger
	book      *paper.Book
	brokers   *broker.Registry
	creds     account.CredentialChecker
	history   History
	prices    paper.PriceSource
	replanner paper.Replanner
	cfg       Config
	now       func() time.Time
	logger    zerolog.Logger
}

// Deps bundles the collaborators of a Coordinator.
type Deps struct {
	Ledger      *guardrail.Ledger
	Book        *paper.Book
	Brokers     *broker.Registry
	Credentials account.CredentialChecker
	History     History
	Prices      paper.PriceSource
	Replanner   paper.Replanner
	Now         func() time.Time
}

func NewCoordinator(deps Deps, cfg Config, logger zerolog.Logger) *Coordinator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cfg.LookbackHours = guardrail.ClampLookbackHours(cfg.LookbackHours)
	return &Coordinator{
		ledger:    deps.Ledger,
		book:      deps.Book,
		brokers:   deps.Brokers,
		creds:     deps.Credentials,
		history:   deps.History,
		prices:    deps.Prices,
		replanner: deps.Replanner,
		cfg:       cfg,
		now:       now,
		logger:    logger.With().Str("component", "execution").Logger(),
	}
}

// Preflight resolves the broker of an account and checks that it may
// trade. Failures are *BlockedError.
func (c *Coordinator) Preflight(ctx context.Context, acct model.Account) (broker.Broker, error) {
	brk, err := c.brokers.For(acct)
	if err != nil {
		return nil, blocked(acct.ID, err)
	}
	caps := brk.GetCapabilities(ctx)
	if !caps.SupportsMarketEntry {
		return nil, blocked(acct.ID, ErrMarketEntryUnsupported)
	}
	if acct.IsPaper() {
		return brk, nil
	}
	if !caps.SupportsProtectiveExits && !c.watchdogRecognized(acct.ProtectiveWatchdog) {
		return nil, blocked(acct.ID, ErrNoProtectiveExit)
	}
	if c.creds == nil {
		return nil, blocked(acct.ID, ErrMissingCredential)
	}
	ok, err := c.creds.HasCredential(ctx, acct)
	if err != nil {
		return nil, blocked(acct.ID, fmt.Errorf("%w: %v", ErrMissingCredential, err))
	}
	if !ok {
		return nil, blocked(acct.ID, ErrMissingCredential)
	}
	if !acct.Armed {
		return nil, blocked(acct.ID, ErrNotArmed)
	}
	return brk, nil
}

func (c *Coordinator) watchdogRecognized(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, w := range c.cfg.ProtectiveWatchdogs {
		if strings.EqualFold(w, name) {
			return true
		}
	}
	return false
}

// Execute runs paper maintenance for paper accounts and then walks the
// ranked plans until MaxTrades placements were attempted. Guardrail and
// validation rejections are counted, never returned as errors.
func (c *Coordinator) Execute(ctx context.Context, brk broker.Broker, req Request) Outcome {
	var out Outcome
	acct := req.Account
	scope := req.Scope
	if scope == "" {
		scope = guardrail.ScopeKey(req.ProfileID, acct.ID)
	}
	logger := c.logger.With().Str("account", acct.ID).Str("scope", scope).Logger()

	if acct.IsPaper() && c.book != nil {
		out.Replanned = c.book.Replan(ctx, acct.ID, c.replanner, c.cfg.ReplanInterval)
		if c.prices != nil {
			out.Exits = c.book.EvaluateExits(ctx, acct.ID, c.prices, c.ledger, c.history)
			out.ProtectiveExits = len(out.Exits)
		}
	}

	persisted := c.persistedOpen(ctx, acct.ID)

	for _, plan := range req.Plans {
		if req.MaxTrades > 0 && out.Attempted >= req.MaxTrades {
			break
		}
		if stopped(ctx, req.Stop) {
			out.Stopped = true
			break
		}
		if plan.AccountID == "" {
			plan.AccountID = acct.ID
		}
		plan.Symbol = model.NormalizeSymbol(plan.Symbol)

		if c.ledger.IsOnCooldown(scope, plan.Symbol, req.CooldownMinutes) {
			out.SkippedCooldown++
			logger.Debug().Str("symbol", plan.Symbol).Msg("skip: cooldown")
			continue
		}
		if v := c.ledger.CheckOpenPositions(acct.ID, acct.MaxOpenPositions, persisted); !v.Allowed {
			out.SkippedOpenCap++
			logger.Debug().Str("symbol", plan.Symbol).Int("open", v.Open()).Int("limit", v.Limit).Msg("skip: open-position cap")
			continue
		}
		if v := c.ledger.CheckRisk(scope, plan, acct.Equity, req.DailyRiskStopPct); !v.Allowed {
			out.SkippedRisk++
			logger.Debug().Str("symbol", plan.Symbol).Str("risk", v.String()).Msg("skip: daily risk cap")
			continue
		}
		ack, err := brk.ValidateTradePlan(ctx, plan)
		if err != nil || !ack.OK {
			out.SkippedValidation++
			logger.Warn().Err(err).Str("symbol", plan.Symbol).Str("message", ack.Message).Msg("skip: validation failed")
			continue
		}

		out.Attempted++
		ack, err = brk.PlaceOrder(ctx, plan)
		if err != nil || !ack.OK {
			out.Failed++
			msg := ack.Message
			if err != nil {
				msg = err.Error()
			}
			c.audit(ctx, req, scope, plan, model.TradeFailed, msg)
			metrics.OrdersTotal.WithLabelValues(string(modeOf(acct)), "failed").Inc()
			logger.Warn().Str("symbol", plan.Symbol).Str("message", msg).Msg("order failed")
			continue
		}

		out.OK++
		c.ledger.AddUsed(scope, plan.Risk())
		c.ledger.MarkCooldown(scope, plan.Symbol)
		if acct.IsPaper() && c.book != nil {
			if _, created := c.book.Upsert(acct.ID, plan, scope); created {
				c.ledger.IncOpen(acct.ID)
			}
		} else {
			c.ledger.IncOpen(acct.ID)
		}
		c.audit(ctx, req, scope, plan, model.TradeExecuted, ack.Message)
		metrics.OrdersTotal.WithLabelValues(string(modeOf(acct)), "ok").Inc()
		logger.Info().Str("symbol", plan.Symbol).Str("side", plan.Direction.String()).
			Float64("qty", plan.Quantity).Float64("entry", plan.Entry).Str("order_id", ack.OrderID).
			Msg("order placed")
	}
	return out
}

func (c *Coordinator) persistedOpen(ctx context.Context, accountID string) int {
	if c.history == nil {
		return 0
	}
	now := c.now()
	since := now.Add(-time.Duration(c.cfg.LookbackHours) * time.Hour)
	records, err := c.history.LoadTrades(ctx, accountID, since)
	if err != nil {
		c.logger.Warn().Err(err).Str("account", accountID).Msg("load trade history, using session count only")
		return 0
	}
	return guardrail.PersistedOpenCount(records, accountID, now, c.cfg.LookbackHours)
}

func (c *Coordinator) audit(ctx context.Context, req Request, scope string, plan model.TradePlan, status, result string) {
	if c.history == nil {
		return
	}
	rec := model.TradeRecord{
		ID:        uuid.New().String(),
		Time:      c.now(),
		AccountID: req.Account.ID,
		ProfileID: req.ProfileID,
		Scope:     scope,
		Mode:      modeOf(req.Account),
		Symbol:    plan.Symbol,
		Strategy:  plan.Strategy,
		Direction: plan.Direction,
		Quantity:  plan.Quantity,
		Entry:     plan.Entry,
		Stop:      plan.Stop,
		Target:    plan.Target,
		Status:    status,
		Result:    result,
		Note:      proposal.StripNoteTags(plan.Note),
	}
	if err := c.history.AppendTrade(ctx, rec); err != nil {
		c.logger.Error().Err(err).Str("symbol", plan.Symbol).Msg("audit trade")
	}
}

func modeOf(acct model.Account) model.AccountMode {
	if acct.IsPaper() {
		return model.ModePaper
	}
	return acct.Mode
}

func stopped(ctx context.Context, stop func() bool) bool {
	return ctx.Err() != nil || (stop != nil && stop())
}
