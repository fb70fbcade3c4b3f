package proposal

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"ProfilePilot/internal/model"
	"ProfilePilot/internal/planner"

	"github.com/rs/zerolog"
)

// Reason codes produced locally.
const (
	ReasonNoSignal     = "no-signal"
	ReasonPlannerError = "planner-error"
)

var noteTag = regexp.MustCompile(`\[(route|venue|policy):([^\]\s]+)\]`)

// SymbolGroup holds the scan rows of one symbol ranked by expectancy.
type SymbolGroup struct {
	Symbol string
	Rows   []model.ScanRow
}

// Result is the aggregated proposal output of one pass.
type Result struct {
	Plans   []model.TradePlan
	Reasons map[string]int
	Tags    map[string]int
	Symbols int
	Stopped bool
}

// Aggregator asks the planner for plans symbol by symbol.
type Aggregator struct {
	planner     planner.Planner
	pacer       *Pacer
	granularity int
	logger      zerolog.Logger
}

func NewAggregator(p planner.Planner, pacer *Pacer, granularityMinutes int, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		planner:     p,
		pacer:       pacer,
		granularity: granularityMinutes,
		logger:      logger.With().Str("component", "aggregator").Logger(),
	}
}

// GroupRows groups rows by symbol. Each group is sorted by expectancy
// descending and the groups are ordered by their best expectancy.
func GroupRows(rows []model.ScanRow) []SymbolGroup {
	index := make(map[string]int)
	var groups []SymbolGroup
	for _, row := range rows {
		sym := model.NormalizeSymbol(row.Symbol)
		if sym == "" {
			continue
		}
		i, ok := index[sym]
		if !ok {
			i = len(groups)
			index[sym] = i
			groups = append(groups, SymbolGroup{Symbol: sym})
		}
		groups[i].Rows = append(groups[i].Rows, row)
	}
	for i := range groups {
		sort.SliceStable(groups[i].Rows, func(a, b int) bool {
			return groups[i].Rows[a].Expectancy > groups[i].Rows[b].Expectancy
		})
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Rows[0].Expectancy > groups[b].Rows[0].Expectancy
	})
	return groups
}

// Aggregate proposes plans for every symbol group in rank order and
// tallies reason codes and note tags. Planner errors are counted, not
// returned.
func (a *Aggregator) Aggregate(ctx context.Context, acct model.Account, rows []model.ScanRow, stop func() bool) Result {
	res := Result{Reasons: make(map[string]int), Tags: make(map[string]int)}
	groups := GroupRows(rows)
	res.Symbols = len(groups)

	for i, group := range groups {
		if stopped(ctx, stop) {
			res.Stopped = true
			return res
		}
		if i > 0 {
			if err := a.pacer.Wait(ctx); err != nil {
				res.Stopped = true
				return res
			}
		}

		proposal, err := a.planner.ProposeWithDiagnostics(ctx, planner.ProposeRequest{
			AccountID:          acct.ID,
			Symbol:             group.Symbol,
			GranularityMinutes: a.granularity,
			Equity:             acct.Equity,
			RiskPct:            acct.RiskPerTradePct,
			Rows:               group.Rows,
		})
		if err != nil {
			if errors.Is(err, planner.ErrRateLimited) {
				a.pacer.RateLimited()
			}
			res.Reasons[ReasonPlannerError]++
			a.logger.Warn().Err(err).Str("symbol", group.Symbol).Msg("propose failed")
			continue
		}
		a.pacer.Success()

		if len(proposal.Plans) == 0 {
			reason := strings.ToLower(strings.TrimSpace(proposal.Reason))
			if reason == "" {
				reason = ReasonNoSignal
			}
			res.Reasons[reason]++
			a.logger.Debug().Str("symbol", group.Symbol).Str("reason", reason).Msg("no plan")
			continue
		}
		for _, plan := range proposal.Plans {
			if plan.AccountID == "" {
				plan.AccountID = acct.ID
			}
			plan.Symbol = model.NormalizeSymbol(plan.Symbol)
			if plan.Symbol == "" {
				plan.Symbol = group.Symbol
			}
			for _, tag := range NoteTags(plan.Note) {
				res.Tags[tag]++
			}
			res.Plans = append(res.Plans, plan)
		}
	}
	return res
}

// NoteTags extracts routing, venue and policy tags such as "route:maker"
// from a free-text plan note.
func NoteTags(note string) []string {
	var tags []string
	for _, m := range noteTag.FindAllStringSubmatch(note, -1) {
		tags = append(tags, m[1]+":"+strings.ToLower(m[2]))
	}
	return tags
}

// StripNoteTags removes routing, venue and policy tags from a note and
// collapses the whitespace they leave behind.
func StripNoteTags(note string) string {
	return strings.Join(strings.Fields(noteTag.ReplaceAllString(note, " ")), " ")
}
