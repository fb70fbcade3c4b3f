// Package paper keeps the synthetic open positions of non-live accounts.
package paper

import (
	"strings"
	"sync"
	"time"

	"ProfilePilot/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Book is the paper position book. At most one position exists per
// (account, symbol, direction); re-entries merge into it.
type Book struct {
	mu         sync.Mutex
	positions  map[string]*model.PaperPosition
	order      []string
	lastReplan map[string]time.Time
	now        func() time.Time
	logger     zerolog.Logger
}

// NewBook creates an empty book. A nil clock defaults to time.Now.
func NewBook(now func() time.Time, logger zerolog.Logger) *Book {
	if now == nil {
		now = time.Now
	}
	return &Book{
		positions:  make(map[string]*model.PaperPosition),
		lastReplan: make(map[string]time.Time),
		now:        now,
		logger:     logger.With().Str("component", "paper-book").Logger(),
	}
}

func positionKey(accountID, symbol string, dir model.Direction) string {
	return strings.ToLower(accountID) + "|" + model.NormalizeSymbol(symbol) + "|" + dir.String()
}

// Upsert opens a position for the plan or merges it into the existing one.
// Merging sums quantities, volume-weights the entry and only moves
// stop/target in the trader's favor. created is true for a new position.
func (b *Book) Upsert(accountID string, plan model.TradePlan, scope string) (pos model.PaperPosition, created bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := positionKey(accountID, plan.Symbol, plan.Direction)
	existing, ok := b.positions[key]
	if !ok {
		p := &model.PaperPosition{
			ID:        uuid.New().String(),
			AccountID: accountID,
			Symbol:    model.NormalizeSymbol(plan.Symbol),
			Strategy:  plan.Strategy,
			Direction: plan.Direction,
			Quantity:  plan.Quantity,
			Entry:     plan.Entry,
			Stop:      plan.Stop,
			Target:    plan.Target,
			OpenedAt:  b.now(),
			Scope:     scope,
		}
		b.positions[key] = p
		b.order = append(b.order, key)
		b.logger.Info().Str("symbol", p.Symbol).Str("side", p.Direction.String()).
			Float64("qty", p.Quantity).Float64("entry", p.Entry).Msg("paper position opened")
		return *p, true
	}

	total := existing.Quantity + plan.Quantity
	if total > 0 {
		existing.Entry = (existing.Quantity*existing.Entry + plan.Quantity*plan.Entry) / total
	}
	existing.Quantity = total
	existing.Stop, existing.Target = ratchet(existing.Direction, existing.Stop, existing.Target, plan.Stop, plan.Target)
	b.logger.Info().Str("symbol", existing.Symbol).Str("side", existing.Direction.String()).
		Float64("qty", existing.Quantity).Float64("entry", existing.Entry).Msg("paper position merged")
	return *existing, false
}

// ratchet moves stop and target only toward the trader's favor: up for
// longs, down for shorts. Unset (zero) levels take the proposed value.
func ratchet(dir model.Direction, stop, target, newStop, newTarget float64) (float64, float64) {
	better := func(cur, next float64) float64 {
		if next <= 0 {
			return cur
		}
		if cur <= 0 {
			return next
		}
		if dir == model.Short {
			if next < cur {
				return next
			}
			return cur
		}
		if next > cur {
			return next
		}
		return cur
	}
	return better(stop, newStop), better(target, newTarget)
}

// Positions returns copies of the open positions of an account, in opening
// order. An empty account id returns every position.
func (b *Book) Positions(accountID string) []model.PaperPosition {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.PaperPosition, 0, len(b.order))
	for _, key := range b.order {
		p := b.positions[key]
		if accountID == "" || strings.EqualFold(p.AccountID, accountID) {
			out = append(out, *p)
		}
	}
	return out
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions)
}

// Ratchet applies favorable-only stop/target updates to an open position.
// It reports whether anything changed.
func (b *Book) Ratchet(pos model.PaperPosition, stop, target float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[positionKey(pos.AccountID, pos.Symbol, pos.Direction)]
	if !ok {
		return false
	}
	s, t := ratchet(p.Direction, p.Stop, p.Target, stop, target)
	if s == p.Stop && t == p.Target {
		return false
	}
	p.Stop, p.Target = s, t
	return true
}

func (b *Book) remove(pos model.PaperPosition) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := positionKey(pos.AccountID, pos.Symbol, pos.Direction)
	if _, ok := b.positions[key]; !ok {
		return false
	}
	delete(b.positions, key)
	delete(b.lastReplan, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}
