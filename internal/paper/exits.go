package paper

import (
	"context"
	"fmt"
	"time"

	"ProfilePilot/internal/model"

	"github.com/google/uuid"
)

// PriceSource returns the current market price of a symbol.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// TradeLog receives audit records for synthetic fills.
type TradeLog interface {
	AppendTrade(ctx context.Context, rec model.TradeRecord) error
}

// OpenCounter tracks the session open-position count per account.
type OpenCounter interface {
	DecOpen(accountID string)
}

// Replanner proposes fresh protective levels for an open position.
// ok is false when the planner has no same-direction plan.
type Replanner interface {
	Replan(ctx context.Context, pos model.PaperPosition) (stop, target float64, ok bool, err error)
}

// Exit describes a protective close.
type Exit struct {
	Position model.PaperPosition
	Price    float64
	PnL      float64
	Reason   string
	ClosedAt time.Time
}

// EvaluateExits checks every open position of the account against the
// current price. A position whose stop or target was touched is closed in
// full at that price, audited as a synthetic closing trade, removed from the
// book and subtracted from the session open count. Price lookup failures
// skip the position.
func (b *Book) EvaluateExits(ctx context.Context, accountID string, prices PriceSource, counter OpenCounter, trades TradeLog) []Exit {
	var exits []Exit
	for _, pos := range b.Positions(accountID) {
		if ctx.Err() != nil {
			break
		}
		price, err := prices.Price(ctx, pos.Symbol)
		if err != nil || price <= 0 {
			b.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("price lookup failed, exit check skipped")
			continue
		}
		if !pos.Touched(price) {
			continue
		}
		if !b.remove(pos) {
			continue
		}

		exit := Exit{
			Position: pos,
			Price:    price,
			PnL:      pos.PnLAt(price),
			Reason:   exitReason(pos, price),
			ClosedAt: b.now(),
		}
		exits = append(exits, exit)
		if counter != nil {
			counter.DecOpen(pos.AccountID)
		}
		if trades != nil {
			if err := trades.AppendTrade(ctx, closingRecord(exit)); err != nil {
				b.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("audit protective exit")
			}
		}
		b.logger.Info().Str("symbol", pos.Symbol).Str("side", pos.Direction.String()).
			Str("reason", exit.Reason).Float64("price", price).Float64("pnl", exit.PnL).
			Msg("paper position closed")
	}
	return exits
}

func exitReason(pos model.PaperPosition, price float64) string {
	stopHit := pos.Stop > 0 && ((pos.Direction == model.Short && price >= pos.Stop) ||
		(pos.Direction != model.Short && price <= pos.Stop))
	if stopHit {
		return "stop"
	}
	return "target"
}

func closingRecord(exit Exit) model.TradeRecord {
	pos := exit.Position
	pnl := exit.PnL
	return model.TradeRecord{
		ID:          uuid.New().String(),
		Time:        exit.ClosedAt,
		AccountID:   pos.AccountID,
		Scope:       pos.Scope,
		Mode:        model.ModePaper,
		Symbol:      pos.Symbol,
		Strategy:    pos.Strategy,
		Direction:   pos.Direction,
		Quantity:    pos.Quantity,
		Entry:       pos.Entry,
		Stop:        pos.Stop,
		Target:      pos.Target,
		ExitPrice:   exit.Price,
		Status:      model.TradeExecuted,
		Result:      "protective-exit:" + exit.Reason,
		RealizedPnL: &pnl,
		Close:       true,
		Note:        fmt.Sprintf("paper %s closed at %.6g on %s", pos.Direction, exit.Price, exit.Reason),
	}
}

// Replan refreshes protective levels of the account's open positions, at
// most once per interval per position, ratcheting favorably only. It
// returns the number of positions whose levels moved.
func (b *Book) Replan(ctx context.Context, accountID string, planner Replanner, interval time.Duration) int {
	if planner == nil {
		return 0
	}
	moved := 0
	for _, pos := range b.Positions(accountID) {
		if ctx.Err() != nil {
			break
		}
		key := positionKey(pos.AccountID, pos.Symbol, pos.Direction)
		if !b.dueForReplan(key, interval) {
			continue
		}
		stop, target, ok, err := planner.Replan(ctx, pos)
		if err != nil {
			b.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("replan failed")
			continue
		}
		if ok && b.Ratchet(pos, stop, target) {
			moved++
			b.logger.Debug().Str("symbol", pos.Symbol).Float64("stop", stop).Float64("target", target).Msg("protective levels ratcheted")
		}
	}
	return moved
}

func (b *Book) dueForReplan(key string, interval time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if last, ok := b.lastReplan[key]; ok && now.Sub(last) < interval {
		return false
	}
	b.lastReplan[key] = now
	return true
}
