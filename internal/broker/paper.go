package broker

import (
	"context"
	"fmt"

	"ProfilePilot/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaperBroker fills every valid plan immediately at its entry price.
// Protective exits are handled locally by the paper position book.
type PaperBroker struct {
	logger zerolog.Logger
}

// NewPaperBroker creates a paper adapter.
func NewPaperBroker(logger zerolog.Logger) *PaperBroker {
	return &PaperBroker{logger: logger.With().Str("component", "paper-broker").Logger()}
}

func (b *PaperBroker) GetCapabilities(_ context.Context) Capabilities {
	return Capabilities{SupportsMarketEntry: true, Notes: "synthetic fills; exits via local watchdog"}
}

func (b *PaperBroker) ValidateTradePlan(_ context.Context, plan model.TradePlan) (Ack, error) {
	if msg := checkPlan(plan); msg != "" {
		return Ack{Message: msg}, nil
	}
	return Ack{OK: true}, nil
}

func (b *PaperBroker) PlaceOrder(ctx context.Context, plan model.TradePlan) (Ack, error) {
	if ack, _ := b.ValidateTradePlan(ctx, plan); !ack.OK {
		return ack, nil
	}
	id := uuid.New().String()
	b.logger.Info().Str("sym", plan.Symbol).Str("side", plan.Direction.String()).
		Float64("qty", plan.Quantity).Float64("px", plan.Entry).Str("order_id", id).Msg("paper fill")
	return Ack{OK: true, Message: "paper fill", OrderID: id}, nil
}

// checkPlan returns a rejection message, or "" when the plan is well formed.
func checkPlan(plan model.TradePlan) string {
	switch {
	case plan.Symbol == "":
		return "missing symbol"
	case plan.Direction != model.Long && plan.Direction != model.Short:
		return fmt.Sprintf("invalid direction %d", plan.Direction)
	case plan.Quantity <= 0:
		return "quantity must be positive"
	case plan.Entry <= 0:
		return "entry must be positive"
	}
	if plan.Stop > 0 {
		if plan.Direction == model.Long && plan.Stop >= plan.Entry {
			return "long stop must be below entry"
		}
		if plan.Direction == model.Short && plan.Stop <= plan.Entry {
			return "short stop must be above entry"
		}
	}
	if plan.Target > 0 {
		if plan.Direction == model.Long && plan.Target <= plan.Entry {
			return "long target must be above entry"
		}
		if plan.Direction == model.Short && plan.Target >= plan.Entry {
			return "short target must be below entry"
		}
	}
	return ""
}
