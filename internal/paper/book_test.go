package paper

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"ProfilePilot/internal/model"

	"github.com/rs/zerolog"
)

type staticPrices map[string]float64

func (p staticPrices) Price(_ context.Context, symbol string) (float64, error) {
	price, ok := p[symbol]
	if !ok {
		return 0, errors.New("no quote")
	}
	return price, nil
}

type tradeSink struct{ records []model.TradeRecord }

func (s *tradeSink) AppendTrade(_ context.Context, rec model.TradeRecord) error {
	s.records = append(s.records, rec)
	return nil
}

type openCounter map[string]int

func (c openCounter) DecOpen(accountID string) { c[accountID]-- }

type fixedReplanner struct {
	stop, target float64
	calls        int
}

func (r *fixedReplanner) Replan(_ context.Context, _ model.PaperPosition) (float64, float64, bool, error) {
	r.calls++
	return r.stop, r.target, true, nil
}

func newTestBook() (*Book, *time.Time) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return NewBook(func() time.Time { return now }, zerolog.Nop()), &now
}

func longPlan(qty, entry, stop, target float64) model.TradePlan {
	return model.TradePlan{AccountID: "paper-1", Symbol: "BTC-USD", Strategy: "breakout",
		Direction: model.Long, Quantity: qty, Entry: entry, Stop: stop, Target: target}
}

func TestUpsertMergesVolumeWeighted(t *testing.T) {
	book, _ := newTestBook()

	_, created := book.Upsert("paper-1", longPlan(1, 100, 95, 110), "profile:p1")
	if !created {
		t.Fatal("first upsert should create")
	}
	pos, created := book.Upsert("paper-1", longPlan(3, 120, 90, 130), "profile:p1")
	if created {
		t.Fatal("same-direction re-entry should merge")
	}
	if pos.Quantity != 4 {
		t.Errorf("quantity = %v, want 4", pos.Quantity)
	}
	wantEntry := (1*100.0 + 3*120.0) / 4
	if math.Abs(pos.Entry-wantEntry) > 1e-9 {
		t.Errorf("entry = %v, want %v", pos.Entry, wantEntry)
	}
	if pos.Stop != 95 {
		t.Errorf("long stop must not worsen: got %v, want 95", pos.Stop)
	}
	if pos.Target != 130 {
		t.Errorf("long target should extend: got %v, want 130", pos.Target)
	}
	if book.Len() != 1 {
		t.Errorf("expected one position, got %d", book.Len())
	}
}

func TestUpsertShortRatchet(t *testing.T) {
	book, _ := newTestBook()
	short := model.TradePlan{Symbol: "ETH-USD", Direction: model.Short, Quantity: 2, Entry: 50, Stop: 55, Target: 40}
	book.Upsert("paper-1", short, "s")

	short.Stop, short.Target = 58, 35
	pos, _ := book.Upsert("paper-1", short, "s")
	if pos.Stop != 55 || pos.Target != 35 {
		t.Errorf("short ratchet: got stop=%v target=%v, want 55/35", pos.Stop, pos.Target)
	}

	long := short
	long.Direction = model.Long
	if _, created := book.Upsert("paper-1", long, "s"); !created {
		t.Error("opposite direction must open a separate position")
	}
}

func TestEvaluateExits(t *testing.T) {
	book, _ := newTestBook()
	book.Upsert("paper-1", longPlan(2, 100, 95, 110), "profile:p1")
	book.Upsert("paper-1", model.TradePlan{Symbol: "ETH-USD", Direction: model.Short, Quantity: 1, Entry: 50, Stop: 55, Target: 40}, "profile:p1")
	book.Upsert("paper-1", model.TradePlan{Symbol: "SOL-USD", Direction: model.Long, Quantity: 1, Entry: 20, Stop: 18, Target: 25}, "profile:p1")

	prices := staticPrices{"BTC-USD": 111, "ETH-USD": 56}
	counter := openCounter{"paper-1": 3}
	sink := &tradeSink{}

	exits := book.EvaluateExits(context.Background(), "paper-1", prices, counter, sink)
	if len(exits) != 2 {
		t.Fatalf("expected 2 exits, got %d", len(exits))
	}
	if exits[0].PnL != 22 || exits[0].Reason != "target" {
		t.Errorf("long exit = %+v, want pnl 22 on target", exits[0])
	}
	if exits[1].PnL != -6 || exits[1].Reason != "stop" {
		t.Errorf("short exit = %+v, want pnl -6 on stop", exits[1])
	}
	if book.Len() != 1 {
		t.Errorf("SOL position without a quote should remain, have %d", book.Len())
	}
	if counter["paper-1"] != 1 {
		t.Errorf("session counter = %d, want 1", counter["paper-1"])
	}
	if len(sink.records) != 2 {
		t.Fatalf("expected 2 closing records, got %d", len(sink.records))
	}
	for _, rec := range sink.records {
		if !rec.Close || rec.RealizedPnL == nil || !rec.Executed() {
			t.Errorf("closing record malformed: %+v", rec)
		}
	}
}

func TestReplanRateLimitedAndFavorable(t *testing.T) {
	book, now := newTestBook()
	book.Upsert("paper-1", longPlan(1, 100, 95, 110), "s")

	planner := &fixedReplanner{stop: 98, target: 108}
	if moved := book.Replan(context.Background(), "paper-1", planner, 3*time.Minute); moved != 1 {
		t.Fatalf("expected 1 ratchet, got %d", moved)
	}
	pos := book.Positions("paper-1")[0]
	if pos.Stop != 98 || pos.Target != 110 {
		t.Errorf("got stop=%v target=%v, want 98/110", pos.Stop, pos.Target)
	}

	*now = now.Add(time.Minute)
	book.Replan(context.Background(), "paper-1", planner, 3*time.Minute)
	if planner.calls != 1 {
		t.Errorf("replan inside refresh interval should be skipped, calls=%d", planner.calls)
	}

	*now = now.Add(3 * time.Minute)
	planner.stop = 90
	if moved := book.Replan(context.Background(), "paper-1", planner, 3*time.Minute); moved != 0 {
		t.Errorf("unfavorable levels must not move the position, moved=%d", moved)
	}
	if planner.calls != 2 {
		t.Errorf("expected second replan call, got %d", planner.calls)
	}
}
