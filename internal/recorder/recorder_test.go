package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ProfilePilot/internal/model"

	"github.com/rs/zerolog"
)

func sampleReport(id string, finished time.Time) model.CycleTelemetry {
	return model.CycleTelemetry{
		CycleID:           id,
		StartedAt:         finished.Add(-time.Minute),
		FinishedAt:        finished,
		Status:            model.CycleCompleted,
		EnabledProfileIDs: []string{"p1", "p2"},
		Profiles: []model.ProfileTelemetry{
			{ProfileID: "p1", Status: model.ProfileExecuted, RejectReasons: map[string]int{"no-signal": 2}},
			{ProfileID: "p2", Status: model.ProfileError, Detail: "boom"},
		},
		Processed:       2,
		Executed:        1,
		Failed:          1,
		RejectHistogram: map[string]int{"no-signal": 2},
		Gate:            model.GateReport{Status: model.StatusPartial, Observed: map[string]bool{"success": true}},
		Matrix:          model.MatrixReport{Status: model.StatusPass},
	}
}

func openStores(t *testing.T) map[string]Recorder {
	t.Helper()
	sqlite, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "sub", "pilot.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Recorder{
		"sqlite": sqlite,
		"memory": NewMemoryRecorder(),
		"cached": NewCachedRecorder(NewMemoryRecorder(), nil, zerolog.Nop()),
	}
}

func TestReportRoundTrip(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.LatestReport(ctx); !errors.Is(err, ErrNoReport) {
				t.Fatalf("expected ErrNoReport on empty store, got %v", err)
			}
			if err := store.SaveReport(ctx, sampleReport("c1", base)); err != nil {
				t.Fatalf("save c1: %v", err)
			}
			want := sampleReport("c2", base.Add(time.Hour))
			if err := store.SaveReport(ctx, want); err != nil {
				t.Fatalf("save c2: %v", err)
			}
			if err := store.SaveReport(ctx, want); !errors.Is(err, ErrReportExists) {
				t.Fatalf("expected ErrReportExists, got %v", err)
			}

			got, err := store.LatestReport(ctx)
			if err != nil {
				t.Fatalf("latest: %v", err)
			}
			if got.CycleID != "c2" {
				t.Fatalf("expected latest c2, got %s", got.CycleID)
			}
			if got.Processed != want.Processed || got.Executed != want.Executed || got.Failed != want.Failed {
				t.Errorf("counts changed: %d/%d/%d", got.Processed, got.Executed, got.Failed)
			}
			if got.Gate.Status != want.Gate.Status || got.Matrix.Status != want.Matrix.Status || got.Status != want.Status {
				t.Errorf("status strings changed: %s %s %s", got.Status, got.Gate.Status, got.Matrix.Status)
			}
			if len(got.Profiles) != 2 || got.Profiles[1].Status != model.ProfileError || got.Profiles[0].RejectReasons["no-signal"] != 2 {
				t.Errorf("profiles changed: %+v", got.Profiles)
			}
		})
	}
}

func TestTradeHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	pnl := 12.5

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			records := []model.TradeRecord{
				{ID: "t0", Time: now.Add(-48 * time.Hour), AccountID: "paper-1", Status: model.TradeExecuted},
				{ID: "t1", Time: now.Add(-time.Hour), AccountID: "paper-1", Mode: model.ModePaper, Symbol: "BTC-USD",
					Direction: model.Long, Quantity: 1, Entry: 100, Status: model.TradeExecuted},
				{ID: "t2", Time: now, AccountID: "paper-1", Direction: model.Short, Status: model.TradeExecuted,
					RealizedPnL: &pnl, Close: true, Result: "protective-exit:target"},
				{ID: "t3", Time: now, AccountID: "other", Status: model.TradeFailed},
			}
			for _, rec := range records {
				if err := store.AppendTrade(ctx, rec); err != nil {
					t.Fatalf("append %s: %v", rec.ID, err)
				}
			}

			got, err := store.LoadTrades(ctx, "paper-1", now.Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t2" {
				t.Fatalf("unexpected trades: %+v", got)
			}
			if got[0].RealizedPnL != nil || got[0].Close || got[0].Direction != model.Long || got[0].Mode != model.ModePaper {
				t.Errorf("open record changed: %+v", got[0])
			}
			if got[1].RealizedPnL == nil || *got[1].RealizedPnL != pnl || !got[1].Close || got[1].Direction != model.Short {
				t.Errorf("close record changed: %+v", got[1])
			}
			if !got[1].Time.Equal(now) {
				t.Errorf("time changed: %v", got[1].Time)
			}
		})
	}
}

func TestCachedRecorderFallsBackWithoutRedis(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryRecorder()
	if err := inner.SaveReport(ctx, sampleReport("before-restart", time.Now())); err != nil {
		t.Fatal(err)
	}

	client, err := OpenRedis(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	if err == nil || client != nil {
		t.Fatalf("expected unreachable redis, got client=%v err=%v", client, err)
	}

	cached := NewCachedRecorder(inner, client, zerolog.Nop())
	got, err := cached.LatestReport(ctx)
	if err != nil || got.CycleID != "before-restart" {
		t.Fatalf("expected report from inner store, got %q, %v", got.CycleID, err)
	}
	if err := cached.SaveReport(ctx, sampleReport("next", time.Now())); err != nil {
		t.Fatal(err)
	}
	if got, _ := cached.LatestReport(ctx); got.CycleID != "next" {
		t.Fatalf("expected cached copy, got %q", got.CycleID)
	}
}
