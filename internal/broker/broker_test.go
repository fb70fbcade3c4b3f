package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ProfilePilot/internal/model"

	"github.com/rs/zerolog"
)

func TestPaperBrokerValidate(t *testing.T) {
	b := NewPaperBroker(zerolog.Nop())
	testCases := []struct {
		name string
		plan model.TradePlan
		ok   bool
	}{
		{"valid long", model.TradePlan{Symbol: "BTC-USD", Direction: model.Long, Quantity: 1, Entry: 100, Stop: 95, Target: 110}, true},
		{"valid short", model.TradePlan{Symbol: "BTC-USD", Direction: model.Short, Quantity: 1, Entry: 100, Stop: 105, Target: 90}, true},
		{"zero quantity", model.TradePlan{Symbol: "BTC-USD", Direction: model.Long, Entry: 100}, false},
		{"long stop above entry", model.TradePlan{Symbol: "BTC-USD", Direction: model.Long, Quantity: 1, Entry: 100, Stop: 101}, false},
		{"short target above entry", model.TradePlan{Symbol: "BTC-USD", Direction: model.Short, Quantity: 1, Entry: 100, Target: 120}, false},
		{"flat direction", model.TradePlan{Symbol: "BTC-USD", Quantity: 1, Entry: 100}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ack, err := b.ValidateTradePlan(context.Background(), tc.plan)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ack.OK != tc.ok {
				t.Errorf("ok = %v, want %v (%s)", ack.OK, tc.ok, ack.Message)
			}
		})
	}
}

func TestPaperBrokerPlaceOrder(t *testing.T) {
	b := NewPaperBroker(zerolog.Nop())
	if caps := b.GetCapabilities(context.Background()); !caps.SupportsMarketEntry || caps.SupportsProtectiveExits {
		t.Errorf("unexpected paper capabilities %+v", caps)
	}
	ack, err := b.PlaceOrder(context.Background(), model.TradePlan{Symbol: "ETH-USD", Direction: model.Long, Quantity: 1, Entry: 10})
	if err != nil || !ack.OK || ack.OrderID == "" {
		t.Errorf("expected fill, got %+v, %v", ack, err)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	paper := NewPaperBroker(zerolog.Nop())
	r.Register(AnyService, model.ModePaper, paper)

	if b, err := r.For(model.Account{Service: "Coinbase", Mode: model.ModePaper}); err != nil || b != paper {
		t.Errorf("paper fallback not used: %v", err)
	}
	if _, err := r.For(model.Account{Service: "coinbase", Mode: model.ModeLive}); !errors.Is(err, ErrNoBroker) {
		t.Errorf("expected ErrNoBroker for unregistered live account, got %v", err)
	}

	live := NewPaperBroker(zerolog.Nop())
	r.Register("COINBASE", model.ModeLive, live)
	if b, err := r.For(model.Account{Service: "coinbase", Mode: model.ModeLive}); err != nil || b != live {
		t.Errorf("live adapter lookup failed: %v", err)
	}
}

func TestBridgeBroker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/capabilities":
			json.NewEncoder(w).Encode(Capabilities{SupportsMarketEntry: true, SupportsProtectiveExits: true})
		case "/api/v1/orders/validate":
			json.NewEncoder(w).Encode(Ack{OK: false, Message: "min notional"})
		case "/api/v1/orders":
			json.NewEncoder(w).Encode(Ack{OK: true, OrderID: "42"})
		}
	}))
	defer srv.Close()

	b := NewBridgeBroker(srv.URL, "", "", zerolog.Nop())
	ctx := context.Background()
	if caps := b.GetCapabilities(ctx); !caps.SupportsProtectiveExits {
		t.Errorf("capabilities not decoded: %+v", caps)
	}
	plan := model.TradePlan{Symbol: "BTC-USD", Direction: model.Long, Quantity: 1, Entry: 100}
	if ack, err := b.ValidateTradePlan(ctx, plan); err != nil || ack.OK || ack.Message != "min notional" {
		t.Errorf("validate = %+v, %v", ack, err)
	}
	if ack, err := b.PlaceOrder(ctx, plan); err != nil || ack.OrderID != "42" {
		t.Errorf("place = %+v, %v", ack, err)
	}
}
