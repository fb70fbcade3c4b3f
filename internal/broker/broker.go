// Package broker defines the order-placement contract and the adapters
// registered per account service and mode.
package broker

import (
	"context"
	"errors"
	"sync"

	"ProfilePilot/internal/model"
)

// ErrNoBroker is returned when no adapter is registered for an account.
var ErrNoBroker = errors.New("broker: no adapter registered")

// AnyService registers an adapter as the paper fallback for every service.
const AnyService = "*"

// Capabilities describes what an adapter can do.
type Capabilities struct {
	SupportsMarketEntry     bool   `json:"supports_market_entry"`
	SupportsProtectiveExits bool   `json:"supports_protective_exits"`
	Notes                   string `json:"notes"`
}

// Ack is the broker's verdict on a validation or placement request.
// A rejection is an Ack with OK=false, not an error.
type Ack struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

// Broker is one order-placement adapter.
type Broker interface {
	GetCapabilities(ctx context.Context) Capabilities
	ValidateTradePlan(ctx context.Context, plan model.TradePlan) (Ack, error)
	PlaceOrder(ctx context.Context, plan model.TradePlan) (Ack, error)
}

// Registry maps "service:mode" keys to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Broker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Broker)}
}

// Register installs an adapter for a service and mode.
func (r *Registry) Register(service string, mode model.AccountMode, b Broker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[model.Account{Service: service, Mode: mode}.BrokerKey()] = b
}

// For returns the adapter serving an account.
func (r *Registry) For(acct model.Account) (Broker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.adapters[acct.BrokerKey()]; ok {
		return b, nil
	}
	if acct.IsPaper() {
		if b, ok := r.adapters[AnyService+":"+string(model.ModePaper)]; ok {
			return b, nil
		}
	}
	return nil, ErrNoBroker
}

// Keys lists the registered adapter keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	return keys
}
