package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ProfilePilot/internal/model"
	"ProfilePilot/internal/planner"
)

// Universe is the tracked symbol list used by All-scope profiles.
type Universe struct {
	mu      sync.RWMutex
	symbols []string
}

// NewUniverse starts from the hard fallback list.
func NewUniverse(fallback []string) *Universe {
	return &Universe{symbols: normalizeSymbols(fallback)}
}

// Load replaces the list with the planner's universe. The fetch is bounded
// by timeout; on failure or an empty answer the current list is kept and
// the error is returned for logging.
func (u *Universe) Load(ctx context.Context, src planner.UniverseSource, timeout time.Duration) error {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	symbols, err := src.Universe(fetchCtx)
	if err != nil {
		return fmt.Errorf("fetch universe: %w", err)
	}
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		return fmt.Errorf("fetch universe: empty product list")
	}
	u.mu.Lock()
	u.symbols = symbols
	u.mu.Unlock()
	return nil
}

// Symbols returns at most max symbols. max <= 0 means no cap.
func (u *Universe) Symbols(max int) []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	n := len(u.symbols)
	if max > 0 && max < n {
		n = max
	}
	return append([]string(nil), u.symbols[:n]...)
}

func normalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = model.NormalizeSymbol(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
