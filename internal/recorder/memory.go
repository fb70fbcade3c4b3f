package recorder

import (
	"context"
	"strings"
	"sync"
	"time"

	"ProfilePilot/internal/model"
)

// MemoryRecorder keeps everything in process memory. It is used when no
// database is configured or the database cannot be opened.
type MemoryRecorder struct {
	mu      sync.RWMutex
	reports []model.CycleTelemetry
	ids     map[string]bool
	trades  []model.TradeRecord
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{ids: make(map[string]bool)}
}

func (m *MemoryRecorder) SaveReport(_ context.Context, report model.CycleTelemetry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids[report.CycleID] {
		return ErrReportExists
	}
	m.ids[report.CycleID] = true
	m.reports = append(m.reports, report)
	return nil
}

func (m *MemoryRecorder) LatestReport(_ context.Context) (model.CycleTelemetry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.reports) == 0 {
		return model.CycleTelemetry{}, ErrNoReport
	}
	return m.reports[len(m.reports)-1], nil
}

func (m *MemoryRecorder) AppendTrade(_ context.Context, rec model.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, rec)
	return nil
}

func (m *MemoryRecorder) LoadTrades(_ context.Context, accountID string, since time.Time) ([]model.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.TradeRecord
	for _, r := range m.trades {
		if strings.EqualFold(r.AccountID, accountID) && !r.Time.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryRecorder) Close() error { return nil }
