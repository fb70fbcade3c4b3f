// Package recorder persists cycle reports and the trade audit history.
package recorder

import (
	"context"
	"errors"
	"time"

	"ProfilePilot/internal/model"
)

var (
	// ErrReportExists is returned when a cycle id was already written.
	// Reports are immutable.
	ErrReportExists = errors.New("recorder: report already exists")
	// ErrNoReport is returned by LatestReport on an empty store.
	ErrNoReport = errors.New("recorder: no report recorded")
)

// ReportStore keeps one immutable report per cycle.
type ReportStore interface {
	SaveReport(ctx context.Context, report model.CycleTelemetry) error
	LatestReport(ctx context.Context) (model.CycleTelemetry, error)
}

// HistoryStore keeps the trade audit log.
type HistoryStore interface {
	AppendTrade(ctx context.Context, rec model.TradeRecord) error
	LoadTrades(ctx context.Context, accountID string, since time.Time) ([]model.TradeRecord, error)
}

// Recorder is a report store and history store backed by one database.
type Recorder interface {
	ReportStore
	HistoryStore
	Close() error
}
