// Package planner defines the contract of the external market projection
// and trade proposal service, plus the clients that speak it.
package planner

import (
	"context"
	"errors"

	"ProfilePilot/internal/model"
)

// ErrRateLimited is returned when the upstream service asks the caller to slow down.
var ErrRateLimited = errors.New("planner: rate limited")

// ProjectRequest parameterizes a market projection for one symbol.
type ProjectRequest struct {
	Symbol             string
	GranularityMinutes int
	LookbackMinutes    int
	UpThreshold        float64
	DownThreshold      float64
}

// ProposeRequest asks for trade plans for one (account, symbol).
type ProposeRequest struct {
	AccountID          string
	Symbol             string
	GranularityMinutes int
	Equity             float64
	RiskPct            float64
	Rows               []model.ScanRow
}

// Proposal is the planner's answer. Reason is set when Plans is empty.
type Proposal struct {
	Plans  []model.TradePlan
	Reason string
}

// Planner is the external projection/proposal service.
type Planner interface {
	Project(ctx context.Context, req ProjectRequest) ([]model.ScanRow, error)
	ProposeWithDiagnostics(ctx context.Context, req ProposeRequest) (Proposal, error)
}

// Quoter returns current prices.
type Quoter interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// UniverseSource lists the tracked symbol universe.
type UniverseSource interface {
	Universe(ctx context.Context) ([]string, error)
}
