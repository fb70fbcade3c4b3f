package planner

import (
	"context"
	"sync"

	"ProfilePilot/internal/model"
)

// StaticPlanner returns controllable fixed data for dry runs and tests.
type StaticPlanner struct {
	mu sync.Mutex

	Rows      map[string][]model.ScanRow
	Proposals map[string]Proposal
	Prices    map[string]float64
	Symbols   []string

	// Errs makes Project fail for a symbol.
	Errs map[string]error

	ProjectCalls int
	ProposeCalls int
}

func (s *StaticPlanner) Project(_ context.Context, req ProjectRequest) ([]model.ScanRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProjectCalls++
	if err := s.Errs[req.Symbol]; err != nil {
		return nil, err
	}
	return s.Rows[req.Symbol], nil
}

func (s *StaticPlanner) ProposeWithDiagnostics(_ context.Context, req ProposeRequest) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProposeCalls++
	p, ok := s.Proposals[req.Symbol]
	if !ok {
		return Proposal{Reason: "no-signal"}, nil
	}
	plans := make([]model.TradePlan, len(p.Plans))
	for i, plan := range p.Plans {
		if plan.AccountID == "" {
			plan.AccountID = req.AccountID
		}
		plans[i] = plan
	}
	return Proposal{Plans: plans, Reason: p.Reason}, nil
}

func (s *StaticPlanner) Price(_ context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Prices[symbol], nil
}

func (s *StaticPlanner) Universe(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Symbols, nil
}
