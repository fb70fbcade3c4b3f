package execution

import (
	"context"

	"ProfilePilot/internal/model"
	"ProfilePilot/internal/planner"
)

type stubPlanner struct {
	plans []model.TradePlan
}

func (s *stubPlanner) Project(context.Context, planner.ProjectRequest) ([]model.ScanRow, error) {
	return nil, nil
}

func (s *stubPlanner) ProposeWithDiagnostics(context.Context, planner.ProposeRequest) (planner.Proposal, error) {
	return planner.Proposal{Plans: s.plans}, nil
}
