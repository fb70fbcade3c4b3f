package execution

import (
	"context"
	"fmt"

	"ProfilePilot/internal/model"
	"ProfilePilot/internal/planner"
)

// PlannerReplanner asks the planner for a fresh plan on an open paper
// position's symbol and reuses its protective levels when it points the
// same way.
type PlannerReplanner struct {
	Planner            planner.Planner
	GranularityMinutes int
	LookbackMinutes    int
}

func (r PlannerReplanner) Replan(ctx context.Context, pos model.PaperPosition) (float64, float64, bool, error) {
	rows, err := r.Planner.Project(ctx, planner.ProjectRequest{
		Symbol:             pos.Symbol,
		GranularityMinutes: r.GranularityMinutes,
		LookbackMinutes:    r.LookbackMinutes,
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("project %s: %w", pos.Symbol, err)
	}
	proposal, err := r.Planner.ProposeWithDiagnostics(ctx, planner.ProposeRequest{
		AccountID:          pos.AccountID,
		Symbol:             pos.Symbol,
		GranularityMinutes: r.GranularityMinutes,
		Rows:               rows,
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("propose %s: %w", pos.Symbol, err)
	}
	for _, plan := range proposal.Plans {
		if plan.Direction == pos.Direction {
			return plan.Stop, plan.Target, true, nil
		}
	}
	return 0, 0, false, nil
}
