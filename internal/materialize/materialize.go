package materialize

import (
	"context"

	"github.com/lixdb/lix/internal/backend"
)

// Materialize implements the engine-level materialize(request) →
// {plan, apply} operation from spec.md §4.8: build the plan across every
// schema key touched by request.Scope, then apply it unless Debug is set.
// In debug mode, the plan's writes are truncated to DebugRowLimit and
// nothing is written, mirroring a dry-run inspection tool.
func Materialize(ctx context.Context, db backend.Backend, req Request) (*Plan, *ApplyReport, error) {
	plan, err := Run(ctx, db, req.Scope)
	if err != nil {
		return nil, nil, err
	}

	if req.Debug {
		if req.DebugRowLimit > 0 && len(plan.Writes) > req.DebugRowLimit {
			plan.Writes = plan.Writes[:req.DebugRowLimit]
		}
		return plan, nil, nil
	}

	report, err := Apply(ctx, db, plan, req.Scope)
	if err != nil {
		return plan, nil, err
	}
	return plan, report, nil
}
