package workflow

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/codemode/toolgateway/internal/engine"
	"github.com/codemode/toolgateway/internal/model"
	"github.com/codemode/toolgateway/internal/registry"
)

// Activity names. Registered via w.RegisterActivity(a.<Method>), which
// derives the activity name from the method name — kept equal to these
// constants so workflow.ExecuteActivity/ExecuteLocalActivity calls stay in
// sync with registration.
const (
	activityExecuteRun     = "ExecuteRun"
	activityResolveApproval = "ResolveApprovalDecision"
	activityCancelRun      = "CancelRun"
	activityRebuildRegistry = "RebuildRegistry"
)

// Activities binds RunWorkflow/RegistryRebuildWorkflow to the in-process
// engine.Manager and registry.Builder that actually own Run and registry
// state. One Activities value is registered per worker process; every
// method call runs against the same Manager the HTTP control plane uses,
// so an Update routed through Temporal and a request routed through
// httpapi observe the same state.
type Activities struct {
	Engine  *engine.Manager
	Builder *registry.Builder
}

// ExecuteRunInput names the already-submitted Run this activity supervises.
type ExecuteRunInput struct {
	RunID string
}

var terminalEventStatuses = map[string]bool{
	"completed": true, "failed": true, "timed_out": true, "denied": true,
}

// ExecuteRun blocks until RunID reaches a terminal event, heartbeating on
// every event observed so a Run that stops producing events for longer
// than the workflow's HeartbeatTimeout fails the activity instead of
// leaving RunWorkflow waiting forever on a Run nothing is driving anymore.
func (a *Activities) ExecuteRun(ctx context.Context, in ExecuteRunInput) (model.Run, error) {
	var seq int64
	for {
		ev, err := a.Engine.WaitForNext(ctx, in.RunID, seq)
		if err != nil {
			return model.Run{}, err
		}
		seq = ev.Seq
		activity.RecordHeartbeat(ctx, ev.Status)
		if terminalEventStatuses[ev.Status] {
			break
		}
	}
	return a.Engine.GetRun(in.RunID)
}

// ResolveApprovalDecision implements the `resolve_approval` Update's
// activity, delegating straight to engine.Manager.ResolveApproval.
func (a *Activities) ResolveApprovalDecision(ctx context.Context, req ApprovalDecisionInput) (model.ResolveApprovalOutcome, error) {
	return a.Engine.ResolveApproval(req.RunID, req.CallID, req.ActorID, req.Decision, req.ReviewerID, req.Reason)
}

// CancelRun implements the `cancel_run` Update's activity.
func (a *Activities) CancelRun(ctx context.Context, req CancelRunInput) error {
	return a.Engine.Cancel(req.RunID, req.ActorID)
}

// RebuildRegistry implements the periodic rebuild step of
// RegistryRebuildWorkflow, delegating to the Workspace Tool Builder (§4.I).
func (a *Activities) RebuildRegistry(ctx context.Context, workspaceID string) (model.RegistryDiff, error) {
	return a.Builder.Rebuild(workspaceID)
}
