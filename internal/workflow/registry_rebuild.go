package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// registryRebuildHistoryLimit bounds how many rebuild iterations run
// before ContinueAsNew resets workflow history, mirroring the teacher's
// iteration-count-triggered ContinueAsNew in AgenticWorkflow.
const registryRebuildHistoryLimit = 500

// RegistryRebuildWorkflowState carries across ContinueAsNew.
type RegistryRebuildWorkflowState struct {
	WorkspaceID     string
	IntervalSeconds int64
	Iteration       int
}

// RegistryRebuildWorkflow is a long-lived per-workspace loop driving B.I's
// periodic rebuild (§4.I: "a cron-scheduled rebuild independent of
// source-change notifications"), continuing-as-new to keep its own history
// bounded rather than accumulating one timer-fired event per interval
// forever.
func RegistryRebuildWorkflow(ctx workflow.Context, state RegistryRebuildWorkflowState) error {
	logger := workflow.GetLogger(ctx)

	interval := time.Duration(state.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})

	for state.Iteration < registryRebuildHistoryLimit {
		if err := workflow.Sleep(ctx, interval); err != nil {
			return err
		}

		err := workflow.ExecuteActivity(actCtx, activityRebuildRegistry, state.WorkspaceID).Get(ctx, nil)
		if err != nil {
			logger.Error("registry rebuild failed", "workspaceId", state.WorkspaceID, "error", err)
		}
		state.Iteration++
	}

	return workflow.NewContinueAsNewError(ctx, RegistryRebuildWorkflow, RegistryRebuildWorkflowState{
		WorkspaceID:     state.WorkspaceID,
		IntervalSeconds: state.IntervalSeconds,
	})
}
