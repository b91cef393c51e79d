package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/codemode/toolgateway/internal/model"
)

// RunWorkflow supervises one Run end to end: it waits on ExecuteRun (which
// itself waits on the Run's event stream) and exposes resolve_approval /
// cancel_run as Updates so an operator can drive a Run through Temporal
// tooling without going through the HTTP control plane.
func RunWorkflow(ctx workflow.Context, in RunWorkflowInput) (model.Run, error) {
	logger := workflow.GetLogger(ctx)
	var lastRun model.Run

	if err := workflow.SetQueryHandler(ctx, QueryGetRun, func() (model.Run, error) {
		return lastRun, nil
	}); err != nil {
		logger.Error("failed to register get_run query handler", "error", err)
	}

	// resolve_approval and cancel_run run as ordinary (not local) activities
	// dispatched by name, the same way every other activity in this worker
	// is called — a Local Activity would need a direct closure over the
	// *Activities value, which the workflow isn't handed.
	quickOpts := workflow.ActivityOptions{StartToCloseTimeout: 5 * time.Second}

	err := workflow.SetUpdateHandlerWithOptions(ctx, UpdateResolveApproval,
		func(ctx workflow.Context, req ApprovalDecisionInput) (model.ResolveApprovalOutcome, error) {
			req.RunID = in.RunID
			var outcome model.ResolveApprovalOutcome
			err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, quickOpts), activityResolveApproval, req).Get(ctx, &outcome)
			return outcome, err
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, req ApprovalDecisionInput) error {
				if req.CallID == "" || req.ActorID == "" {
					return fmt.Errorf("callId and actorId are required")
				}
				if req.Decision != model.ApprovalApproved && req.Decision != model.ApprovalDenied {
					return fmt.Errorf("decision must be approved or denied")
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("failed to register resolve_approval update handler", "error", err)
	}

	err = workflow.SetUpdateHandlerWithOptions(ctx, UpdateCancelRun,
		func(ctx workflow.Context, req CancelRunInput) (bool, error) {
			req.RunID = in.RunID
			err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, quickOpts), activityCancelRun, req).Get(ctx, nil)
			return err == nil, err
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, req CancelRunInput) error {
				if req.ActorID == "" {
					return fmt.Errorf("actorId is required")
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("failed to register cancel_run update handler", "error", err)
	}

	timeout := time.Duration(in.TimeoutMs)*time.Millisecond + 30*time.Second
	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			// A Run's side effects aren't safe to replay by resubmitting the
			// whole activity — retrying would mean a second ExecuteRun
			// racing the first against the same in-process RunSession.
			MaximumAttempts: 1,
		},
	})

	var run model.Run
	runErr := workflow.ExecuteActivity(actCtx, activityExecuteRun, ExecuteRunInput{RunID: in.RunID}).Get(ctx, &run)
	lastRun = run
	return run, runErr
}
