// Package workflow is the ambient Temporal durability facade over the
// plain-Go engine.Manager (§9: "model as explicit service interfaces...
// a later Temporal layer wraps this Manager, it does not replace it").
// A Run is submitted directly against engine.Manager by the control plane;
// RunWorkflow supervises it — heartbeating its progress for crash
// detection and exposing resolveApproval/cancel as Updates, an
// alternative to the HTTP control-plane routes for operators already
// living in `tctl`/the Temporal Web UI.
package workflow

import "github.com/codemode/toolgateway/internal/model"

// Handler names for RunWorkflow.
const (
	QueryGetRun           = "get_run"
	UpdateResolveApproval = "resolve_approval"
	UpdateCancelRun       = "cancel_run"
)

// RunWorkflowInput starts supervision of a Run already created by
// engine.Manager.SubmitRun.
type RunWorkflowInput struct {
	RunID     string
	TimeoutMs int64
}

// ApprovalDecisionInput is the `resolve_approval` Update payload, mirroring
// `resolveApproval(runId, callId, actorId, decision)` (§4.E).
type ApprovalDecisionInput struct {
	RunID      string
	CallID     string
	ActorID    string
	Decision   model.ApprovalStatus
	ReviewerID string
	Reason     string
}

// CancelRunInput is the `cancel_run` Update payload, mirroring
// `cancel(runId, actorId)` (§4.H).
type CancelRunInput struct {
	RunID   string
	ActorID string
}
