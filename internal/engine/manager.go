// Package engine implements the Tool Invocation Service (§4.F) and the Run
// Lifecycle Manager (§4.H) as plain, synchronous Go: the state machine and
// call pipeline run entirely in-process, independent of any orchestration
// layer wrapped around it. A Temporal workflow later in the stack is an
// ambient durability facade over this Manager, not a rewrite of it (§9:
// "model as explicit service interfaces passed by constructor").
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codemode/toolgateway/internal/approval"
	"github.com/codemode/toolgateway/internal/credentials"
	"github.com/codemode/toolgateway/internal/model"
	"github.com/codemode/toolgateway/internal/policy"
	"github.com/codemode/toolgateway/internal/providers"
	"github.com/codemode/toolgateway/internal/registry"
	"github.com/codemode/toolgateway/internal/runtime"
)

// Config tunes Manager-wide defaults.
type Config struct {
	DefaultTimeoutMs   int64
	PerCallTimeout     time.Duration
	MaxPreviewChars    int
}

func (c Config) withDefaults() Config {
	if c.DefaultTimeoutMs <= 0 {
		c.DefaultTimeoutMs = 30_000
	}
	if c.PerCallTimeout <= 0 {
		c.PerCallTimeout = 15 * time.Second
	}
	if c.MaxPreviewChars <= 0 {
		c.MaxPreviewChars = 200
	}
	return c
}

// Manager wires B, C, D, E, F, G together behind the F/H operations:
// SubmitRun, ResolveApproval, Cancel, WaitForNext, GetRun.
type Manager struct {
	cfg Config

	registries  *registry.Builder
	policy      *policy.Evaluator
	credentials *credentials.Resolver
	providers   *providers.Registry
	runtime     *runtime.Dispatcher

	mu       sync.RWMutex
	sessions map[string]*RunSession
}

func NewManager(cfg Config, registries *registry.Builder, pol *policy.Evaluator, creds *credentials.Resolver, provs *providers.Registry, rt *runtime.Dispatcher) *Manager {
	return &Manager{
		cfg:         cfg.withDefaults(),
		registries:  registries,
		policy:      pol,
		credentials: creds,
		providers:   provs,
		runtime:     rt,
		sessions:    make(map[string]*RunSession),
	}
}

// SubmitRunInput is the argument object for SubmitRun, mirroring the
// `POST /v1/runs` body (§6.2).
type SubmitRunInput struct {
	WorkspaceID string
	ActorID     string
	ClientID    string
	Code        string
	RuntimeKind model.RuntimeKind
	TimeoutMs   int64
	Metadata    map[string]any
}

// SubmitRun creates a Run in the `queued` state, pins the workspace's
// current ToolRegistrySnapshot (invariant 4: snapshot isolation), and
// starts execution on its own goroutine. The returned Run reflects the
// initial `queued` status; callers observe progress via WaitForNext.
func (m *Manager) SubmitRun(ctx context.Context, in SubmitRunInput) (*model.Run, error) {
	if in.Code == "" {
		return nil, model.Errorf(model.ErrValidation, "code is required")
	}
	if in.WorkspaceID == "" {
		return nil, model.Errorf(model.ErrValidation, "workspaceId is required")
	}
	if in.ActorID == "" {
		return nil, model.Errorf(model.ErrValidation, "actorId is required")
	}

	runtimeKind := in.RuntimeKind
	if runtimeKind == "" {
		runtimeKind = model.RuntimeLocalInproc
	}
	timeoutMs := in.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = m.cfg.DefaultTimeoutMs
	}

	snap := m.registries.RegistryFor(in.WorkspaceID).Snapshot()

	run := model.Run{
		ID:              uuid.NewString(),
		WorkspaceID:     in.WorkspaceID,
		ActorID:         in.ActorID,
		RuntimeKind:     runtimeKind,
		Code:            in.Code,
		TimeoutMs:       timeoutMs,
		Status:          model.RunStatusQueued,
		CreatedAt:       time.Now(),
		Metadata:        in.Metadata,
		SnapshotVersion: snap.Version,
	}

	sess := newRunSession(run, m.cfg.MaxPreviewChars)
	sess.snapshot = snap

	m.mu.Lock()
	m.sessions[run.ID] = sess
	m.mu.Unlock()

	go m.execute(sess)

	out := sess.Run()
	return &out, nil
}

// GetRun returns the current Run record, or ErrNotFound.
func (m *Manager) GetRun(runID string) (model.Run, error) {
	sess, ok := m.session(runID)
	if !ok {
		return model.Run{}, model.Errorf(model.ErrNotFound, "run %q not found", runID)
	}
	return sess.Run(), nil
}

// WaitForNext blocks a consumer until the next event past afterSeq is
// available for runID (§4.H, §5 suspension point 4).
func (m *Manager) WaitForNext(ctx context.Context, runID string, afterSeq int64) (model.Event, error) {
	sess, ok := m.session(runID)
	if !ok {
		return model.Event{}, model.Errorf(model.ErrNotFound, "run %q not found", runID)
	}
	return sess.WaitForNext(ctx, afterSeq)
}

// Cancel implements `cancel(runId, actorId)` (§4.H): transitions the Run
// to `denied`, aborts the runtime's execution deadline, and resolves every
// outstanding approval as `denied`.
func (m *Manager) Cancel(runID, actorID string) error {
	sess, ok := m.session(runID)
	if !ok {
		return model.Errorf(model.ErrNotFound, "run %q not found", runID)
	}
	run := sess.Run()
	if run.ActorID != actorID {
		return model.Errorf(model.ErrUnauthorized, "actor %q may not cancel run %q", actorID, runID)
	}
	if run.Status.Terminal() {
		return nil
	}

	m.finishRun(sess, model.RunStatusDenied, "run_cancelled")
	sess.approvals.CancelAll("run_cancelled")
	sess.cancel()
	return nil
}

// ResolveApproval implements `resolveApproval(runId, callId, actorId,
// decision)` (§4.E).
func (m *Manager) ResolveApproval(runID, callID, actorID string, decision model.ApprovalStatus, reviewerID, reason string) (model.ResolveApprovalOutcome, error) {
	sess, ok := m.session(runID)
	if !ok {
		return model.ResolveNotFound, model.Errorf(model.ErrNotFound, "run %q not found", runID)
	}
	return sess.approvals.Resolve(callID, actorID, decision, reviewerID, reason), nil
}

// ListTools returns the descriptors visible to actorID/clientID in
// workspaceID, hiding anything a `deny` policy rule blocks outright
// (§4.A).
func (m *Manager) ListTools(workspaceID, actorID, clientID string) []model.ToolDescriptor {
	snap := m.registries.RegistryFor(workspaceID).Snapshot()
	ctx := model.CallContext{WorkspaceID: workspaceID, ActorID: actorID, ClientID: clientID}
	return registry.ListVisible(snap, m.policy, ctx)
}

func (m *Manager) session(runID string) (*RunSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[runID]
	return s, ok
}

// HandleToolCall is the external entry point a runtime callback (HTTP
// handler, subprocess frame router) uses to route one `tools.*` call into
// F, looking runID up by hand rather than holding a *RunSession closure
// (§6.1 runtime callback contract).
func (m *Manager) HandleToolCall(ctx context.Context, runID, callID, toolPath string, input map[string]any) model.CallResult {
	sess, ok := m.session(runID)
	if !ok {
		return model.CallResult{OK: false, Kind: "failed", Error: "run_not_live"}
	}
	return m.handleToolCall(ctx, sess, callID, toolPath, input)
}

// PendingApproval is one outstanding approval surfaced for a workspace's
// `GET /v1/approvals?status=pending` listing (§6.2).
type PendingApproval struct {
	RunID string
	model.ApprovalRequest
}

// ListPendingApprovals returns every currently-pending approval across
// in-flight Runs in workspaceID.
func (m *Manager) ListPendingApprovals(workspaceID string) []PendingApproval {
	m.mu.RLock()
	sessions := make([]*RunSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var out []PendingApproval
	for _, s := range sessions {
		run := s.Run()
		if run.WorkspaceID != workspaceID {
			continue
		}
		if req := s.approvals.Pending(); req != nil {
			out = append(out, PendingApproval{RunID: run.ID, ApprovalRequest: *req})
		}
	}
	return out
}

// execute drives one Run from `running` to a terminal state by invoking
// the selected RuntimeAdapter and routing every `tools.*` call it makes
// through handleToolCall (§4.F/§4.G/§4.H).
func (m *Manager) execute(sess *RunSession) {
	sess.setStatus(model.RunStatusRunning, "")
	sess.mu.Lock()
	now := time.Now()
	sess.run.StartedAt = &now
	sess.mu.Unlock()

	deadline := sess.Run().Deadline()
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded && !sess.isTerminal() {
				sess.approvals.CancelAll("run_timeout")
				m.finishRun(sess, model.RunStatusTimedOut, "run_timeout")
			}
		case <-sess.cancelCh:
			cancel()
		}
	}()
	defer func() { <-watchDone }()

	callback := func(cbCtx context.Context, callID, toolPath string, input map[string]any) model.CallResult {
		return m.HandleToolCall(cbCtx, sess.Run().ID, callID, toolPath, input)
	}

	start := time.Now()
	res, err := m.runtime.Execute(ctx, sess.Run().RuntimeKind, runtime.ExecuteRequest{
		RunID:     sess.Run().ID,
		Code:      sess.Run().Code,
		TimeoutMs: sess.Run().TimeoutMs,
		Snapshot:  sess.snapshot,
		Callback:  callback,
	})
	duration := time.Since(start).Milliseconds()

	if sess.isTerminal() {
		return
	}

	sess.appendEvent(model.Event{Status: "code_run", Index: 0, Stdout: res.Stdout, Stderr: res.Stderr, DurationMs: duration})
	sess.mu.Lock()
	sess.run.CodeRunCount++
	sess.mu.Unlock()

	if err != nil {
		m.finishRun(sess, model.RunStatusFailed, model.AsGatewayError(err).Message)
		return
	}

	switch res.Status {
	case "timeout":
		sess.approvals.CancelAll("run_timeout")
		m.finishRun(sess, model.RunStatusTimedOut, "run_timeout")
	case "error":
		if reason, denied := runtime.IsDenied(res.Error); denied {
			m.finishRun(sess, model.RunStatusFailed, reason)
		} else {
			m.finishRun(sess, model.RunStatusFailed, res.Error)
		}
	default:
		m.completeRun(sess, res.Value)
	}
}

func (m *Manager) completeRun(sess *RunSession, value any) {
	sess.mu.Lock()
	sess.run.Status = model.RunStatusCompleted
	sess.run.ResultValue = value
	now := time.Now()
	sess.run.CompletedAt = &now
	codeRuns := sess.run.CodeRunCount
	sess.mu.Unlock()

	sess.appendEvent(model.Event{Status: "completed", Value: value, CodeRuns: codeRuns})
}

func (m *Manager) finishRun(sess *RunSession, status model.RunStatus, reason string) {
	if sess.isTerminal() {
		return
	}
	sess.setStatus(status, reason)

	switch status {
	case model.RunStatusFailed:
		sess.appendEvent(model.Event{Status: "failed", Error: reason})
	case model.RunStatusTimedOut:
		sess.appendEvent(model.Event{Status: "timed_out", Reason: reason})
	case model.RunStatusDenied:
		sess.appendEvent(model.Event{Status: "denied", Reason: reason})
	default:
		sess.appendEvent(model.Event{Status: string(status), Reason: reason})
	}
}

// handleToolCall implements the full §4.F pipeline for one `tools.*`
// call: resolve -> policy -> approval -> credentials -> provider
// invocation, with at-most-once effect via the receipt table (invariant
// 3, scenario e).
func (m *Manager) handleToolCall(ctx context.Context, sess *RunSession, callID, toolPath string, input map[string]any) model.CallResult {
	if sess.isTerminal() {
		return model.CallResult{OK: false, Kind: "failed", Error: "run_not_live"}
	}
	if r, ok := sess.receipt(callID); ok {
		return r.Result
	}

	run := sess.Run()

	desc, ok := sess.snapshot.Lookup(toolPath)
	if !ok {
		result := model.CallResult{OK: false, Kind: "failed", Error: "unknown_tool"}
		sess.recordReceipt(model.ToolCallReceipt{CallID: callID, ToolPath: toolPath, Decision: "deny", Result: result, CreatedAt: time.Now()})
		return result
	}

	start := time.Now()
	argsJSON, _ := json.Marshal(input)
	callCtx := model.CallContext{
		RunID:       run.ID,
		WorkspaceID: run.WorkspaceID,
		ActorID:     run.ActorID,
		CallID:      callID,
		ToolPath:    toolPath,
		Deadline:    run.Deadline(),
	}

	decision, err := m.policy.Evaluate(callCtx, string(argsJSON), desc.Approval)
	if err != nil {
		return m.recordFailure(sess, callID, toolPath, "internal", start, fmt.Sprintf("internal: %v", err))
	}

	if decision == model.DecisionDeny {
		return m.recordDenied(sess, callID, toolPath, "deny", start, "policy_deny")
	}

	if decision == model.DecisionRequireApproval {
		preview := approval.BuildPreview(input, desc.Typing.PreviewKeys, m.cfg.MaxPreviewChars)
		req, acquireErr := sess.approvals.Acquire(callID, toolPath, preview, desc.Description, "", "", "", sess, sess.cancelCh)
		if acquireErr != nil {
			return m.recordDenied(sess, callID, toolPath, "require_approval", start, "run_cancelled")
		}
		if req.Status != model.ApprovalApproved {
			reason := req.Reason
			if reason == "" {
				reason = "approval_denied"
			}
			return m.recordDenied(sess, callID, toolPath, "require_approval", start, reason)
		}
	}

	headers, err := m.credentials.Resolve(desc.SourceKey, run.ActorID, "", run.WorkspaceID, credentialRequired(desc))
	if err != nil {
		return m.recordFailure(sess, callID, toolPath, "allow", start, "auth_missing")
	}

	invokeCtx, cancel := context.WithDeadline(ctx, run.Deadline())
	defer cancel()

	invokeRes, err := m.providers.Invoke(invokeCtx, desc, input, providers.InvokeContext{
		CallContext: callCtx,
		Headers:     headers,
		Timeout:     m.cfg.PerCallTimeout,
	})
	if err != nil {
		return m.recordFailure(sess, callID, toolPath, "allow", start, model.AsGatewayError(err).Message)
	}
	if invokeRes.IsError {
		return m.recordFailure(sess, callID, toolPath, "allow", start, fmt.Sprintf("provider_error: %v", invokeRes.Body))
	}

	result := model.CallResult{OK: true, Value: invokeRes.Body}
	sess.recordReceipt(model.ToolCallReceipt{
		CallID:    callID,
		ToolPath:  toolPath,
		Decision:  "allow",
		Result:    result,
		Duration:  time.Since(start),
		CreatedAt: time.Now(),
	})
	return result
}

func (m *Manager) recordDenied(sess *RunSession, callID, toolPath, decision string, start time.Time, reason string) model.CallResult {
	result := model.CallResult{OK: false, Kind: "denied", Error: reason}
	sess.recordReceipt(model.ToolCallReceipt{CallID: callID, ToolPath: toolPath, Decision: decision, Result: result, Duration: time.Since(start), CreatedAt: time.Now()})
	return result
}

func (m *Manager) recordFailure(sess *RunSession, callID, toolPath, decision string, start time.Time, errText string) model.CallResult {
	result := model.CallResult{OK: false, Kind: "failed", Error: errText}
	sess.recordReceipt(model.ToolCallReceipt{CallID: callID, ToolPath: toolPath, Decision: decision, Result: result, Duration: time.Since(start), CreatedAt: time.Now()})
	return result
}

// credentialRequired reports whether a descriptor's provider payload
// declares an auth type, meaning C must produce headers for the call to
// be meaningful.
func credentialRequired(desc model.ToolDescriptor) bool {
	if http, ok := desc.ProviderPayload.(*model.HTTPProviderPayload); ok {
		return http.AuthType != ""
	}
	return false
}
