package approval

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codemode/toolgateway/internal/model"
)

// decisionSlot is a single awaitable decision, the plain-Go counterpart of
// the teacher's ResponseSlot[T] — here delivered over a channel instead of
// workflow.Await, since the coordinator runs outside Temporal (§9: "a
// per-Run channel plus a mutex-protected event list").
type decisionSlot struct {
	done chan struct{}
	once sync.Once
	req  *model.ApprovalRequest
}

func newDecisionSlot(req *model.ApprovalRequest) *decisionSlot {
	return &decisionSlot{done: make(chan struct{}), req: req}
}

func (s *decisionSlot) deliver() {
	s.once.Do(func() { close(s.done) })
}

// waiter is a queued Acquire call: its slot is already built, and turn is
// closed once it becomes the pending slot.
type waiter struct {
	slot *decisionSlot
	turn chan struct{}
}

// RunApprovals holds the approval-coordinator state for one Run: the
// single outstanding request and the waiter queue for calls arriving
// while a decision is pending (§4.E protocol steps 1 and 5).
type RunApprovals struct {
	mu      sync.Mutex
	pending *decisionSlot
	waiters []waiter

	requesterID string
	maxPreview  int
}

func NewRunApprovals(requesterID string, maxPreviewChars int) *RunApprovals {
	return &RunApprovals{requesterID: requesterID, maxPreview: maxPreviewChars}
}

// EventEmitter is called with an awaiting_approval event when a request is
// materialized (§4.E step 3).
type EventEmitter interface {
	EmitAwaitingApproval(req *model.ApprovalRequest)
}

// Acquire runs the full §4.E protocol for one require_approval call: wait
// for the approval slot, materialize and emit the request, then block
// until resolveApproval or cancel delivers a decision. cancelCh is closed
// by the Run Lifecycle Manager on cancellation/timeout.
func (a *RunApprovals) Acquire(callID, toolPath, preview string, title, details, link, codeSnippet string, emitter EventEmitter, cancelCh <-chan struct{}) (*model.ApprovalRequest, error) {
	// Build the request and its slot before touching coordinator state, so
	// the lock below only ever has to do one thing: decide whether this
	// slot becomes pending right now or gets queued.
	req := &model.ApprovalRequest{
		CallID:       callID,
		ToolPath:     toolPath,
		InputPreview: preview,
		RequesterID:  a.requesterID,
		Title:        title,
		Details:      details,
		Link:         link,
		CodeSnippet:  codeSnippet,
		Status:       model.ApprovalPending,
		CreatedAt:    time.Now(),
	}
	slot := newDecisionSlot(req)
	myTurn := make(chan struct{})

	a.mu.Lock()
	if a.pending == nil {
		a.pending = slot // claim the slot in the same critical section as the check
		close(myTurn)
	} else {
		a.waiters = append(a.waiters, waiter{slot: slot, turn: myTurn})
	}
	a.mu.Unlock()

	select {
	case <-myTurn:
	case <-cancelCh:
		return nil, model.Errorf(model.ErrInternal, "run cancelled while waiting for approval slot")
	}

	if emitter != nil {
		emitter.EmitAwaitingApproval(req)
	}

	select {
	case <-slot.done:
	case <-cancelCh:
		a.mu.Lock()
		if slot.req.Status == model.ApprovalPending {
			a.finishLocked(slot, model.ApprovalDenied, "run_cancelled", "")
		}
		a.mu.Unlock()
		<-slot.done
	}

	return req, nil
}

// Resolve implements resolveApproval(runId, callId, actorId, decision)
// (§4.E). The caller (engine) has already mapped runId to this
// RunApprovals; actorId authorization and callId matching happen here.
func (a *RunApprovals) Resolve(callID, actorID string, decision model.ApprovalStatus, reviewerID, reason string) model.ResolveApprovalOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	if actorID != a.requesterID {
		return model.ResolveUnauthorized
	}
	if a.pending == nil || a.pending.req.CallID != callID {
		return model.ResolveNotFound
	}
	if a.pending.req.Status != model.ApprovalPending {
		return model.ResolveNotFound
	}
	slot := a.pending

	a.finishLocked(slot, decision, reason, reviewerID)
	return model.ResolveResolved
}

// finishLocked applies a decision to slot and hands the pending position to
// the next waiter, if any, before releasing it. The handoff happens while
// a.mu is still held so a.pending is never nil with a waiter already
// selected to take it — otherwise a concurrent Acquire could grab the slot
// out from under the waiter it was just promised to. Callers must hold a.mu.
func (a *RunApprovals) finishLocked(slot *decisionSlot, decision model.ApprovalStatus, reason, reviewerID string) {
	now := time.Now()
	slot.req.Status = decision
	slot.req.Reason = reason
	slot.req.ReviewerID = reviewerID
	slot.req.ResolvedAt = &now

	if a.pending == slot {
		a.pending = nil
		if len(a.waiters) > 0 {
			next := a.waiters[0]
			a.waiters = a.waiters[1:]
			a.pending = next.slot
			close(next.turn)
		}
	}
	slot.deliver()
}

// CancelAll resolves the currently pending approval (if any) as denied
// with the given reason ("run_cancelled" or "run_timeout" from H's
// cancel/timeout handling, §4.H).
func (a *RunApprovals) CancelAll(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return
	}
	a.finishLocked(a.pending, model.ApprovalDenied, reason, "")
}

// Pending returns the currently outstanding approval request, or nil.
func (a *RunApprovals) Pending() *model.ApprovalRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return nil
	}
	return a.pending.req
}

// NewCallID mints a unique call id for a tools.* invocation.
func NewCallID() string {
	return uuid.NewString()
}
