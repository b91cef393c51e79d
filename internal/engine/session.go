package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codemode/toolgateway/internal/approval"
	"github.com/codemode/toolgateway/internal/model"
)

// highWaterMark is the event count past which every append triggers the
// oldest-non-terminal-drop policy (§4.H: "unbounded per-run queue
// with a high-water mark triggering a backpressure event").
const highWaterMark = 500

// terminalEventStatuses never get dropped by the backpressure policy.
var terminalEventStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"timed_out": true,
	"denied":    true,
}

// RunSession is the live, in-memory state for one Run: the mutable
// fields H owns, the event log consumers drain via WaitForNext, and the
// per-Run approval coordinator (§4.E/§4.H/§5).
type RunSession struct {
	mu  sync.Mutex
	run model.Run

	snapshot *model.ToolRegistrySnapshot

	approvals *approval.RunApprovals
	receipts  map[string]model.ToolCallReceipt

	events   []model.Event
	nextSeq  int64
	notifyCh chan struct{}

	cancelCh   chan struct{}
	cancelOnce sync.Once
}

func newRunSession(run model.Run, maxPreviewChars int) *RunSession {
	return &RunSession{
		run:       run,
		approvals: approval.NewRunApprovals(run.ActorID, maxPreviewChars),
		receipts:  make(map[string]model.ToolCallReceipt),
		cancelCh:  make(chan struct{}),
		notifyCh:  make(chan struct{}),
	}
}

// Run returns a copy of the current Run record.
func (s *RunSession) Run() model.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

func (s *RunSession) setStatus(status model.RunStatus, reason string) {
	s.mu.Lock()
	s.run.Status = status
	s.run.TerminalReason = reason
	if status.Terminal() {
		now := time.Now()
		s.run.CompletedAt = &now
	}
	s.mu.Unlock()
}

func (s *RunSession) isTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.Status.Terminal()
}

func (s *RunSession) receipt(callID string) (model.ToolCallReceipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[callID]
	return r, ok
}

func (s *RunSession) recordReceipt(r model.ToolCallReceipt) {
	s.mu.Lock()
	s.receipts[r.CallID] = r
	s.mu.Unlock()
}

// appendEvent assigns the next sequence number, appends the event, and
// wakes every blocked WaitForNext consumer (§4.H ordering invariant).
func (s *RunSession) appendEvent(ev model.Event) model.Event {
	s.mu.Lock()
	s.nextSeq++
	ev.Seq = s.nextSeq
	ev.RunID = s.run.ID
	ev.CreatedAt = time.Now()
	s.events = append(s.events, ev)

	if len(s.events) > highWaterMark {
		s.dropOldestNonTerminalLocked()
	}

	ch := s.notifyCh
	s.notifyCh = make(chan struct{})
	s.mu.Unlock()
	close(ch)
	return ev
}

// dropOldestNonTerminalLocked implements the backpressure policy: it drops
// the oldest non-terminal event (never a terminal one) and records a
// backpressure event in its place so consumers can tell their event log
// has gaps (§4.H). The queue does not shrink: past the mark it still grows
// by one entry per appended event. Callers must hold s.mu; appends directly
// rather than via appendEvent, which would re-enter this method and
// re-lock s.mu.
func (s *RunSession) dropOldestNonTerminalLocked() {
	for i, ev := range s.events {
		if !terminalEventStatuses[ev.Status] {
			dropped := ev
			s.events = append(s.events[:i:i], s.events[i+1:]...)

			s.nextSeq++
			s.events = append(s.events, model.Event{
				Seq:       s.nextSeq,
				RunID:     s.run.ID,
				Status:    "backpressure",
				CreatedAt: time.Now(),
				Reason:    "dropped_oldest_non_terminal",
				Message:   fmt.Sprintf("dropped event seq=%d status=%q past high-water mark of %d", dropped.Seq, dropped.Status, highWaterMark),
			})
			return
		}
	}
}

// WaitForNext blocks until an event with Seq > afterSeq exists, or ctx is
// cancelled. Consumers poll with their own monotonic cursor, which is what
// gives independent consumers FIFO, in-order delivery (§5 ordering
// guarantee, §8 property 9).
func (s *RunSession) WaitForNext(ctx context.Context, afterSeq int64) (model.Event, error) {
	for {
		s.mu.Lock()
		for _, ev := range s.events {
			if ev.Seq > afterSeq {
				s.mu.Unlock()
				return ev, nil
			}
		}
		ch := s.notifyCh
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return model.Event{}, ctx.Err()
		}
	}
}

// EmitAwaitingApproval implements approval.EventEmitter (§4.E step 3).
func (s *RunSession) EmitAwaitingApproval(req *model.ApprovalRequest) {
	s.appendEvent(model.Event{Status: "awaiting_approval", Approval: req.View()})
}

// cancel closes cancelCh exactly once, waking every suspension point that
// selects on it (runtime execute, approval acquire, approval slot wait).
func (s *RunSession) cancel() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}
