package approval

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codemode/toolgateway/internal/model"
)

type recordingEmitter struct {
	mu    sync.Mutex
	seen  []*model.ApprovalRequest
}

func (e *recordingEmitter) EmitAwaitingApproval(req *model.ApprovalRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, req)
}

func TestAcquire_ResolveApproved(t *testing.T) {
	a := NewRunApprovals("actor-1", 500)
	emitter := &recordingEmitter{}
	cancelCh := make(chan struct{})

	done := make(chan *model.ApprovalRequest, 1)
	go func() {
		req, err := a.Acquire("call-1", "calendar.update", "A @ 2025-01-01", "", "", "", "", emitter, cancelCh)
		require.NoError(t, err)
		done <- req
	}()

	require.Eventually(t, func() bool {
		emitter.mu.Lock()
		defer emitter.mu.Unlock()
		return len(emitter.seen) == 1
	}, time.Second, time.Millisecond)

	outcome := a.Resolve("call-1", "actor-1", model.ApprovalApproved, "reviewer-1", "")
	require.Equal(t, model.ResolveResolved, outcome)

	select {
	case req := <-done:
		require.Equal(t, model.ApprovalApproved, req.Status)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after resolution")
	}
}

func TestResolve_UnauthorizedAndNotFound(t *testing.T) {
	a := NewRunApprovals("actor-1", 500)
	cancelCh := make(chan struct{})
	emitter := &recordingEmitter{}

	go func() { _, _ = a.Acquire("call-1", "x.y", "{}", "", "", "", "", emitter, cancelCh) }()
	require.Eventually(t, func() bool {
		emitter.mu.Lock()
		defer emitter.mu.Unlock()
		return len(emitter.seen) == 1
	}, time.Second, time.Millisecond)

	require.Equal(t, model.ResolveUnauthorized, a.Resolve("call-1", "someone-else", model.ApprovalApproved, "", ""))
	require.Equal(t, model.ResolveNotFound, a.Resolve("wrong-call", "actor-1", model.ApprovalApproved, "", ""))

	require.Equal(t, model.ResolveResolved, a.Resolve("call-1", "actor-1", model.ApprovalApproved, "", ""))
	// Duplicate resolution of the same call id is rejected (invariant: no
	// longer pending).
	require.Equal(t, model.ResolveNotFound, a.Resolve("call-1", "actor-1", model.ApprovalApproved, "", ""))
}

func TestAcquire_OnlyOnePendingAtATime(t *testing.T) {
	a := NewRunApprovals("actor-1", 500)
	cancelCh := make(chan struct{})
	emitter := &recordingEmitter{}

	firstStarted := make(chan struct{})
	secondDone := make(chan struct{})

	go func() {
		_, _ = a.Acquire("call-1", "a", "{}", "", "", "", "", emitter, cancelCh)
	}()
	require.Eventually(t, func() bool {
		emitter.mu.Lock()
		defer emitter.mu.Unlock()
		return len(emitter.seen) == 1
	}, time.Second, time.Millisecond)
	close(firstStarted)

	go func() {
		_, _ = a.Acquire("call-2", "b", "{}", "", "", "", "", emitter, cancelCh)
		close(secondDone)
	}()

	// The second call must not emit its awaiting_approval event until the
	// first resolves.
	time.Sleep(20 * time.Millisecond)
	emitter.mu.Lock()
	require.Len(t, emitter.seen, 1, "second approval must not be materialized while the first is pending")
	emitter.mu.Unlock()

	require.Equal(t, model.ResolveResolved, a.Resolve("call-1", "actor-1", model.ApprovalApproved, "", ""))

	require.Eventually(t, func() bool {
		emitter.mu.Lock()
		defer emitter.mu.Unlock()
		return len(emitter.seen) == 2
	}, time.Second, time.Millisecond)

	require.Equal(t, model.ResolveResolved, a.Resolve("call-2", "actor-1", model.ApprovalDenied, "", ""))
	<-secondDone
}

// TestAcquire_ConcurrentCallsDoNotStrand races two Acquire calls against the
// same RunApprovals with no artificial delay between them (both released
// from a barrier at once). Neither call id may be stranded: both must
// eventually reach "pending" and both must be resolvable.
func TestAcquire_ConcurrentCallsDoNotStrand(t *testing.T) {
	a := NewRunApprovals("actor-1", 500)
	cancelCh := make(chan struct{})
	emitter := &recordingEmitter{}

	var start sync.WaitGroup
	start.Add(1)
	var wg sync.WaitGroup
	results := make(chan *model.ApprovalRequest, 2)

	for _, callID := range []string{"call-1", "call-2"} {
		callID := callID
		wg.Add(1)
		go func() {
			defer wg.Done()
			start.Wait()
			req, err := a.Acquire(callID, "a", "{}", "", "", "", "", emitter, cancelCh)
			require.NoError(t, err)
			results <- req
		}()
	}
	start.Done() // release both goroutines at once

	require.Eventually(t, func() bool {
		emitter.mu.Lock()
		defer emitter.mu.Unlock()
		return len(emitter.seen) == 1
	}, time.Second, time.Millisecond)

	pending := a.Pending()
	require.NotNil(t, pending, "exactly one of the two calls must have claimed the pending slot")
	other := "call-2"
	if pending.CallID == "call-2" {
		other = "call-1"
	}

	require.Equal(t, model.ResolveResolved, a.Resolve(pending.CallID, "actor-1", model.ApprovalApproved, "", ""))

	require.Eventually(t, func() bool {
		emitter.mu.Lock()
		defer emitter.mu.Unlock()
		return len(emitter.seen) == 2
	}, time.Second, time.Millisecond)

	require.Equal(t, model.ResolveResolved, a.Resolve(other, "actor-1", model.ApprovalDenied, "", ""),
		"second call must still be resolvable, not stranded by the first claiming its slot")

	wg.Wait()
	close(results)
	var got []string
	for req := range results {
		got = append(got, req.CallID)
	}
	require.ElementsMatch(t, []string{"call-1", "call-2"}, got)
}
