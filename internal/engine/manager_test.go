package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codemode/toolgateway/internal/credentials"
	"github.com/codemode/toolgateway/internal/model"
	"github.com/codemode/toolgateway/internal/policy"
	"github.com/codemode/toolgateway/internal/providers"
	"github.com/codemode/toolgateway/internal/registry"
	"github.com/codemode/toolgateway/internal/runtime"
)

type memPolicyStore struct{ rules []model.PolicyRule }

func (s *memPolicyStore) ListRules(workspaceID string) ([]model.PolicyRule, error) { return s.rules, nil }

type memCredStore struct{}

func (memCredStore) Lookup(sourceKey string, scope model.CredentialScope, scopeID string) (model.CredentialRecord, bool, error) {
	return model.CredentialRecord{}, false, nil
}

func drainUntil(t *testing.T, m *Manager, runID string, statuses ...string) model.Event {
	t.Helper()
	want := map[string]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	var seq int64
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		ev, err := m.WaitForNext(ctx, runID, seq)
		require.NoError(t, err)
		seq = ev.Seq
		if want[ev.Status] {
			return ev
		}
	}
}

func newTestManager(t *testing.T, workspaceID string, descs map[string]model.ToolDescriptor, rules []model.PolicyRule, register func(*providers.BuiltinProvider)) (*Manager, string) {
	t.Helper()

	builder := registry.NewBuilder(nil, nil)
	reg := builder.RegistryFor(workspaceID)
	reg.Publish(model.NewToolRegistrySnapshot(workspaceID, 1, descs))

	pol := policy.NewEvaluator(&memPolicyStore{rules: rules})
	creds := credentials.NewResolver(memCredStore{}, nil, nil)

	builtin := providers.NewBuiltinProvider()
	register(builtin)
	provReg := providers.NewRegistry()
	provReg.Register(builtin)

	dispatcher := runtime.NewDispatcher()
	dispatcher.Register(runtime.NewStarlarkAdapter())

	mgr := NewManager(Config{}, builder, pol, creds, provReg, dispatcher)
	return mgr, workspaceID
}

func TestEngine_AutoApprovedReadOnlyTool(t *testing.T) {
	descs := map[string]model.ToolDescriptor{
		"calendar.list": {
			Path: "calendar.list", Approval: model.ApprovalAuto, ProviderKind: model.ProviderBuiltin,
		},
	}
	mgr, ws := newTestManager(t, "ws1", descs, nil, func(b *providers.BuiltinProvider) {
		b.Register("calendar.list", providers.InMemorySourceFunc([]any{
			map[string]any{"id": "e1", "title": "Sync", "startsAt": "2025-01-01T09:00:00Z"},
		}))
	})

	run, err := mgr.SubmitRun(context.Background(), SubmitRunInput{
		WorkspaceID: ws, ActorID: "actor1",
		Code: "result = tools.calendar.list({})",
	})
	require.NoError(t, err)

	ev := drainUntil(t, mgr, run.ID, "completed", "failed")
	require.Equal(t, "completed", ev.Status)
	require.Equal(t, 1, ev.CodeRuns)
	list, ok := ev.Value.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
}

func TestEngine_ApprovalGatedWriteApproved(t *testing.T) {
	descs := map[string]model.ToolDescriptor{
		"calendar.update": {
			Path: "calendar.update", Approval: model.ApprovalRequired, ProviderKind: model.ProviderBuiltin,
			Typing: model.TypeSpec{PreviewKeys: []string{"title", "startsAt"}},
		},
	}
	mgr, ws := newTestManager(t, "ws2", descs, nil, func(b *providers.BuiltinProvider) {
		b.Register("calendar.update", func(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic providers.InvokeContext) (providers.InvokeResult, error) {
			out := map[string]any{"id": "new-1"}
			for k, v := range args {
				out[k] = v
			}
			return providers.InvokeResult{Body: out}, nil
		})
	})

	run, err := mgr.SubmitRun(context.Background(), SubmitRunInput{
		WorkspaceID: ws, ActorID: "actor1",
		Code: `result = tools.calendar.update({"title": "A", "startsAt": "2025-01-01"})`,
	})
	require.NoError(t, err)

	ev := drainUntil(t, mgr, run.ID, "awaiting_approval")
	require.Equal(t, "calendar.update", ev.Approval.ToolPath)
	require.Equal(t, "A @ 2025-01-01", ev.Approval.InputPreview)

	outcome, err := mgr.ResolveApproval(run.ID, ev.Approval.CallID, "actor1", model.ApprovalApproved, "reviewer1", "")
	require.NoError(t, err)
	require.Equal(t, model.ResolveResolved, outcome)

	done := drainUntil(t, mgr, run.ID, "completed", "failed")
	require.Equal(t, "completed", done.Status)
	value, ok := done.Value.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "A", value["title"])
	require.Equal(t, "2025-01-01", value["startsAt"])
}

func TestEngine_PolicyDenyHidesAndRejects(t *testing.T) {
	descs := map[string]model.ToolDescriptor{
		"github.issues.close": {
			Path: "github.issues.close", Approval: model.ApprovalAuto, ProviderKind: model.ProviderBuiltin,
		},
	}
	rules := []model.PolicyRule{
		{WorkspaceID: "ws3", Scope: model.ScopeWorkspace, ToolPathPattern: "github.issues.close", Effect: model.DecisionDeny, CreatedAt: time.Now()},
	}
	mgr, ws := newTestManager(t, "ws3", descs, rules, func(b *providers.BuiltinProvider) {
		b.Register("github.issues.close", providers.InMemorySourceFunc(map[string]any{"closed": true}))
	})

	run, err := mgr.SubmitRun(context.Background(), SubmitRunInput{
		WorkspaceID: ws, ActorID: "actor1",
		Code: `result = tools.github.issues.close({"owner": "o", "repo": "r", "issueNumber": 1})`,
	})
	require.NoError(t, err)

	ev := drainUntil(t, mgr, run.ID, "completed", "failed")
	require.Equal(t, "failed", ev.Status)
	require.Contains(t, ev.Error, "policy_deny")

	visible := mgr.ListTools(ws, "actor1", "")
	require.Empty(t, visible)
}

func TestEngine_CallbackReplayIsIdempotent(t *testing.T) {
	var invocations int32
	descs := map[string]model.ToolDescriptor{
		"slow.op": {Path: "slow.op", Approval: model.ApprovalAuto, ProviderKind: model.ProviderBuiltin},
	}
	mgr, ws := newTestManager(t, "ws4", descs, nil, func(b *providers.BuiltinProvider) {
		b.Register("slow.op", func(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic providers.InvokeContext) (providers.InvokeResult, error) {
			atomic.AddInt32(&invocations, 1)
			return providers.InvokeResult{Body: "done"}, nil
		})
	})

	run, err := mgr.SubmitRun(context.Background(), SubmitRunInput{
		WorkspaceID: ws, ActorID: "actor1",
		Code: "result = tools.slow.op({})",
	})
	require.NoError(t, err)
	drainUntil(t, mgr, run.ID, "completed", "failed")

	sess, ok := mgr.session(run.ID)
	require.True(t, ok)
	var callID string
	for id := range sess.receipts {
		callID = id
	}
	require.NotEmpty(t, callID)

	first := mgr.handleToolCall(context.Background(), sess, callID, "slow.op", map[string]any{})
	second := mgr.handleToolCall(context.Background(), sess, callID, "slow.op", map[string]any{})
	require.Equal(t, first, second)
	require.EqualValues(t, 1, atomic.LoadInt32(&invocations))
}

func TestEngine_CancellationDrainsApprovals(t *testing.T) {
	var invoked int32
	descs := map[string]model.ToolDescriptor{
		"calendar.update": {Path: "calendar.update", Approval: model.ApprovalRequired, ProviderKind: model.ProviderBuiltin},
	}
	mgr, ws := newTestManager(t, "ws5", descs, nil, func(b *providers.BuiltinProvider) {
		b.Register("calendar.update", func(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic providers.InvokeContext) (providers.InvokeResult, error) {
			atomic.AddInt32(&invoked, 1)
			return providers.InvokeResult{Body: "should not run"}, nil
		})
	})

	run, err := mgr.SubmitRun(context.Background(), SubmitRunInput{
		WorkspaceID: ws, ActorID: "actor1",
		Code: `result = tools.calendar.update({"title": "A", "startsAt": "2025-01-01"})`,
	})
	require.NoError(t, err)

	drainUntil(t, mgr, run.ID, "awaiting_approval")

	require.NoError(t, mgr.Cancel(run.ID, "actor1"))

	ev := drainUntil(t, mgr, run.ID, "denied", "completed", "failed")
	require.Equal(t, "denied", ev.Status)

	final, err := mgr.GetRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusDenied, final.Status)
	require.EqualValues(t, 0, atomic.LoadInt32(&invoked))
}
