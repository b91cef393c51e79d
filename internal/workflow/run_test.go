package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/codemode/toolgateway/internal/credentials"
	"github.com/codemode/toolgateway/internal/engine"
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

// newTestEngine builds a real engine.Manager wired with builtin providers,
// matching the engine package's own test helper (no mocked business logic —
// this package only tests the Temporal wiring around a real Manager).
func newTestEngine(t *testing.T, descs map[string]model.ToolDescriptor, register func(*providers.BuiltinProvider)) (*engine.Manager, *registry.Builder, string) {
	t.Helper()
	workspaceID := "ws1"

	builder := registry.NewBuilder(nil, nil)
	builder.RegistryFor(workspaceID).Publish(model.NewToolRegistrySnapshot(workspaceID, 1, descs))

	pol := policy.NewEvaluator(&memPolicyStore{})
	creds := credentials.NewResolver(memCredStore{}, nil, nil)

	builtin := providers.NewBuiltinProvider()
	register(builtin)
	provReg := providers.NewRegistry()
	provReg.Register(builtin)

	dispatcher := runtime.NewDispatcher()
	dispatcher.Register(runtime.NewStarlarkAdapter())

	mgr := engine.NewManager(engine.Config{}, builder, pol, creds, provReg, dispatcher)
	return mgr, builder, workspaceID
}

type RunWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func TestRunWorkflowSuite(t *testing.T) {
	suite.Run(t, new(RunWorkflowTestSuite))
}

func (s *RunWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
}

func (s *RunWorkflowTestSuite) registerActivities(a *Activities) {
	s.env.RegisterActivity(a.ExecuteRun)
	s.env.RegisterActivity(a.ResolveApprovalDecision)
	s.env.RegisterActivity(a.CancelRun)
}

func (s *RunWorkflowTestSuite) TestSupervisesAutoApprovedRunToCompletion() {
	mgr, _, ws := newTestEngine(s.T(), map[string]model.ToolDescriptor{
		"calendar.list": {Path: "calendar.list", Approval: model.ApprovalAuto, ProviderKind: model.ProviderBuiltin},
	}, func(b *providers.BuiltinProvider) {
		b.Register("calendar.list", providers.InMemorySourceFunc([]any{map[string]any{"id": "e1"}}))
	})
	s.registerActivities(&Activities{Engine: mgr})

	run, err := mgr.SubmitRun(context.Background(), engine.SubmitRunInput{
		WorkspaceID: ws, ActorID: "actor1", Code: "result = tools.calendar.list({})",
	})
	require.NoError(s.T(), err)

	s.env.ExecuteWorkflow(RunWorkflow, RunWorkflowInput{RunID: run.ID, TimeoutMs: 30_000})

	require.True(s.T(), s.env.IsWorkflowCompleted())
	require.NoError(s.T(), s.env.GetWorkflowError())

	var result model.Run
	require.NoError(s.T(), s.env.GetWorkflowResult(&result))
	require.Equal(s.T(), model.RunStatusCompleted, result.Status)
}

func (s *RunWorkflowTestSuite) TestResolveApprovalUpdateUnblocksRun() {
	mgr, _, ws := newTestEngine(s.T(), map[string]model.ToolDescriptor{
		"calendar.update": {Path: "calendar.update", Approval: model.ApprovalRequired, ProviderKind: model.ProviderBuiltin},
	}, func(b *providers.BuiltinProvider) {
		b.Register("calendar.update", providers.InMemorySourceFunc(map[string]any{"id": "new-1"}))
	})
	s.registerActivities(&Activities{Engine: mgr})

	run, err := mgr.SubmitRun(context.Background(), engine.SubmitRunInput{
		WorkspaceID: ws, ActorID: "actor1",
		Code: `result = tools.calendar.update({"title": "A"})`,
	})
	require.NoError(s.T(), err)

	s.env.RegisterDelayedCallback(func() {
		// Poll the real (non-simulated) Manager directly for the callId
		// since this Update fires on the workflow's virtual clock, which
		// the engine's event stream does not share.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ev, err := mgr.WaitForNext(ctx, run.ID, 0)
		require.NoError(s.T(), err)
		require.Equal(s.T(), "awaiting_approval", ev.Status)

		s.env.UpdateWorkflow(UpdateResolveApproval, "approve-1", &testsuite.TestUpdateCallback{
			OnAccept:   func() {},
			OnReject:   func(error) {},
			OnComplete: func(interface{}, error) {},
		}, ApprovalDecisionInput{
			CallID: ev.Approval.CallID, ActorID: "actor1", Decision: model.ApprovalApproved, ReviewerID: "reviewer1",
		})
	}, time.Millisecond*10)

	s.env.ExecuteWorkflow(RunWorkflow, RunWorkflowInput{RunID: run.ID, TimeoutMs: 30_000})

	require.True(s.T(), s.env.IsWorkflowCompleted())
	require.NoError(s.T(), s.env.GetWorkflowError())

	var result model.Run
	require.NoError(s.T(), s.env.GetWorkflowResult(&result))
	require.Equal(s.T(), model.RunStatusCompleted, result.Status)
}
