package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codemode/toolgateway/internal/model"
)

type memStore struct {
	rules []model.PolicyRule
}

func (m *memStore) ListRules(workspaceID string) ([]model.PolicyRule, error) {
	return m.rules, nil
}

func TestEvaluate_DefaultFromDescriptor(t *testing.T) {
	e := NewEvaluator(&memStore{})
	d, err := e.Evaluate(model.CallContext{WorkspaceID: "w1", ToolPath: "calendar.list"}, "{}", model.ApprovalAuto)
	require.NoError(t, err)
	require.Equal(t, model.DecisionAllow, d)

	d, err = e.Evaluate(model.CallContext{WorkspaceID: "w1", ToolPath: "calendar.update"}, "{}", model.ApprovalRequired)
	require.NoError(t, err)
	require.Equal(t, model.DecisionRequireApproval, d)
}

func TestEvaluate_PolicyDenyHides(t *testing.T) {
	store := &memStore{rules: []model.PolicyRule{
		{Scope: model.ScopeWorkspace, ToolPathPattern: "github.issues.close", Effect: model.DecisionDeny, Priority: 0, CreatedAt: time.Now()},
	}}
	e := NewEvaluator(store)
	d, err := e.Evaluate(model.CallContext{WorkspaceID: "w1", ActorID: "a1", ToolPath: "github.issues.close"}, "{}", model.ApprovalAuto)
	require.NoError(t, err)
	require.Equal(t, model.DecisionDeny, d)
}

func TestEvaluate_PrecedenceActorClientBeatsActorBeatsClientBeatsWorkspace(t *testing.T) {
	now := time.Now()
	store := &memStore{rules: []model.PolicyRule{
		{Scope: model.ScopeWorkspace, ToolPathPattern: "x.*", Effect: model.DecisionDeny, Priority: 100, CreatedAt: now},
		{Scope: model.ScopeClient, ClientID: "c1", ToolPathPattern: "x.*", Effect: model.DecisionDeny, Priority: 100, CreatedAt: now},
		{Scope: model.ScopeActor, ActorID: "a1", ToolPathPattern: "x.*", Effect: model.DecisionDeny, Priority: 100, CreatedAt: now},
		{Scope: model.ScopeActorClient, ActorID: "a1", ClientID: "c1", ToolPathPattern: "x.*", Effect: model.DecisionAllow, ApprovalMode: model.OverrideAuto, Priority: 0, CreatedAt: now},
	}}
	e := NewEvaluator(store)
	d, err := e.Evaluate(model.CallContext{WorkspaceID: "w1", ActorID: "a1", ClientID: "c1", ToolPath: "x.y"}, "{}", model.ApprovalAuto)
	require.NoError(t, err)
	require.Equal(t, model.DecisionAllow, d, "actor+client tier must win over lower tiers regardless of priority")
}

func TestEvaluate_ArgumentConditionRestrictsRule(t *testing.T) {
	store := &memStore{rules: []model.PolicyRule{
		{
			Scope: model.ScopeWorkspace, ToolPathPattern: "files.write", Effect: model.DecisionDeny, Priority: 10, CreatedAt: time.Now(),
			Conditions: []model.ArgCondition{{Path: "path", Op: model.CondStartsWith, Value: "/etc"}},
		},
	}}
	e := NewEvaluator(store)

	d, err := e.Evaluate(model.CallContext{WorkspaceID: "w1", ToolPath: "files.write"}, `{"path":"/etc/passwd"}`, model.ApprovalAuto)
	require.NoError(t, err)
	require.Equal(t, model.DecisionDeny, d)

	d, err = e.Evaluate(model.CallContext{WorkspaceID: "w1", ToolPath: "files.write"}, `{"path":"/tmp/x"}`, model.ApprovalAuto)
	require.NoError(t, err)
	require.Equal(t, model.DecisionAllow, d, "condition must not match outside /etc")
}
