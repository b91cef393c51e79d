package policy

import (
	"sort"
	"sync"

	"github.com/codemode/toolgateway/internal/model"
)

// Store is the persistence port B reads rules from on a cache miss or
// version bump. A concrete StateStore adapter implements this.
type Store interface {
	ListRules(workspaceID string) ([]model.PolicyRule, error)
}

// Evaluator resolves PolicyDecisions by precedence: actor+client > actor >
// client > workspace > descriptor default. It caches the rule set per
// workspace and invalidates on an explicit version bump (Invalidate),
// mirroring the teacher's Policy type which indexes rules for fast lookup.
type Evaluator struct {
	store Store

	mu    sync.RWMutex
	cache map[string][]model.PolicyRule
}

func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store, cache: make(map[string][]model.PolicyRule)}
}

// Invalidate drops the cached rule set for a workspace, forcing the next
// Evaluate to reload from Store.
func (e *Evaluator) Invalidate(workspaceID string) {
	e.mu.Lock()
	delete(e.cache, workspaceID)
	e.mu.Unlock()
}

func (e *Evaluator) rules(workspaceID string) ([]model.PolicyRule, error) {
	e.mu.RLock()
	rules, ok := e.cache[workspaceID]
	e.mu.RUnlock()
	if ok {
		return rules, nil
	}

	rules, err := e.store.ListRules(workspaceID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[workspaceID] = rules
	e.mu.Unlock()
	return rules, nil
}

var scopeRank = map[model.PolicyScope]int{
	model.ScopeActorClient: 4,
	model.ScopeActor:       3,
	model.ScopeClient:      2,
	model.ScopeWorkspace:   1,
}

// Evaluate resolves a decision for one call. argsJSON is the call's raw
// argument object, used to test ArgConditions. descriptorApproval is the
// ToolDescriptor's own approval field, consulted only when no rule
// matches.
func (e *Evaluator) Evaluate(ctx model.CallContext, argsJSON string, descriptorApproval model.ApprovalMode) (model.PolicyDecision, error) {
	rules, err := e.rules(ctx.WorkspaceID)
	if err != nil {
		return "", err
	}

	var candidates []model.PolicyRule
	for _, r := range rules {
		if !scopeApplies(r, ctx) {
			continue
		}
		if !matchToolPath(r.ToolPathPattern, ctx.ToolPath) {
			continue
		}
		if !matchConditions(r.Conditions, argsJSON) {
			continue
		}
		candidates = append(candidates, r)
	}

	if len(candidates) == 0 {
		return defaultDecision(descriptorApproval), nil
	}

	// Highest precedence tier wins; within a tier, highest priority wins;
	// ties broken by creation time (earlier first, i.e. first rule
	// registered stays authoritative).
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i], candidates[j]
		if scopeRank[ri.Scope] != scopeRank[rj.Scope] {
			return scopeRank[ri.Scope] > scopeRank[rj.Scope]
		}
		if ri.Priority != rj.Priority {
			return ri.Priority > rj.Priority
		}
		return ri.CreatedAt.Before(rj.CreatedAt)
	})

	winner := candidates[0]
	if winner.Effect == model.DecisionDeny {
		return model.DecisionDeny, nil
	}

	// "allow" overrides require_approval only if its priority is strictly
	// higher than any competing require_approval at the same or higher
	// tier — here expressed as: the sorted winner already reflects the
	// highest tier/priority, so its ApprovalMode override decides outright.
	switch winner.ApprovalMode {
	case model.OverrideAuto:
		return model.DecisionAllow, nil
	case model.OverrideRequired:
		return model.DecisionRequireApproval, nil
	default:
		return defaultDecision(descriptorApproval), nil
	}
}

func scopeApplies(r model.PolicyRule, ctx model.CallContext) bool {
	switch r.Scope {
	case model.ScopeActorClient:
		return r.ActorID == ctx.ActorID && r.ClientID == ctx.ClientID
	case model.ScopeActor:
		return r.ActorID == ctx.ActorID
	case model.ScopeClient:
		return r.ClientID == ctx.ClientID
	case model.ScopeWorkspace:
		return true
	default:
		return false
	}
}

func defaultDecision(approval model.ApprovalMode) model.PolicyDecision {
	if approval == model.ApprovalRequired {
		return model.DecisionRequireApproval
	}
	return model.DecisionAllow
}
