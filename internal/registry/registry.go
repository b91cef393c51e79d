// Package registry implements the Tool Registry (§4.A) and the Workspace
// Tool Builder (§4.I): deriving, diffing, and atomically publishing
// per-workspace ToolRegistrySnapshots.
package registry

import (
	"sync/atomic"

	"github.com/codemode/toolgateway/internal/model"
)

// Registry holds the latest published ToolRegistrySnapshot for one
// workspace. A snapshot is immutable once observed by a Run; the builder
// publishes new versions atomically so in-flight runs are never disturbed
// (invariant 4 / §5 shared-resource policy).
type Registry struct {
	current atomic.Pointer[model.ToolRegistrySnapshot]
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(&model.ToolRegistrySnapshot{Descriptors: map[string]model.ToolDescriptor{}})
	return r
}

// Snapshot returns the currently published snapshot, to be pinned by a
// starting Run.
func (r *Registry) Snapshot() *model.ToolRegistrySnapshot {
	return r.current.Load()
}

// Publish atomically installs a new snapshot.
func (r *Registry) Publish(s *model.ToolRegistrySnapshot) {
	r.current.Store(s)
}

// PolicyHider is consulted by ListVisible to mask deny'd tools from the
// descriptor list (§4.A: "applying deny from B to hide tools outright").
type PolicyHider interface {
	Evaluate(ctx model.CallContext, argsJSON string, descriptorApproval model.ApprovalMode) (model.PolicyDecision, error)
}

// ListVisible returns every descriptor in snap not hidden by a `deny`
// policy decision for ctx.
func ListVisible(snap *model.ToolRegistrySnapshot, hider PolicyHider, ctx model.CallContext) []model.ToolDescriptor {
	if snap == nil {
		return nil
	}
	out := make([]model.ToolDescriptor, 0, len(snap.Descriptors))
	for path, d := range snap.Descriptors {
		callCtx := ctx
		callCtx.ToolPath = path
		decision, err := hider.Evaluate(callCtx, "{}", d.Approval)
		if err == nil && decision == model.DecisionDeny {
			continue
		}
		out = append(out, d)
	}
	return out
}
