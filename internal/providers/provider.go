// Package providers implements the Provider Registry and Invocation layer
// (§4.D): dispatching a canonical tool call to the HTTP, MCP, GraphQL, or
// built-in backend named by a ToolDescriptor's providerKind.
package providers

import (
	"context"
	"time"

	"github.com/codemode/toolgateway/internal/model"
)

// InvokeResult is a Provider's raw outcome before F maps it onto the §6.1
// envelope.
type InvokeResult struct {
	Status  int
	Body    any
	IsError bool
}

// InvokeContext carries the per-call identity/headers a Provider needs,
// propagated explicitly rather than through ambient state (§9).
type InvokeContext struct {
	model.CallContext
	Headers map[string]string
	Timeout time.Duration
}

// Provider is the invocation backend for one ProviderKind.
type Provider interface {
	Kind() model.ProviderKind
	Invoke(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic InvokeContext) (InvokeResult, error)
}

// Registry dispatches a call to the Provider registered for the
// descriptor's ProviderKind.
type Registry struct {
	providers map[model.ProviderKind]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[model.ProviderKind]Provider)}
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Kind()] = p
}

// Invoke resolves the descriptor's provider and dispatches the call. A
// per-call timeout is enforced via ic.Timeout against ctx.
func (r *Registry) Invoke(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic InvokeContext) (InvokeResult, error) {
	p, ok := r.providers[desc.ProviderKind]
	if !ok {
		return InvokeResult{}, model.Errorf(model.ErrInvocationInvalid, "no provider registered for kind %q", desc.ProviderKind)
	}

	if ic.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ic.Timeout)
		defer cancel()
	}

	return p.Invoke(ctx, desc, args, ic)
}
