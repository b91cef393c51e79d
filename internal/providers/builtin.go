package providers

import (
	"context"

	"github.com/codemode/toolgateway/internal/model"
)

// BuiltinFunc is the in-process implementation backing one built-in tool
// path. desc is the resolved ToolDescriptor for the call, letting an
// implementation read its own ProviderPayload (e.g. ai.complete's vendor
// choice, shell.exec's sandbox policy) instead of smuggling it through args.
type BuiltinFunc func(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic InvokeContext) (InvokeResult, error)

// BuiltinProvider dispatches to in-process implementations registered by
// tool path, per §4.D's "Built-in: invoke the in-process implementation."
type BuiltinProvider struct {
	funcs map[string]BuiltinFunc
}

func NewBuiltinProvider() *BuiltinProvider {
	return &BuiltinProvider{funcs: make(map[string]BuiltinFunc)}
}

func (p *BuiltinProvider) Kind() model.ProviderKind { return model.ProviderBuiltin }

// Register binds a built-in implementation to a tool path.
func (p *BuiltinProvider) Register(path string, fn BuiltinFunc) {
	p.funcs[path] = fn
}

func (p *BuiltinProvider) Invoke(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic InvokeContext) (InvokeResult, error) {
	fn, ok := p.funcs[desc.Path]
	if !ok {
		return InvokeResult{}, model.Errorf(model.ErrInvocationInvalid, "no built-in implementation registered for %q", desc.Path)
	}
	return fn(ctx, desc, args, ic)
}

// InMemorySourceFunc is a convenience constructor for descriptors backed
// by a literal in-memory table (used by tests and fixture workspaces --
// e.g. the calendar source in the end-to-end scenarios).
func InMemorySourceFunc(result any) BuiltinFunc {
	return func(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic InvokeContext) (InvokeResult, error) {
		return InvokeResult{Body: result}, nil
	}
}

// RegisterDefaults binds the gateway's supplemental built-in tools
// (ai.complete, shell.exec) onto p, in addition to whatever
// workspace-specific in-memory tools a caller registers.
func (p *BuiltinProvider) RegisterDefaults() {
	p.Register("ai.complete", AICompleteFunc())
	p.Register("shell.exec", ShellExecFunc())
}

// RequireString fetches a required string argument, returning an
// invocation_invalid error when absent.
func RequireString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", model.Errorf(model.ErrInvocationInvalid, "missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", model.Errorf(model.ErrInvocationInvalid, "argument %q must be a string, got %T", key, v)
	}
	return s, nil
}
