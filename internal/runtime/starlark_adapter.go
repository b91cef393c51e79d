package runtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/codemode/toolgateway/internal/model"
)

// StarlarkAdapter is the local-inproc RuntimeAdapter (§4.G): a sandboxed
// scripting context with a "tools" namespace whose chained attribute
// access and call turns into a callback into F. Starlark's deterministic,
// side-effect-free-by-default execution model is the pack's answer to "a
// sandboxed scripting language" — the Non-goal excludes JavaScript
// language semantics specifically, not the class of embeddable sandboxed
// interpreters.
//
// Snippets are plain Starlark: `result = tools.calendar.list({})`. There
// is no async/await; the callback blocks the evaluating goroutine for the
// duration of the call, which is fine because each Run already executes
// on its own goroutine.
type StarlarkAdapter struct{}

func NewStarlarkAdapter() *StarlarkAdapter { return &StarlarkAdapter{} }

func (a *StarlarkAdapter) Kind() model.RuntimeKind { return model.RuntimeLocalInproc }

func (a *StarlarkAdapter) IsAvailable() bool { return true }

func (a *StarlarkAdapter) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	thread := &starlark.Thread{
		Name: req.RunID,
		Load: nil,
	}
	thread.SetLocal("gateway_ctx", ctx)

	predeclared := starlark.StringDict{
		"tools":    newToolsNamespace(ctx, nil, req.Callback),
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
		"catching": starlark.NewBuiltin("catching", catchingBuiltin),
	}

	globals, err := starlark.ExecFile(thread, req.RunID+".star", req.Code, predeclared)
	if err != nil {
		if reason, ok := extractDenied(err); ok {
			return ExecuteResult{Status: "error", Error: DeniedError(reason)}, nil
		}
		return ExecuteResult{Status: "error", Error: err.Error()}, nil
	}

	resultVal, ok := globals["result"]
	if !ok {
		return ExecuteResult{Status: "ok", Value: nil}, nil
	}
	goVal, err := toGo(resultVal)
	if err != nil {
		return ExecuteResult{Status: "error", Error: err.Error()}, nil
	}
	return ExecuteResult{Status: "ok", Value: goVal}, nil
}

// extractDenied unwraps a starlark.EvalError whose underlying Go error
// carries the denial marker.
func extractDenied(err error) (string, bool) {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		return IsDenied(evalErr.Msg)
	}
	return IsDenied(err.Error())
}

// toolsNamespace implements a dotted-path proxy: attribute access appends
// a path segment, calling it dispatches through the callback.
type toolsNamespace struct {
	ctx      context.Context
	path     []string
	callback Callback
}

func newToolsNamespace(ctx context.Context, path []string, cb Callback) *toolsNamespace {
	return &toolsNamespace{ctx: ctx, path: path, callback: cb}
}

var (
	_ starlark.Value    = (*toolsNamespace)(nil)
	_ starlark.HasAttrs = (*toolsNamespace)(nil)
	_ starlark.Callable = (*toolsNamespace)(nil)
)

func (t *toolsNamespace) String() string        { return "tools." + joinDots(t.path) }
func (t *toolsNamespace) Type() string           { return "tools_namespace" }
func (t *toolsNamespace) Freeze()                {}
func (t *toolsNamespace) Truth() starlark.Bool    { return starlark.True }
func (t *toolsNamespace) Hash() (uint32, error)  { return 0, fmt.Errorf("unhashable type: tools_namespace") }
func (t *toolsNamespace) Name() string           { return joinDots(t.path) }

func (t *toolsNamespace) Attr(name string) (starlark.Value, error) {
	next := append(append([]string{}, t.path...), name)
	return newToolsNamespace(t.ctx, next, t.callback), nil
}

func (t *toolsNamespace) AttrNames() []string { return nil }

func (t *toolsNamespace) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(t.path) < 1 {
		return nil, fmt.Errorf("tools must be called as tools.<path>(args)")
	}

	var argDict map[string]any
	if len(args) > 0 {
		goVal, err := toGo(args[0])
		if err != nil {
			return nil, err
		}
		m, ok := goVal.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tools.%s expects a single dict argument", joinDots(t.path))
		}
		argDict = m
	} else {
		argDict = map[string]any{}
	}
	for _, kw := range kwargs {
		if argDict == nil {
			argDict = map[string]any{}
		}
		v, err := toGo(kw[1])
		if err != nil {
			return nil, err
		}
		argDict[string(kw[0].(starlark.String))] = v
	}

	callID := uuid.NewString()
	result := t.callback(t.ctx, callID, joinDots(t.path), argDict)

	if !result.OK {
		if result.Kind == "denied" {
			return nil, fmt.Errorf("%s", DeniedError(result.Error))
		}
		return nil, fmt.Errorf("%s", result.Error)
	}
	return fromGo(result.Value)
}

// catchingBuiltin adapts a JS `try { ... } catch(e) { ... }` around a
// `tools.*` call onto Starlark, which has no exception-handling syntax of
// its own: `catching(fn, fallback)` calls fn() and returns fallback if fn
// raised an error (a denied approval, a policy deny, a provider failure),
// or fn()'s own return value otherwise. fn takes no arguments.
func catchingBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Callable
	var fallback starlark.Value = starlark.None
	if err := starlark.UnpackArgs("catching", args, kwargs, "fn", &fn, "fallback?", &fallback); err != nil {
		return nil, err
	}
	result, err := starlark.Call(thread, fn, nil, nil)
	if err != nil {
		return fallback, nil
	}
	return result, nil
}

func joinDots(segs []string) string {
	out := ""
	for i, s := range segs {
		if i > 0 {
			out += "."
		}
		out += s
	}
	return out
}
