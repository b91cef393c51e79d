// Package runtime implements the Runtime Dispatcher (§4.G): the
// abstraction over "run this code with this callback table" across
// in-process, subprocess, and remote-worker backends. All three adapters
// produce results of an identical shape.
package runtime

import (
	"context"
	"time"

	"github.com/codemode/toolgateway/internal/model"
)

// Callback is invoked by an adapter for every `tools.*` call the executing
// snippet makes. It blocks until F resolves the call (possibly suspending
// on an approval decision).
type Callback func(ctx context.Context, callID, toolPath string, input map[string]any) model.CallResult

// ExecuteRequest is the payload passed to Adapter.Execute.
type ExecuteRequest struct {
	RunID     string
	Code      string
	TimeoutMs int64
	Snapshot  *model.ToolRegistrySnapshot
	Callback  Callback
}

// deniedPrefix is the stable marker an adapter recognizes on a thrown
// error to map it to a `denied` outcome (§4.G, §7 propagation policy).
const deniedPrefix = "__gateway_denied__:"

// DeniedError formats a denial reason with the stable marker.
func DeniedError(reason string) string {
	return deniedPrefix + reason
}

// IsDenied reports whether a runtime-thrown error carries the denial
// marker, and returns the unwrapped reason.
func IsDenied(errText string) (string, bool) {
	if len(errText) > len(deniedPrefix) && errText[:len(deniedPrefix)] == deniedPrefix {
		return errText[len(deniedPrefix):], true
	}
	return "", false
}

// ExecuteResult is the identical-shape outcome every adapter returns
// (§4.G).
type ExecuteResult struct {
	Status     string // "ok" | "error" | "timeout"
	Stdout     string
	Stderr     string
	Value      any
	Error      string
	ExitCode   *int
	DurationMs int64
}

// Adapter abstracts one runtime backend.
type Adapter interface {
	Kind() model.RuntimeKind
	IsAvailable() bool
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
}

// Dispatcher selects an Adapter by RuntimeKind.
type Dispatcher struct {
	adapters map[model.RuntimeKind]Adapter
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{adapters: make(map[model.RuntimeKind]Adapter)}
}

func (d *Dispatcher) Register(a Adapter) {
	d.adapters[a.Kind()] = a
}

func (d *Dispatcher) Execute(ctx context.Context, kind model.RuntimeKind, req ExecuteRequest) (ExecuteResult, error) {
	a, ok := d.adapters[kind]
	if !ok || !a.IsAvailable() {
		return ExecuteResult{}, model.Errorf(model.ErrInternal, "runtime adapter %q unavailable", kind)
	}

	deadline := time.Now().Add(time.Duration(req.TimeoutMs) * time.Millisecond)
	execCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	res, err := a.Execute(execCtx, req)
	res.DurationMs = time.Since(start).Milliseconds()
	if execCtx.Err() == context.DeadlineExceeded {
		res.Status = "timeout"
	}
	return res, err
}
