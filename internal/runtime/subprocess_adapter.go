package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/codemode/toolgateway/internal/model"
)

// WorkerSentinelArg is the argument cmd/gateway checks for at the top of
// main() to re-exec itself as a subprocess worker instead of starting the
// gateway normally.
const WorkerSentinelArg = "runtime-subprocess-worker"

// wireFrame is one line of the newline-delimited JSON protocol spoken
// over the child's stdin/stdout (§4.G: "the tools proxy issues JSON-RPC
// over stdio to the parent").
type wireFrame struct {
	Type string `json:"type"` // "start" | "call" | "result" | "done"

	// "start" (parent -> child)
	RunID     string `json:"runId,omitempty"`
	Code      string `json:"code,omitempty"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`

	// "call" (child -> parent)
	CallID   string         `json:"callId,omitempty"`
	ToolPath string         `json:"toolPath,omitempty"`
	Input    map[string]any `json:"input,omitempty"`

	// "result" (parent -> child)
	Result *model.CallResult `json:"result,omitempty"`

	// "done" (child -> parent)
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// SubprocessAdapter hosts the Starlark VM in a child process, re-exec'd
// from the current binary, and routes its `tools.*` calls back through
// the supplied Callback (§4.G subprocess contract).
type SubprocessAdapter struct {
	selfPath string
}

func NewSubprocessAdapter(selfPath string) *SubprocessAdapter {
	return &SubprocessAdapter{selfPath: selfPath}
}

func (a *SubprocessAdapter) Kind() model.RuntimeKind { return model.RuntimeSubprocess }

func (a *SubprocessAdapter) IsAvailable() bool { return a.selfPath != "" }

func (a *SubprocessAdapter) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	cmd := exec.CommandContext(ctx, a.selfPath, WorkerSentinelArg)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return ExecuteResult{}, model.Errorf(model.ErrInternal, "subprocess stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ExecuteResult{}, model.Errorf(model.ErrInternal, "subprocess stdout pipe: %v", err)
	}
	var stderrBuf safeBuffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return ExecuteResult{}, model.Errorf(model.ErrInternal, "start subprocess worker: %v", err)
	}

	enc := json.NewEncoder(stdin)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if err := enc.Encode(wireFrame{Type: "start", RunID: req.RunID, Code: req.Code, TimeoutMs: req.TimeoutMs}); err != nil {
		_ = cmd.Process.Kill()
		return ExecuteResult{}, model.Errorf(model.ErrInternal, "send start frame: %v", err)
	}

	var result ExecuteResult
	for scanner.Scan() {
		var frame wireFrame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "call":
			cr := req.Callback(ctx, frame.CallID, frame.ToolPath, frame.Input)
			if err := enc.Encode(wireFrame{Type: "result", CallID: frame.CallID, Result: &cr}); err != nil {
				_ = cmd.Process.Kill()
				return ExecuteResult{}, model.Errorf(model.ErrInternal, "send result frame: %v", err)
			}
		case "done":
			if frame.Error != "" {
				result.Status = "error"
				result.Error = frame.Error
			} else {
				result.Status = "ok"
				result.Value = frame.Value
			}
			_ = stdin.Close()
			goto drained
		}
	}
drained:
	result.Stderr = stderrBuf.String()
	waitErr := cmd.Wait()
	if result.Status == "" {
		if ctx.Err() != nil {
			result.Status = "timeout"
		} else if waitErr != nil {
			result.Status = "error"
			result.Error = fmt.Sprintf("subprocess worker exited without a done frame: %v", waitErr)
		}
	}
	return result, nil
}

// safeBuffer is a concurrency-safe io.Writer collecting the child's
// stderr for inclusion in ExecuteResult.Stderr.
type safeBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// RunSubprocessWorker is the child-process entry point: it reads one
// "start" frame from stdin, evaluates the Starlark code with a tools
// namespace that turns every call into a "call"/"result" frame exchange,
// and writes a final "done" frame. cmd/gateway's main() delegates here
// when invoked with WorkerSentinelArg.
func RunSubprocessWorker(stdin io.Reader, stdout io.Writer) error {
	dec := json.NewDecoder(stdin)
	enc := json.NewEncoder(stdout)
	var encMu sync.Mutex

	var start wireFrame
	if err := dec.Decode(&start); err != nil {
		return fmt.Errorf("decode start frame: %w", err)
	}
	if start.Type != "start" {
		return fmt.Errorf("expected start frame, got %q", start.Type)
	}

	pending := make(map[string]chan model.CallResult)
	var pendingMu sync.Mutex

	go func() {
		for {
			var frame wireFrame
			if err := dec.Decode(&frame); err != nil {
				return
			}
			if frame.Type == "result" && frame.Result != nil {
				pendingMu.Lock()
				ch, ok := pending[frame.CallID]
				pendingMu.Unlock()
				if ok {
					ch <- *frame.Result
				}
			}
		}
	}()

	callback := func(ctx context.Context, callID, toolPath string, input map[string]any) model.CallResult {
		ch := make(chan model.CallResult, 1)
		pendingMu.Lock()
		pending[callID] = ch
		pendingMu.Unlock()

		encMu.Lock()
		err := enc.Encode(wireFrame{Type: "call", CallID: callID, ToolPath: toolPath, Input: input})
		encMu.Unlock()
		if err != nil {
			return model.CallResult{OK: false, Kind: "failed", Error: err.Error()}
		}

		result := <-ch
		pendingMu.Lock()
		delete(pending, callID)
		pendingMu.Unlock()
		return result
	}

	adapter := NewStarlarkAdapter()
	res, err := adapter.Execute(context.Background(), ExecuteRequest{
		RunID:     start.RunID,
		Code:      start.Code,
		TimeoutMs: start.TimeoutMs,
		Callback:  callback,
	})

	encMu.Lock()
	defer encMu.Unlock()
	if err != nil {
		return enc.Encode(wireFrame{Type: "done", Error: err.Error()})
	}
	if res.Status == "error" {
		return enc.Encode(wireFrame{Type: "done", Error: res.Error})
	}
	return enc.Encode(wireFrame{Type: "done", Value: res.Value})
}
