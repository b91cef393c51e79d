package providers

import (
	"context"
	"time"

	"github.com/codemode/toolgateway/internal/execenv"
	"github.com/codemode/toolgateway/internal/execsession"
	"github.com/codemode/toolgateway/internal/model"
	"github.com/codemode/toolgateway/internal/sandbox"
)

// shellCommandLine builds an argv invoking a POSIX shell, the same way
// the teacher's unified-exec tool shells out to run a command string
// rather than exec'ing argv directly.
func shellCommandLine(command string) []string {
	return []string{"/bin/sh", "-c", command}
}

// ShellExecPayload is the provider-payload shape for the built-in
// shell.exec tool: the sandbox restrictions and environment filtering
// applied to the spawned command. Nil fields fall back to full-access /
// inherit-all, matching a descriptor with no ProviderPayload at all.
type ShellExecPayload struct {
	Sandbox *sandbox.SandboxPolicy          `json:"sandbox,omitempty"`
	Env     *execenv.ShellEnvironmentPolicy `json:"env,omitempty"`
}

// ShellExecFunc returns the built-in `shell.exec` tool implementation: it
// starts a PTY-backed execsession, waits up to the call's timeout for the
// command to finish, and returns {stdout, exitCode}. Unlike the teacher's
// unified-exec tool, which keeps a session alive across many activity
// calls for interactive use, this built-in runs one command to
// completion (or up to the bound) and always tears the session down
// before returning -- code-mode snippets see `tools.shell.exec` as a
// single blocking call, not a session handle.
func ShellExecFunc() BuiltinFunc {
	mgr := sandbox.NewSandboxManager()

	return func(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic InvokeContext) (InvokeResult, error) {
		command, err := RequireString(args, "command")
		if err != nil {
			return InvokeResult{}, err
		}
		cwd, _ := args["cwd"].(string)

		var sandboxPolicy *sandbox.SandboxPolicy
		var envPolicy *execenv.ShellEnvironmentPolicy
		if payload, ok := desc.ProviderPayload.(*ShellExecPayload); ok && payload != nil {
			sandboxPolicy = payload.Sandbox
			envPolicy = payload.Env
		}

		line := shellCommandLine(command)
		execEnv, err := mgr.Transform(sandbox.CommandSpec{Program: line[0], Args: line[1:], Cwd: cwd}, sandboxPolicy)
		if err != nil {
			return InvokeResult{}, model.Errorf(model.ErrProvider, "apply sandbox policy to shell.exec: %v", err)
		}

		env := execenv.CreateEnv(envPolicy)
		for k, v := range execEnv.Env {
			env[k] = v
		}

		wait := ic.Timeout
		if wait <= 0 {
			wait = 30 * time.Second
		}

		sess, err := execsession.StartSession(execsession.SessionOpts{
			ProcessID: ic.CallID,
			Command:   execEnv.Command,
			Cwd:       execEnv.Cwd,
			Env:       execenv.EnvMapToSlice(env),
			TTY:       true,
		})
		if err != nil {
			return InvokeResult{}, model.Errorf(model.ErrProvider, "start shell.exec session: %v", err)
		}
		defer sess.Close()

		deadline := time.Now().Add(wait)
		output := sess.CollectOutput(deadline, nil)

		exitCode := -1
		if code := sess.ExitCode(); code != nil {
			exitCode = *code
		}

		body := map[string]any{
			"stdout":   string(output),
			"exitCode": exitCode,
		}
		return InvokeResult{Body: body, IsError: exitCode != 0}, nil
	}
}
