package runtime

import (
	"context"
	"fmt"

	"github.com/nexus-rpc/sdk-go/nexus"

	"github.com/codemode/toolgateway/internal/model"
)

// remoteStartInput is the payload posted to a worker host's Nexus
// endpoint to start a run. The worker host is expected to call back to
// this gateway's §6.1 runtime callback endpoint for every `tools.*`
// invocation the snippet makes, authenticating with the short-lived
// callback token minted for the run.
type remoteStartInput struct {
	RunID         string `json:"runId"`
	Code          string `json:"code"`
	TimeoutMs     int64  `json:"timeoutMs"`
	CallbackURL   string `json:"callbackUrl"`
	CallbackToken string `json:"callbackToken"`
}

type remoteRunOutput struct {
	Status string `json:"status"`
	Value  any    `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CallbackTokenMinter mints the short-lived token a remote worker host
// presents back to this gateway's callback endpoint (§3, §6.1).
type CallbackTokenMinter interface {
	Mint(runID string) (string, error)
}

// RemoteAdapter dispatches a Run's code to an external worker host over
// Nexus (§4.G): the pack's cross-process async-operation-dispatch
// protocol, used here the same way the teacher reaches for it to start
// a long-running operation on another service and await its completion.
type RemoteAdapter struct {
	client      *nexus.HTTPClient
	operation   string
	callbackURL string
	tokens      CallbackTokenMinter
}

func NewRemoteAdapter(baseURL, service, operation, callbackURL string, tokens CallbackTokenMinter) (*RemoteAdapter, error) {
	client, err := nexus.NewHTTPClient(nexus.HTTPClientOptions{
		BaseURL: baseURL,
		Service: service,
	})
	if err != nil {
		return nil, fmt.Errorf("construct nexus client: %w", err)
	}
	return &RemoteAdapter{client: client, operation: operation, callbackURL: callbackURL, tokens: tokens}, nil
}

func (a *RemoteAdapter) Kind() model.RuntimeKind { return model.RuntimeRemoteWorker }

func (a *RemoteAdapter) IsAvailable() bool { return a.client != nil }

// Execute starts the remote operation and blocks for its synchronous
// result. The remote worker host is solely responsible for issuing
// `tools.*` calls back to the gateway's callback endpoint during
// execution; this adapter does not multiplex a local Callback the way
// the in-process and subprocess adapters do, since the calls originate
// from a different process entirely and are received by the httpapi
// layer rather than by this goroutine.
func (a *RemoteAdapter) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	token, err := a.tokens.Mint(req.RunID)
	if err != nil {
		return ExecuteResult{}, model.Errorf(model.ErrInternal, "mint callback token: %v", err)
	}

	input := remoteStartInput{
		RunID:         req.RunID,
		Code:          req.Code,
		TimeoutMs:     req.TimeoutMs,
		CallbackURL:   a.callbackURL,
		CallbackToken: token,
	}

	result, err := nexus.ExecuteOperation(ctx, a.client, nexus.ExecuteOperationRequest[remoteStartInput]{
		Operation: a.operation,
		Input:     input,
	})
	if err != nil {
		var handlerErr *nexus.HandlerError
		if fitsHandlerError(err, &handlerErr) {
			return ExecuteResult{Status: "error", Error: handlerErr.Error()}, nil
		}
		return ExecuteResult{}, model.Errorf(model.ErrRuntime, "remote worker execute: %v", err)
	}

	out, err := decodeRemoteOutput(result)
	if err != nil {
		return ExecuteResult{}, model.Errorf(model.ErrRuntime, "decode remote worker result: %v", err)
	}

	if out.Status == "" || out.Status == "ok" {
		return ExecuteResult{Status: "ok", Value: out.Value}, nil
	}
	if reason, ok := IsDenied(out.Error); ok {
		return ExecuteResult{Status: "error", Error: DeniedError(reason)}, nil
	}
	return ExecuteResult{Status: out.Status, Error: out.Error}, nil
}

func fitsHandlerError(err error, target **nexus.HandlerError) bool {
	he, ok := err.(*nexus.HandlerError)
	if ok {
		*target = he
	}
	return ok
}

func decodeRemoteOutput(result *nexus.ClientStartOperationResult[remoteRunOutput]) (remoteRunOutput, error) {
	if result == nil {
		return remoteRunOutput{}, fmt.Errorf("nil operation result")
	}
	if result.Successful != nil {
		return *result.Successful, nil
	}
	return remoteRunOutput{}, fmt.Errorf("remote operation did not complete synchronously")
}
