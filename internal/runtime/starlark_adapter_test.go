package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codemode/toolgateway/internal/model"
)

func TestStarlarkAdapter_SimpleToolCall(t *testing.T) {
	a := NewStarlarkAdapter()

	cb := func(ctx context.Context, callID, toolPath string, input map[string]any) model.CallResult {
		require.Equal(t, "calendar.list", toolPath)
		return model.CallResult{OK: true, Value: map[string]any{"id": "e1", "title": "Sync"}}
	}

	res, err := a.Execute(context.Background(), ExecuteRequest{
		RunID:     "run-1",
		Code:      "result = tools.calendar.list({})",
		TimeoutMs: 5000,
		Callback:  cb,
	})
	require.NoError(t, err)
	require.Equal(t, "ok", res.Status)
	m, ok := res.Value.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "e1", m["id"])
}

func TestStarlarkAdapter_DeniedPropagatesAsError(t *testing.T) {
	a := NewStarlarkAdapter()

	cb := func(ctx context.Context, callID, toolPath string, input map[string]any) model.CallResult {
		return model.CallResult{OK: false, Kind: "denied", Error: "policy_deny"}
	}

	res, err := a.Execute(context.Background(), ExecuteRequest{
		RunID:     "run-2",
		Code:      "result = tools.github.issues.close({})",
		TimeoutMs: 5000,
		Callback:  cb,
	})
	require.NoError(t, err)
	require.Equal(t, "error", res.Status)
	reason, ok := IsDenied(res.Error)
	require.True(t, ok)
	require.Equal(t, "policy_deny", reason)
}
