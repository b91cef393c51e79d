package httpapi

import (
	"net/http"
	"strings"

	"github.com/codemode/toolgateway/internal/model"
)

type toolCallRequest struct {
	RunID    string         `json:"runId"`
	CallID   string         `json:"callId"`
	ToolPath string         `json:"toolPath"`
	Input    map[string]any `json:"input"`
}

// handleToolCallback implements the runtime -> gateway callback
// (`POST /v1/runtime/tool-call`, §6.1): the one HTTP entry point a
// remote-worker RuntimeAdapter uses to route a `tools.*` call back through
// F. The in-proc and subprocess adapters never hit this endpoint — they
// hold a local Callback closure straight into engine.Manager.HandleToolCall.
func (s *Server) handleToolCallback(w http.ResponseWriter, r *http.Request) {
	var req toolCallRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.CallResult{OK: false, Kind: "failed", Error: "malformed request"})
		return
	}
	if req.RunID == "" || req.CallID == "" || req.ToolPath == "" {
		writeJSON(w, http.StatusBadRequest, model.CallResult{OK: false, Kind: "failed", Error: "runId, callId, and toolPath are required"})
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, model.CallResult{OK: false, Kind: "failed", Error: "missing bearer token"})
		return
	}
	if err := s.tokens.Verify(r.Context(), token, req.RunID); err != nil {
		writeJSON(w, http.StatusUnauthorized, model.CallResult{OK: false, Kind: "failed", Error: "invalid callback token"})
		return
	}

	res := s.engine.HandleToolCall(r.Context(), req.RunID, req.CallID, req.ToolPath, req.Input)
	writeJSON(w, http.StatusOK, res)
}
