package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codemode/toolgateway/internal/engine"
	"github.com/codemode/toolgateway/internal/model"
)

type submitRunRequest struct {
	Code        string            `json:"code"`
	RuntimeKind model.RuntimeKind `json:"runtimeKind,omitempty"`
	TimeoutMs   int64             `json:"timeoutMs,omitempty"`
	WorkspaceID string            `json:"workspaceId"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// handleSubmitRun implements `POST /v1/runs` (§6.2).
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req submitRunRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, model.Errorf(model.ErrValidation, "malformed body: %v", err))
		return
	}

	run, err := s.engine.SubmitRun(r.Context(), engine.SubmitRunInput{
		WorkspaceID: req.WorkspaceID,
		ActorID:     actorID(r),
		ClientID:    clientID(r),
		Code:        req.Code,
		RuntimeKind: req.RuntimeKind,
		TimeoutMs:   req.TimeoutMs,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"runId":  run.ID,
		"status": run.Status,
	})
}

// handleGetRun implements `GET /v1/runs/:id`.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunEvents implements `GET /v1/runs/:id/events` as a long-poll:
// one round trip returns the first event past ?afterSeq=, blocking (up to
// a generous ceiling) until it's available, matching the suspension point
// the runtime callback itself does not need a streaming transport for.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("afterSeq"), 10, 64)

	ctx, cancel := context.WithTimeout(r.Context(), 55*time.Second)
	defer cancel()

	ev, err := s.engine.WaitForNext(ctx, runID, afterSeq)
	if err != nil {
		if ctx.Err() != nil {
			writeJSON(w, http.StatusNoContent, nil)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleCancelRun implements `POST /v1/runs/:id/cancel` (§4.H cancel).
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.engine.Cancel(runID, actorID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.RunStatusDenied)})
}
