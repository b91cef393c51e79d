package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/codemode/toolgateway/internal/model"
)

// handleListApprovals implements `GET /v1/approvals?workspaceId=&status=pending`.
// status=pending is the only supported filter (§6.2); the coordinator
// never materializes a resolved request once Resolve fires, so there is
// nothing else to list.
func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		writeError(w, model.Errorf(model.ErrValidation, "workspaceId is required"))
		return
	}
	writeJSON(w, http.StatusOK, s.engine.ListPendingApprovals(workspaceID))
}

type resolveApprovalRequest struct {
	Decision   model.ApprovalStatus `json:"decision"`
	ReviewerID string               `json:"reviewerId"`
	Reason     string               `json:"reason,omitempty"`
}

// approvalID is the `"<runId>:<callId>"` composite naming one outstanding
// approval across the whole gateway, since callIds alone aren't unique
// across runs. Neither half contains ':' (uuid.NewString()), so the first
// separator is unambiguous.
func splitApprovalID(id string) (runID, callID string, ok bool) {
	runID, callID, found := strings.Cut(id, ":")
	return runID, callID, found
}

// handleResolveApproval implements `POST /v1/approvals/:id
// {decision, reviewerId, reason?}` (§4.E resolveApproval).
func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	runID, callID, ok := splitApprovalID(chi.URLParam(r, "approvalID"))
	if !ok {
		writeError(w, model.Errorf(model.ErrValidation, "malformed approval id"))
		return
	}

	var req resolveApprovalRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, model.Errorf(model.ErrValidation, "malformed body: %v", err))
		return
	}
	if req.Decision != model.ApprovalApproved && req.Decision != model.ApprovalDenied {
		writeError(w, model.Errorf(model.ErrValidation, "decision must be approved or denied"))
		return
	}

	outcome, err := s.engine.ResolveApproval(runID, callID, actorID(r), req.Decision, req.ReviewerID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	switch outcome {
	case model.ResolveNotFound:
		writeError(w, model.Errorf(model.ErrNotFound, "no pending approval %q on run %q", callID, runID))
		return
	case model.ResolveUnauthorized:
		writeError(w, model.Errorf(model.ErrUnauthorized, "actor may not resolve this approval"))
		return
	}

	run, err := s.engine.GetRun(runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"approval": map[string]any{
			"callId":   callID,
			"decision": req.Decision,
		},
		"run": run,
	})
}
