package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/codemode/toolgateway/internal/model"
)

type upsertPolicyRequest struct {
	ID              string                  `json:"id,omitempty"`
	WorkspaceID     string                  `json:"workspaceId"`
	Scope           model.PolicyScope       `json:"scope"`
	ActorID         string                  `json:"actorId,omitempty"`
	ClientID        string                  `json:"clientId,omitempty"`
	ToolPathPattern string                  `json:"toolPathPattern"`
	Effect          model.PolicyDecision    `json:"effect"`
	ApprovalMode    model.ApprovalOverride  `json:"approvalMode,omitempty"`
	Priority        int                     `json:"priority,omitempty"`
	Conditions      []model.ArgCondition    `json:"conditions,omitempty"`
}

// handleUpsertPolicy implements the policy-authoring endpoint backing B.
// Not one of §6.2's wire-stable shapes, but B's rules need some entry
// point and the gateway doesn't invent a separate admin service for it.
func (s *Server) handleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	var req upsertPolicyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, model.Errorf(model.ErrValidation, "malformed body: %v", err))
		return
	}
	if req.WorkspaceID == "" || req.Scope == "" || req.ToolPathPattern == "" || req.Effect == "" {
		writeError(w, model.Errorf(model.ErrValidation, "workspaceId, scope, toolPathPattern, and effect are required"))
		return
	}
	if req.ApprovalMode == "" {
		req.ApprovalMode = model.OverrideInherit
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	rule := model.PolicyRule{
		ID:              req.ID,
		WorkspaceID:     req.WorkspaceID,
		Scope:           req.Scope,
		ActorID:         req.ActorID,
		ClientID:        req.ClientID,
		ToolPathPattern: req.ToolPathPattern,
		Effect:          req.Effect,
		ApprovalMode:    req.ApprovalMode,
		Priority:        req.Priority,
		Conditions:      req.Conditions,
	}
	if err := s.store.UpsertRule(rule); err != nil {
		writeError(w, model.Errorf(model.ErrInternal, "upsert policy rule: %v", err))
		return
	}
	s.policy.Invalidate(req.WorkspaceID)

	writeJSON(w, http.StatusOK, rule)
}
