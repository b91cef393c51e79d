package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/codemode/toolgateway/internal/model"
)

// handleListTools implements `GET /v1/tools?workspaceId=` (§4.A).
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		writeError(w, model.Errorf(model.ErrValidation, "workspaceId is required"))
		return
	}
	tools := s.engine.ListTools(workspaceID, actorID(r), clientID(r))
	writeJSON(w, http.StatusOK, tools)
}

type upsertSourceRequest struct {
	ID          string               `json:"id,omitempty"`
	WorkspaceID string               `json:"workspaceId"`
	Name        string               `json:"name"`
	Kind        model.SourceKind     `json:"kind"`
	Endpoint    string               `json:"endpoint,omitempty"`
	Config      map[string]any       `json:"config,omitempty"`
	Enabled     *bool                `json:"enabled,omitempty"`
}

// handleUpsertSource implements `POST /v1/tool-sources` (§4.I): records the
// source, then rebuilds the workspace's registry so the new/changed source
// takes effect immediately rather than waiting on the periodic rebuild.
func (s *Server) handleUpsertSource(w http.ResponseWriter, r *http.Request) {
	var req upsertSourceRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, model.Errorf(model.ErrValidation, "malformed body: %v", err))
		return
	}
	if req.WorkspaceID == "" || req.Name == "" || req.Kind == "" {
		writeError(w, model.Errorf(model.ErrValidation, "workspaceId, name, and kind are required"))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	src := model.Source{
		ID:          req.ID,
		WorkspaceID: req.WorkspaceID,
		Name:        req.Name,
		Kind:        req.Kind,
		Endpoint:    req.Endpoint,
		Config:      req.Config,
		Enabled:     enabled,
	}
	if err := s.store.UpsertSource(src); err != nil {
		writeError(w, model.Errorf(model.ErrInternal, "upsert source: %v", err))
		return
	}
	if _, err := s.builder.Rebuild(req.WorkspaceID); err != nil {
		writeError(w, model.Errorf(model.ErrInternal, "rebuild registry: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// handleDeleteSource implements `DELETE /v1/tool-sources/:id`. The caller
// supplies the owning workspace via ?workspaceId= since a source id alone
// doesn't name which registry to rebuild.
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		writeError(w, model.Errorf(model.ErrValidation, "workspaceId is required"))
		return
	}
	if err := s.store.DeleteSource(sourceID); err != nil {
		writeError(w, model.Errorf(model.ErrInternal, "delete source: %v", err))
		return
	}
	if _, err := s.builder.Rebuild(workspaceID); err != nil {
		writeError(w, model.Errorf(model.ErrInternal, "rebuild registry: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
