package httpapi

import (
	"encoding/base64"
	"net/http"

	"github.com/google/uuid"

	"github.com/codemode/toolgateway/internal/model"
)

// upsertCredentialRequest carries an already-encrypted secret blob: the
// secret vault is an external collaborator (§1 Non-goals), so this gateway
// never receives or stores plaintext credential material, only the opaque
// ciphertext an upstream vault integration produced.
type upsertCredentialRequest struct {
	ID                string                  `json:"id,omitempty"`
	SourceKey         string                  `json:"sourceKey"`
	Scope             model.CredentialScope   `json:"scope"`
	ScopeID           string                  `json:"scopeId"`
	ProviderTag       string                  `json:"providerTag,omitempty"`
	AuthType          model.CredentialAuthType `json:"authType"`
	EncryptedSecretB64 string                  `json:"encryptedSecret"`
	HeaderName        string                  `json:"headerName,omitempty"`
	AdditionalHeaders map[string]string       `json:"additionalHeaders,omitempty"`
}

// handleUpsertCredential implements `POST /v1/credentials` (§4.C), and
// invalidates C's read-through cache for sourceKey so the new material is
// visible to the next call rather than the cached miss/stale record.
func (s *Server) handleUpsertCredential(w http.ResponseWriter, r *http.Request) {
	var req upsertCredentialRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, model.Errorf(model.ErrValidation, "malformed body: %v", err))
		return
	}
	if req.SourceKey == "" || req.Scope == "" || req.ScopeID == "" || req.AuthType == "" {
		writeError(w, model.Errorf(model.ErrValidation, "sourceKey, scope, scopeId, and authType are required"))
		return
	}
	secret, err := base64.StdEncoding.DecodeString(req.EncryptedSecretB64)
	if err != nil {
		writeError(w, model.Errorf(model.ErrValidation, "encryptedSecret must be base64: %v", err))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	rec := model.CredentialRecord{
		ID:                req.ID,
		SourceKey:         req.SourceKey,
		Scope:             req.Scope,
		ScopeID:           req.ScopeID,
		ProviderTag:       req.ProviderTag,
		AuthType:          req.AuthType,
		EncryptedSecret:   secret,
		HeaderName:        req.HeaderName,
		AdditionalHeaders: req.AdditionalHeaders,
	}
	if err := s.store.UpsertCredential(rec); err != nil {
		writeError(w, model.Errorf(model.ErrInternal, "upsert credential: %v", err))
		return
	}
	s.credentials.Invalidate(req.SourceKey)

	writeJSON(w, http.StatusOK, map[string]string{"id": req.ID})
}

// handleListCredentials implements `GET /v1/credentials?workspaceId=`.
// Returned records omit EncryptedSecret; nothing about a stored credential
// beyond its routing metadata is meant to leave the gateway.
func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		writeError(w, model.Errorf(model.ErrValidation, "workspaceId is required"))
		return
	}
	recs, err := s.store.ListCredentials(workspaceID)
	if err != nil {
		writeError(w, model.Errorf(model.ErrInternal, "list credentials: %v", err))
		return
	}

	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, map[string]any{
			"id":          rec.ID,
			"sourceKey":   rec.SourceKey,
			"scope":       rec.Scope,
			"scopeId":     rec.ScopeID,
			"providerTag": rec.ProviderTag,
			"authType":    rec.AuthType,
			"headerName":  rec.HeaderName,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
