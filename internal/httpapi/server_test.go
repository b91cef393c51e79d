package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"

	"github.com/codemode/toolgateway/internal/credentials"
	"github.com/codemode/toolgateway/internal/engine"
	"github.com/codemode/toolgateway/internal/model"
	"github.com/codemode/toolgateway/internal/policy"
	"github.com/codemode/toolgateway/internal/providers"
	"github.com/codemode/toolgateway/internal/registry"
	"github.com/codemode/toolgateway/internal/runtime"
	"github.com/codemode/toolgateway/internal/security"
)

type memStore struct {
	sources     map[string]model.Source
	rules       []model.PolicyRule
	credentials map[string]model.CredentialRecord
	tokens      map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		sources:     map[string]model.Source{},
		credentials: map[string]model.CredentialRecord{},
		tokens:      map[string]string{},
	}
}

func (s *memStore) ListEnabledSources(workspaceID string) ([]model.Source, error) {
	var out []model.Source
	for _, src := range s.sources {
		if src.WorkspaceID == workspaceID && src.Enabled {
			out = append(out, src)
		}
	}
	return out, nil
}
func (s *memStore) UpsertSource(src model.Source) error { s.sources[src.ID] = src; return nil }
func (s *memStore) DeleteSource(id string) error        { delete(s.sources, id); return nil }

func (s *memStore) ListRules(workspaceID string) ([]model.PolicyRule, error) {
	var out []model.PolicyRule
	for _, r := range s.rules {
		if r.WorkspaceID == workspaceID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (s *memStore) UpsertRule(rule model.PolicyRule) error { s.rules = append(s.rules, rule); return nil }

func (s *memStore) Lookup(sourceKey string, scope model.CredentialScope, scopeID string) (model.CredentialRecord, bool, error) {
	rec, ok := s.credentials[sourceKey+"|"+string(scope)+"|"+scopeID]
	return rec, ok, nil
}
func (s *memStore) UpsertCredential(rec model.CredentialRecord) error {
	s.credentials[rec.SourceKey+"|"+string(rec.Scope)+"|"+rec.ScopeID] = rec
	return nil
}
func (s *memStore) ListCredentials(workspaceID string) ([]model.CredentialRecord, error) {
	var out []model.CredentialRecord
	for _, rec := range s.credentials {
		if rec.Scope == model.CredScopeWorkspace && rec.ScopeID == workspaceID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore) PutToken(jti, runID string, expiresAt time.Time) error {
	s.tokens[jti] = runID
	return nil
}
func (s *memStore) IsTokenValid(jti, runID string) (bool, error) {
	got, ok := s.tokens[jti]
	return ok && got == runID, nil
}

type noopExtractor struct{}

func (noopExtractor) Extract(src model.Source) ([]model.ToolDescriptor, error) { return nil, nil }

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	workspaceID := "ws1"

	store := newMemStore()
	builder := registry.NewBuilder(store, map[model.SourceKind]registry.Extractor{
		model.SourceInternal: noopExtractor{},
	})
	reg := builder.RegistryFor(workspaceID)
	reg.Publish(model.NewToolRegistrySnapshot(workspaceID, 1, map[string]model.ToolDescriptor{
		"calendar.list": {Path: "calendar.list", Approval: model.ApprovalAuto, ProviderKind: model.ProviderBuiltin},
	}))

	pol := policy.NewEvaluator(store)
	creds := credentials.NewResolver(store, nil, nil)

	builtin := providers.NewBuiltinProvider()
	builtin.Register("calendar.list", providers.InMemorySourceFunc([]any{map[string]any{"id": "e1"}}))
	provReg := providers.NewRegistry()
	provReg.Register(builtin)

	dispatcher := runtime.NewDispatcher()
	dispatcher.Register(runtime.NewStarlarkAdapter())

	mgr := engine.NewManager(engine.Config{}, builder, pol, creds, provReg, dispatcher)
	tokens := security.NewCallbackTokens([]byte("test-secret"), time.Hour, nil)

	return New(mgr, store, builder, pol, creds, tokens), workspaceID
}

func drainEventUntil(t *testing.T, srv *Server, runID string, statuses ...string) model.Event {
	t.Helper()
	want := map[string]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	var seq int64
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mgr := srv.engine
	for {
		ev, err := mgr.WaitForNext(ctx, runID, seq)
		require.NoError(t, err)
		seq = ev.Seq
		if want[ev.Status] {
			return ev
		}
	}
}

func TestHTTPAPI_SubmitAndGetRun(t *testing.T) {
	srv, ws := newTestServer(t)

	body, _ := json.Marshal(submitRunRequest{
		Code:        "result = tools.calendar.list({})",
		WorkspaceID: ws,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
	req.Header.Set("X-Actor-Id", "actor1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	runID, _ := submitted["runId"].(string)
	require.NotEmpty(t, runID)

	ev := drainEventUntil(t, srv, runID, "completed", "failed")
	require.Equal(t, "completed", ev.Status)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/runs/"+runID, nil)
	getRec := httptest.NewRecorder()
	srv.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var run model.Run
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &run))
	require.Equal(t, model.RunStatusCompleted, run.Status)
}

func TestHTTPAPI_RuntimeCallbackRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(toolCallRequest{RunID: "r1", CallID: "c1", ToolPath: "calendar.list", Input: map[string]any{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/runtime/tool-call", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPAPI_ToolSourceUpsertTriggersRebuild(t *testing.T) {
	srv, ws := newTestServer(t)

	body, _ := json.Marshal(upsertSourceRequest{
		WorkspaceID: ws,
		Name:        "internal-tools",
		Kind:        model.SourceInternal,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/tool-sources", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/v1/tools?workspaceId="+ws, nil)
	listRec := httptest.NewRecorder()
	srv.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)
}
