package credentials

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codemode/toolgateway/internal/model"
)

type memStore struct {
	recs map[string]model.CredentialRecord
}

func key(sourceKey string, scope model.CredentialScope, scopeID string) string {
	return string(scope) + ":" + scopeID + ":" + sourceKey
}

func (m *memStore) Lookup(sourceKey string, scope model.CredentialScope, scopeID string) (model.CredentialRecord, bool, error) {
	rec, ok := m.recs[key(sourceKey, scope, scopeID)]
	return rec, ok, nil
}

type plainVault struct{}

func (plainVault) Decrypt(blob []byte) (string, error) { return string(blob), nil }

func TestResolve_FallbackOrderActorOrgWorkspace(t *testing.T) {
	store := &memStore{recs: map[string]model.CredentialRecord{
		key("github", model.CredScopeWorkspace, "w1"): {
			SourceKey: "github", Scope: model.CredScopeWorkspace, ScopeID: "w1",
			AuthType: model.AuthBearer, EncryptedSecret: []byte("workspace-token"),
		},
	}}
	r := NewResolver(store, plainVault{}, nil)

	h, err := r.Resolve("github", "actor-1", "", "w1", true)
	require.NoError(t, err)
	require.Equal(t, "Bearer workspace-token", h["authorization"])
}

func TestResolve_ActorBeatsWorkspace(t *testing.T) {
	store := &memStore{recs: map[string]model.CredentialRecord{
		key("github", model.CredScopeWorkspace, "w1"): {AuthType: model.AuthBearer, EncryptedSecret: []byte("workspace-token")},
		key("github", model.CredScopeActor, "actor-1"): {AuthType: model.AuthBearer, EncryptedSecret: []byte("actor-token")},
	}}
	r := NewResolver(store, plainVault{}, nil)

	h, err := r.Resolve("github", "actor-1", "", "w1", true)
	require.NoError(t, err)
	require.Equal(t, "Bearer actor-token", h["authorization"])
}

func TestResolve_MissingRequiredCredentialFails(t *testing.T) {
	r := NewResolver(&memStore{recs: map[string]model.CredentialRecord{}}, plainVault{}, nil)

	_, err := r.Resolve("github", "actor-1", "", "w1", true)
	require.Error(t, err)
	ge := model.AsGatewayError(err)
	require.Equal(t, model.ErrAuthMissing, ge.Kind)
}

func TestResolve_APIKeyDefaultHeaderName(t *testing.T) {
	store := &memStore{recs: map[string]model.CredentialRecord{
		key("stripe", model.CredScopeWorkspace, "w1"): {AuthType: model.AuthAPIKey, EncryptedSecret: []byte("sk_test")},
	}}
	r := NewResolver(store, plainVault{}, nil)

	h, err := r.Resolve("stripe", "", "", "w1", true)
	require.NoError(t, err)
	require.Equal(t, "sk_test", h["x-api-key"])
}
