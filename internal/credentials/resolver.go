// Package credentials implements the Credential Resolver (§4.C): producing
// header material for a tool call by (sourceKey, scope) with fallback
// order actor -> organization -> workspace.
package credentials

import (
	"encoding/base64"
	"fmt"

	"github.com/codemode/toolgateway/internal/model"
)

// Vault decrypts a CredentialRecord's secret blob. Real secret management
// is an external collaborator (§1 Non-goals); C only consumes it.
type Vault interface {
	Decrypt(blob []byte) (string, error)
}

// Store is the persistence port for CredentialRecords.
type Store interface {
	// Lookup returns the CredentialRecord for sourceKey at the given
	// scope/scopeID, or ok=false if none exists.
	Lookup(sourceKey string, scope model.CredentialScope, scopeID string) (model.CredentialRecord, bool, error)
}

// Cache is a read-through layer in front of Store (§5 shared-resource
// policy: "Credential cache: read-through; invalidated on credential
// upsert"). A no-op Cache is valid — Resolver works without one.
type Cache interface {
	Get(key string) (model.CredentialRecord, bool)
	Set(key string, rec model.CredentialRecord)
	Invalidate(sourceKey string)
}

type Resolver struct {
	store Store
	vault Vault
	cache Cache
}

func NewResolver(store Store, vault Vault, cache Cache) *Resolver {
	return &Resolver{store: store, vault: vault, cache: cache}
}

// Headers is the per-call header map produced for a tool invocation.
type Headers map[string]string

// Resolve produces the header map for sourceKey, consulting actor,
// organization, then workspace scope in order (§4.C). organizationID may
// be empty when the actor has no org membership. Returns an
// ErrAuthMissing GatewayError when no credential is found for a sourceKey
// the descriptor declares as required.
func (r *Resolver) Resolve(sourceKey, actorID, organizationID, workspaceID string, required bool) (Headers, error) {
	order := []struct {
		scope model.CredentialScope
		id    string
	}{
		{model.CredScopeActor, actorID},
		{model.CredScopeOrganization, organizationID},
		{model.CredScopeWorkspace, workspaceID},
	}

	for _, o := range order {
		if o.id == "" {
			continue
		}
		rec, ok, err := r.lookup(sourceKey, o.scope, o.id)
		if err != nil {
			return nil, err
		}
		if ok {
			return r.render(rec)
		}
	}

	if required {
		return nil, model.Errorf(model.ErrAuthMissing, "no credential found for source %q", sourceKey)
	}
	return Headers{}, nil
}

func (r *Resolver) lookup(sourceKey string, scope model.CredentialScope, scopeID string) (model.CredentialRecord, bool, error) {
	key := cacheKey(sourceKey, scope, scopeID)
	if r.cache != nil {
		if rec, ok := r.cache.Get(key); ok {
			return rec, true, nil
		}
	}
	rec, ok, err := r.store.Lookup(sourceKey, scope, scopeID)
	if err != nil || !ok {
		return model.CredentialRecord{}, false, err
	}
	if r.cache != nil {
		r.cache.Set(key, rec)
	}
	return rec, true, nil
}

func cacheKey(sourceKey string, scope model.CredentialScope, scopeID string) string {
	return fmt.Sprintf("%s|%s|%s", sourceKey, scope, scopeID)
}

func (r *Resolver) render(rec model.CredentialRecord) (Headers, error) {
	if r.vault == nil {
		return nil, model.Errorf(model.ErrAuthMissing, "no vault configured to decrypt credential for source %q", rec.SourceKey)
	}
	secret, err := r.vault.Decrypt(rec.EncryptedSecret)
	if err != nil {
		return nil, model.Errorf(model.ErrAuthMissing, "decrypt credential: %v", err)
	}

	h := Headers{}
	switch rec.AuthType {
	case model.AuthBearer:
		h["authorization"] = "Bearer " + secret
	case model.AuthAPIKey:
		name := rec.HeaderName
		if name == "" {
			name = "x-api-key"
		}
		h[name] = secret
	case model.AuthBasic:
		h["authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(secret))
	default:
		return nil, model.Errorf(model.ErrAuthMissing, "unknown credential auth type %q", rec.AuthType)
	}
	for k, v := range rec.AdditionalHeaders {
		h[k] = v
	}
	return h, nil
}

// Invalidate clears any cached entries for sourceKey, called on
// POST /v1/credentials upsert.
func (r *Resolver) Invalidate(sourceKey string) {
	if r.cache != nil {
		r.cache.Invalidate(sourceKey)
	}
}
