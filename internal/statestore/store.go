// Package statestore defines the persistence port (§6.5) backing the
// policy, credential, and tool-source lookups the engine consults, plus
// one concrete `mattn/go-sqlite3` adapter so the gateway is runnable
// standalone without an external database.
package statestore

import (
	"time"

	"github.com/codemode/toolgateway/internal/model"
)

// Store is the persistence surface: tool sources, policies, credentials,
// and runtime_callback_tokens. Runs, run events, approvals, and tool
// artifacts are not persisted through it. Nothing outside this package and its
// adapter knows the storage engine; B, C, and I depend on the narrower
// policy.Store / credentials.Store / registry.SourceStore views this
// type also satisfies.
type Store interface {
	// Sources (I)
	ListEnabledSources(workspaceID string) ([]model.Source, error)
	UpsertSource(src model.Source) error
	DeleteSource(id string) error

	// Policies (B)
	ListRules(workspaceID string) ([]model.PolicyRule, error)
	UpsertRule(rule model.PolicyRule) error

	// Credentials (C)
	Lookup(sourceKey string, scope model.CredentialScope, scopeID string) (model.CredentialRecord, bool, error)
	UpsertCredential(rec model.CredentialRecord) error
	ListCredentials(workspaceID string) ([]model.CredentialRecord, error)

	// Callback tokens (§3, §6.1)
	PutToken(jti, runID string, expiresAt time.Time) error
	IsTokenValid(jti, runID string) (bool, error)
}
