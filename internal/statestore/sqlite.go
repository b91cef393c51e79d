package statestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codemode/toolgateway/internal/model"
	"github.com/codemode/toolgateway/internal/security"
)

// tokenStoreAdapter satisfies security.TokenStore's Put/IsValid naming
// over SQLiteStore's PutToken/IsTokenValid, which double as the
// runtime_callback_tokens half of the broader Store port.
type tokenStoreAdapter struct{ store *SQLiteStore }

func (a tokenStoreAdapter) Put(jti, runID string, expiresAt time.Time) error {
	return a.store.PutToken(jti, runID, expiresAt)
}

func (a tokenStoreAdapter) IsValid(jti, runID string) (bool, error) {
	return a.store.IsTokenValid(jti, runID)
}

// AsTokenStore adapts s for use as a security.CallbackTokens backing store.
func (s *SQLiteStore) AsTokenStore() security.TokenStore {
	return tokenStoreAdapter{store: s}
}

// SQLiteStore is the one concrete Store adapter (§6.5), covering Sources,
// PolicyRules, CredentialRecords, and runtime_callback_tokens. Run,
// approval, and event state stay in the in-process RunSession model
// (engine package) for the lifetime of a Run -- durability for those is
// the Temporal workflow layer's own event history once that layer wraps
// the engine, rather than a second persisted copy of the same state.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tool_sources (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			endpoint TEXT,
			config_json TEXT,
			enabled INTEGER NOT NULL,
			source_hash TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS policies (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			actor_id TEXT,
			client_id TEXT,
			tool_path_pattern TEXT NOT NULL,
			effect TEXT NOT NULL,
			approval_mode TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			conditions_json TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			source_key TEXT NOT NULL,
			scope TEXT NOT NULL,
			scope_id TEXT NOT NULL,
			provider_tag TEXT,
			auth_type TEXT NOT NULL,
			encrypted_secret BLOB NOT NULL,
			header_name TEXT,
			additional_headers_json TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(source_key, scope, scope_id)
		)`,
		`CREATE TABLE IF NOT EXISTS runtime_callback_tokens (
			jti TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListEnabledSources(workspaceID string) ([]model.Source, error) {
	rows, err := s.db.Query(`SELECT id, workspace_id, name, kind, endpoint, config_json, source_hash
		FROM tool_sources WHERE workspace_id = ? AND enabled = 1`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		var src model.Source
		var cfgJSON, endpoint, hash sql.NullString
		if err := rows.Scan(&src.ID, &src.WorkspaceID, &src.Name, &src.Kind, &endpoint, &cfgJSON, &hash); err != nil {
			return nil, err
		}
		src.Endpoint = endpoint.String
		src.SourceHash = hash.String
		src.Enabled = true
		if cfgJSON.Valid && cfgJSON.String != "" {
			_ = json.Unmarshal([]byte(cfgJSON.String), &src.Config)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertSource(src model.Source) error {
	cfgJSON, err := json.Marshal(src.Config)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO tool_sources (id, workspace_id, name, kind, endpoint, config_json, enabled, source_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, kind=excluded.kind, endpoint=excluded.endpoint,
			config_json=excluded.config_json, enabled=excluded.enabled,
			source_hash=excluded.source_hash, updated_at=CURRENT_TIMESTAMP`,
		src.ID, src.WorkspaceID, src.Name, src.Kind, src.Endpoint, string(cfgJSON), boolToInt(src.Enabled), src.SourceHash)
	return err
}

func (s *SQLiteStore) DeleteSource(id string) error {
	_, err := s.db.Exec(`DELETE FROM tool_sources WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListRules(workspaceID string) ([]model.PolicyRule, error) {
	rows, err := s.db.Query(`SELECT id, workspace_id, scope, actor_id, client_id, tool_path_pattern, effect, approval_mode, priority, conditions_json, created_at
		FROM policies WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PolicyRule
	for rows.Next() {
		var r model.PolicyRule
		var actorID, clientID, condJSON sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&r.ID, &r.WorkspaceID, &r.Scope, &actorID, &clientID, &r.ToolPathPattern, &r.Effect, &r.ApprovalMode, &r.Priority, &condJSON, &createdAt); err != nil {
			return nil, err
		}
		r.ActorID = actorID.String
		r.ClientID = clientID.String
		r.CreatedAt = createdAt
		if condJSON.Valid && condJSON.String != "" {
			_ = json.Unmarshal([]byte(condJSON.String), &r.Conditions)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertRule(rule model.PolicyRule) error {
	condJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO policies (id, workspace_id, scope, actor_id, client_id, tool_path_pattern, effect, approval_mode, priority, conditions_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scope=excluded.scope, actor_id=excluded.actor_id, client_id=excluded.client_id,
			tool_path_pattern=excluded.tool_path_pattern, effect=excluded.effect,
			approval_mode=excluded.approval_mode, priority=excluded.priority,
			conditions_json=excluded.conditions_json`,
		rule.ID, rule.WorkspaceID, rule.Scope, rule.ActorID, rule.ClientID, rule.ToolPathPattern, rule.Effect, rule.ApprovalMode, rule.Priority, string(condJSON))
	return err
}

func (s *SQLiteStore) Lookup(sourceKey string, scope model.CredentialScope, scopeID string) (model.CredentialRecord, bool, error) {
	row := s.db.QueryRow(`SELECT id, source_key, scope, scope_id, provider_tag, auth_type, encrypted_secret, header_name, additional_headers_json
		FROM credentials WHERE source_key = ? AND scope = ? AND scope_id = ?`, sourceKey, scope, scopeID)

	var rec model.CredentialRecord
	var providerTag, headerName, addlJSON sql.NullString
	err := row.Scan(&rec.ID, &rec.SourceKey, &rec.Scope, &rec.ScopeID, &providerTag, &rec.AuthType, &rec.EncryptedSecret, &headerName, &addlJSON)
	if err == sql.ErrNoRows {
		return model.CredentialRecord{}, false, nil
	}
	if err != nil {
		return model.CredentialRecord{}, false, err
	}
	rec.ProviderTag = providerTag.String
	rec.HeaderName = headerName.String
	if addlJSON.Valid && addlJSON.String != "" {
		_ = json.Unmarshal([]byte(addlJSON.String), &rec.AdditionalHeaders)
	}
	return rec, true, nil
}

func (s *SQLiteStore) UpsertCredential(rec model.CredentialRecord) error {
	addlJSON, err := json.Marshal(rec.AdditionalHeaders)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO credentials (id, source_key, scope, scope_id, provider_tag, auth_type, encrypted_secret, header_name, additional_headers_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(source_key, scope, scope_id) DO UPDATE SET
			provider_tag=excluded.provider_tag, auth_type=excluded.auth_type,
			encrypted_secret=excluded.encrypted_secret, header_name=excluded.header_name,
			additional_headers_json=excluded.additional_headers_json, updated_at=CURRENT_TIMESTAMP`,
		rec.ID, rec.SourceKey, rec.Scope, rec.ScopeID, rec.ProviderTag, rec.AuthType, rec.EncryptedSecret, rec.HeaderName, string(addlJSON))
	return err
}

func (s *SQLiteStore) ListCredentials(workspaceID string) ([]model.CredentialRecord, error) {
	// Credentials are scoped by (sourceKey, scope, scopeId), not directly
	// by workspace; workspace-scoped credentials are the subset where
	// scope="workspace" and scope_id=workspaceID.
	rows, err := s.db.Query(`SELECT id, source_key, scope, scope_id, provider_tag, auth_type, header_name, additional_headers_json
		FROM credentials WHERE scope = 'workspace' AND scope_id = ?`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CredentialRecord
	for rows.Next() {
		var rec model.CredentialRecord
		var providerTag, headerName, addlJSON sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SourceKey, &rec.Scope, &rec.ScopeID, &providerTag, &rec.AuthType, &headerName, &addlJSON); err != nil {
			return nil, err
		}
		rec.ProviderTag = providerTag.String
		rec.HeaderName = headerName.String
		if addlJSON.Valid && addlJSON.String != "" {
			_ = json.Unmarshal([]byte(addlJSON.String), &rec.AdditionalHeaders)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutToken(jti, runID string, expiresAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO runtime_callback_tokens (jti, run_id, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(jti) DO UPDATE SET run_id=excluded.run_id, expires_at=excluded.expires_at`,
		jti, runID, expiresAt)
	return err
}

func (s *SQLiteStore) IsTokenValid(jti, runID string) (bool, error) {
	row := s.db.QueryRow(`SELECT run_id, expires_at, revoked FROM runtime_callback_tokens WHERE jti = ?`, jti)
	var gotRunID string
	var expiresAt time.Time
	var revoked int
	err := row.Scan(&gotRunID, &expiresAt, &revoked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if revoked != 0 || gotRunID != runID || time.Now().After(expiresAt) {
		return false, nil
	}
	return true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
