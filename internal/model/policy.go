package model

import "time"

// PolicyDecision is B's resolved verdict for a tool call.
type PolicyDecision string

const (
	DecisionAllow           PolicyDecision = "allow"
	DecisionRequireApproval PolicyDecision = "require_approval"
	DecisionDeny            PolicyDecision = "deny"
)

// PolicyScope is the precedence tier a rule is bound to.
type PolicyScope string

const (
	ScopeActorClient PolicyScope = "actor_client"
	ScopeActor       PolicyScope = "actor"
	ScopeClient      PolicyScope = "client"
	ScopeWorkspace   PolicyScope = "workspace"
)

// ApprovalOverride lets a rule override a descriptor's own approval mode
// when its effect is "allow".
type ApprovalOverride string

const (
	OverrideInherit  ApprovalOverride = "inherit"
	OverrideAuto     ApprovalOverride = "auto"
	OverrideRequired ApprovalOverride = "required"
)

// ArgCondOp is the comparison operator for an argument condition.
type ArgCondOp string

const (
	CondEquals     ArgCondOp = "equals"
	CondContains   ArgCondOp = "contains"
	CondStartsWith ArgCondOp = "starts_with"
	CondNotEquals  ArgCondOp = "not_equals"
)

// ArgCondition restricts a PolicyRule to inputs where a JSON-path key
// satisfies the operator against a literal. Conditions on a rule are
// AND-combined.
type ArgCondition struct {
	Path  string    `json:"path"` // gjson path into the call's args
	Op    ArgCondOp `json:"op"`
	Value string    `json:"value"`
}

// PolicyRule is one persisted policy entry evaluated by B.
type PolicyRule struct {
	ID              string           `json:"id"`
	WorkspaceID     string           `json:"workspaceId"`
	Scope           PolicyScope      `json:"scope"`
	ActorID         string           `json:"actorId,omitempty"`  // set when Scope is actor or actor_client
	ClientID        string           `json:"clientId,omitempty"` // set when Scope is client or actor_client
	ToolPathPattern string           `json:"toolPathPattern"`    // exact path, or glob with "*"/"**"
	Effect          PolicyDecision   `json:"effect"`             // DecisionAllow or DecisionDeny
	ApprovalMode    ApprovalOverride `json:"approvalMode"`
	Priority        int              `json:"priority,omitempty"`
	Conditions      []ArgCondition   `json:"conditions,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// CredentialScope mirrors the fallback order consulted by C.
type CredentialScope string

const (
	CredScopeActor        CredentialScope = "actor"
	CredScopeOrganization CredentialScope = "organization"
	CredScopeWorkspace    CredentialScope = "workspace"
)

// CredentialAuthType selects how C renders the credential into headers.
type CredentialAuthType string

const (
	AuthBearer CredentialAuthType = "bearer"
	AuthAPIKey CredentialAuthType = "apiKey"
	AuthBasic  CredentialAuthType = "basic"
)

// CredentialRecord is never exposed to user code; consumed only by C.
type CredentialRecord struct {
	ID                string              `json:"id"`
	SourceKey         string              `json:"sourceKey"`
	Scope             CredentialScope     `json:"scope"`
	ScopeID           string              `json:"scopeId"` // actorId / organizationId / workspaceId, per Scope
	ProviderTag       string              `json:"providerTag,omitempty"`
	AuthType          CredentialAuthType  `json:"authType"`
	EncryptedSecret   []byte              `json:"-"` // never serialized; opaque, decrypted via the secret vault port
	HeaderName        string              `json:"headerName,omitempty"` // used for AuthAPIKey, defaults to "x-api-key"
	AdditionalHeaders map[string]string   `json:"additionalHeaders,omitempty"`
}
