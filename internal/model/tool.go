package model

import (
	"fmt"
	"regexp"
	"strings"
)

// toolPathSegment is the grammar for one dot-separated segment of a tool
// path: it must be a valid identifier so `tools.<path>` resolves as plain
// member access in generated code-mode snippets, with no segment needing
// quoting or escaping.
var toolPathSegment = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateToolPath checks that every dot-separated segment of path matches
// toolPathSegment. Called when a ToolDescriptor is merged into a registry
// snapshot, since it is the new public name a code-mode snippet will
// reference as `tools.<path>`.
func ValidateToolPath(path string) error {
	if path == "" {
		return fmt.Errorf("tool path must not be empty")
	}
	for _, seg := range strings.Split(path, ".") {
		if !toolPathSegment.MatchString(seg) {
			return fmt.Errorf("tool path %q: segment %q must match %s", path, seg, toolPathSegment.String())
		}
	}
	return nil
}

// ApprovalMode controls whether a tool call proceeds without a human
// decision.
type ApprovalMode string

const (
	ApprovalAuto     ApprovalMode = "auto"
	ApprovalRequired ApprovalMode = "required"
)

// ProviderKind selects the Provider (§4.D) that invokes a ToolDescriptor.
type ProviderKind string

const (
	ProviderHTTP    ProviderKind = "http"
	ProviderMCP     ProviderKind = "mcp"
	ProviderGraphQL ProviderKind = "graphql"
	ProviderBuiltin ProviderKind = "builtin"
)

// TypeSpec is the typing metadata attached to a ToolDescriptor: JSON-shapes
// for input/output, the keys surfaced in an approval preview, and an
// optional operation id used by generated clients.
type TypeSpec struct {
	InputSchema  map[string]any `json:"inputSchema,omitempty"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
	PreviewKeys  []string       `json:"previewKeys,omitempty"`
	OperationID  string         `json:"operationId,omitempty"`
	StrictTypes  []string       `json:"strictTypes,omitempty"`
}

// HTTPProviderPayload is the provider-payload shape for ProviderHTTP
// descriptors (§4.D HTTP/OpenAPI contract).
type HTTPProviderPayload struct {
	Method            string              `json:"method"`
	PathTemplate      string              `json:"pathTemplate"`
	ParamLocations    map[string]string   `json:"paramLocations"` // param name -> "path"|"query"|"header"|"cookie"
	RequestBody       bool                `json:"requestBody"`
	RequestBodyReq    bool                `json:"requestBodyRequired"`
	ContentTypes      []string            `json:"contentTypes,omitempty"`
	RequiredParams    []string            `json:"requiredParams,omitempty"`
	BaseURL           string              `json:"baseUrl"`
	AuthType          string              `json:"authType,omitempty"` // "bearer"|"apiKey"|"basic"
	AuthHeaderName    string              `json:"authHeaderName,omitempty"`
}

// MCPProviderPayload is the provider-payload shape for ProviderMCP
// descriptors.
type MCPProviderPayload struct {
	ServerName string `json:"serverName"`
	ToolName   string `json:"toolName"`
}

// GraphQLProviderPayload is the provider-payload shape for ProviderGraphQL
// descriptors.
type GraphQLProviderPayload struct {
	Endpoint      string `json:"endpoint"`
	Operation     string `json:"operation"` // raw GraphQL document
	OperationType string `json:"operationType,omitempty"` // "query"|"mutation"|"subscription"
	RootField     string `json:"rootField,omitempty"`
}

// ToolDescriptor describes one callable tool resolvable as `tools.<Path>`.
type ToolDescriptor struct {
	Path         string       `json:"path"`
	Description  string       `json:"description"`
	Approval     ApprovalMode `json:"approval"`
	SourceKey    string       `json:"sourceKey,omitempty"`
	ProviderKind ProviderKind `json:"providerKind"`
	Typing       TypeSpec     `json:"typing"`

	// ProviderPayload is opaque to F; one of *HTTPProviderPayload,
	// *MCPProviderPayload, *GraphQLProviderPayload, or nil for built-ins
	// resolved by name alone.
	ProviderPayload any `json:"providerPayload,omitempty"`
}

// ToolRegistrySnapshot is an immutable path->descriptor index plus a
// monotonically increasing version, published atomically by the
// Workspace Tool Builder (§4.I).
type ToolRegistrySnapshot struct {
	Version     int64
	WorkspaceID string
	Descriptors map[string]ToolDescriptor
}

func NewToolRegistrySnapshot(workspaceID string, version int64, descriptors map[string]ToolDescriptor) *ToolRegistrySnapshot {
	return &ToolRegistrySnapshot{Version: version, WorkspaceID: workspaceID, Descriptors: descriptors}
}

// Lookup implements A's `lookup(path) -> ToolDescriptor?`.
func (s *ToolRegistrySnapshot) Lookup(path string) (ToolDescriptor, bool) {
	if s == nil {
		return ToolDescriptor{}, false
	}
	d, ok := s.Descriptors[path]
	return d, ok
}

// RegistryDiff is emitted by the Workspace Tool Builder whenever it
// publishes a new snapshot version.
type RegistryDiff struct {
	Added   []string `json:"added,omitempty"`
	Changed []string `json:"changed,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Source is a registered origin from which the builder derives tool
// descriptors.
type SourceKind string

const (
	SourceOpenAPI  SourceKind = "openapi"
	SourceGraphQL  SourceKind = "graphql"
	SourceMCP      SourceKind = "mcp"
	SourceInternal SourceKind = "internal"
)

type Source struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspaceId"`
	Name        string         `json:"name"`
	Kind        SourceKind     `json:"kind"`
	Endpoint    string         `json:"endpoint,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Enabled     bool           `json:"enabled"`
	SourceHash  string         `json:"sourceHash,omitempty"`
}
