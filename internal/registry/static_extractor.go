package registry

import (
	"encoding/json"
	"fmt"

	"github.com/codemode/toolgateway/internal/model"
)

// StaticExtractor implements Extractor for model.SourceInternal: the
// source's Config carries its descriptors inline as JSON rather than
// pointing at an OpenAPI/GraphQL/MCP document to parse. It exists so a
// gateway operator has at least one usable source kind out of the box;
// HTTP/GraphQL/MCP extraction is the external-collaborator parsing this
// package's doc comment defers to whatever schema-parsing library an
// operator wires in for those kinds.
type StaticExtractor struct{}

// Extract reads src.Config["descriptors"] as a JSON-encoded
// []model.ToolDescriptor.
func (StaticExtractor) Extract(src model.Source) ([]model.ToolDescriptor, error) {
	raw, ok := src.Config["descriptors"]
	if !ok {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("static source %q: re-encode descriptors: %w", src.ID, err)
	}
	var descriptors []model.ToolDescriptor
	if err := json.Unmarshal(encoded, &descriptors); err != nil {
		return nil, fmt.Errorf("static source %q: decode descriptors: %w", src.ID, err)
	}
	for i := range descriptors {
		descriptors[i].SourceKey = src.ID
	}
	return descriptors, nil
}
