package providers

import (
	"context"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codemode/toolgateway/internal/mcp"
	"github.com/codemode/toolgateway/internal/model"
)

// MCPProvider dispatches tool calls to a live MCP server connection,
// mapping the `tools/call` content array per §4.D: "single text -> string,
// many texts -> array, otherwise raw content".
type MCPProvider struct {
	manager *mcp.McpConnectionManager
}

func NewMCPProvider(manager *mcp.McpConnectionManager) *MCPProvider {
	return &MCPProvider{manager: manager}
}

func (p *MCPProvider) Kind() model.ProviderKind { return model.ProviderMCP }

func (p *MCPProvider) Invoke(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic InvokeContext) (InvokeResult, error) {
	payload, ok := desc.ProviderPayload.(*model.MCPProviderPayload)
	if !ok {
		return InvokeResult{}, model.Errorf(model.ErrInvocationInvalid, "descriptor %q missing MCP provider payload", desc.Path)
	}

	result, err := p.manager.CallTool(ctx, payload.ServerName, payload.ToolName, args)
	if err != nil {
		return InvokeResult{}, model.Errorf(model.ErrProvider, "mcp call %s/%s failed: %v", payload.ServerName, payload.ToolName, err)
	}

	return InvokeResult{
		Body:    reduceContent(result.Content),
		IsError: result.IsError,
	}, nil
}

// reduceContent applies the "single text -> string, many texts -> array,
// otherwise raw content" rule.
func reduceContent(content []gomcp.Content) any {
	var texts []string
	onlyText := true
	for _, c := range content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			texts = append(texts, tc.Text)
		} else {
			onlyText = false
		}
	}
	if onlyText {
		switch len(texts) {
		case 0:
			return nil
		case 1:
			return texts[0]
		default:
			out := make([]any, len(texts))
			for i, t := range texts {
				out[i] = t
			}
			return out
		}
	}
	return content
}
