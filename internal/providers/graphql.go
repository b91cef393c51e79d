package providers

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/codemode/toolgateway/internal/model"
)

// GraphQLProvider posts {query, variables} to the descriptor's endpoint
// and returns {data, errors} as the call's value (§4.D GraphQL contract).
type GraphQLProvider struct {
	Client *http.Client
}

func NewGraphQLProvider(client *http.Client) *GraphQLProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &GraphQLProvider{Client: client}
}

func (p *GraphQLProvider) Kind() model.ProviderKind { return model.ProviderGraphQL }

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   any   `json:"data,omitempty"`
	Errors []any `json:"errors,omitempty"`
}

func (p *GraphQLProvider) Invoke(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic InvokeContext) (InvokeResult, error) {
	payload, ok := desc.ProviderPayload.(*model.GraphQLProviderPayload)
	if !ok {
		return InvokeResult{}, model.Errorf(model.ErrInvocationInvalid, "descriptor %q missing GraphQL provider payload", desc.Path)
	}

	body, err := json.Marshal(graphqlRequest{Query: payload.Operation, Variables: args})
	if err != nil {
		return InvokeResult{}, model.Errorf(model.ErrInvocationInvalid, "encode graphql request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.Endpoint, bytes.NewReader(body))
	if err != nil {
		return InvokeResult{}, model.Errorf(model.ErrInvocationInvalid, "build graphql request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ic.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return InvokeResult{}, model.Errorf(model.ErrProvider, "graphql request failed: %v", err)
	}
	defer resp.Body.Close()

	var gr graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return InvokeResult{}, model.Errorf(model.ErrProvider, "decode graphql response: %v", err)
	}

	return InvokeResult{
		Status:  resp.StatusCode,
		Body:    map[string]any{"data": gr.Data, "errors": gr.Errors},
		IsError: len(gr.Errors) > 0 || resp.StatusCode >= 400,
	}, nil
}

// operationHeadPattern extracts the operation type and first root field
// name from a GraphQL document, used for policy routing (§4.D: "parse the
// operation to derive the root operation type and fields").
var operationHeadPattern = regexp.MustCompile(`(?s)^\s*(query|mutation|subscription)?\s*(?:[A-Za-z_][A-Za-z0-9_]*)?\s*(?:\([^)]*\))?\s*\{\s*([A-Za-z_][A-Za-z0-9_]*)`)

// ParseOperationHead returns (operationType, rootField) for a raw GraphQL
// document, defaulting operationType to "query" when omitted (the GraphQL
// shorthand form).
func ParseOperationHead(doc string) (operationType, rootField string) {
	m := operationHeadPattern.FindStringSubmatch(strings.TrimSpace(doc))
	if m == nil {
		return "query", ""
	}
	opType := m[1]
	if opType == "" {
		opType = "query"
	}
	return opType, m[2]
}
