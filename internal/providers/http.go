package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/segmentio/encoding/json"

	"github.com/codemode/toolgateway/internal/model"
)

// HTTPProvider implements the §4.D HTTP/OpenAPI contract: resolve the path
// template, apply query/header/cookie parameters, build the body from
// args.body when declared, and decode the response by content type.
type HTTPProvider struct {
	Client *http.Client
}

func NewHTTPProvider(client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{Client: client}
}

func (p *HTTPProvider) Kind() model.ProviderKind { return model.ProviderHTTP }

func (p *HTTPProvider) Invoke(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic InvokeContext) (InvokeResult, error) {
	payload, ok := desc.ProviderPayload.(*model.HTTPProviderPayload)
	if !ok {
		return InvokeResult{}, model.Errorf(model.ErrInvocationInvalid, "descriptor %q missing HTTP provider payload", desc.Path)
	}

	pathOut, query, headers, cookies, err := splitParams(payload, args)
	if err != nil {
		return InvokeResult{}, err
	}

	reqURL := strings.TrimRight(payload.BaseURL, "/") + pathOut
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	contentType := "application/json"
	if len(payload.ContentTypes) > 0 {
		contentType = payload.ContentTypes[0]
	}
	if payload.RequestBody {
		body, hasBody := args["body"]
		if !hasBody && payload.RequestBodyReq {
			return InvokeResult{}, model.Errorf(model.ErrInvocationInvalid, "tool %q requires a request body", desc.Path)
		}
		if hasBody {
			encoded, err := json.Marshal(body)
			if err != nil {
				return InvokeResult{}, model.Errorf(model.ErrInvocationInvalid, "encode request body: %v", err)
			}
			bodyReader = bytes.NewReader(encoded)
		}
	}

	req, err := http.NewRequestWithContext(ctx, methodOrDefault(payload.Method), reqURL, bodyReader)
	if err != nil {
		return InvokeResult{}, model.Errorf(model.ErrInvocationInvalid, "build request: %v", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: v})
	}
	for k, v := range ic.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return InvokeResult{}, model.Errorf(model.ErrProvider, "http request to %q failed: %v", desc.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return InvokeResult{}, model.Errorf(model.ErrProvider, "read response: %v", err)
	}

	var value any
	respContentType := resp.Header.Get("Content-Type")
	if strings.Contains(respContentType, "application/json") && len(raw) > 0 {
		if err := json.Unmarshal(raw, &value); err != nil {
			value = string(raw)
		}
	} else {
		value = string(raw)
	}

	return InvokeResult{
		Status:  resp.StatusCode,
		Body:    value,
		IsError: resp.StatusCode >= 400,
	}, nil
}

func methodOrDefault(m string) string {
	if m == "" {
		return http.MethodGet
	}
	return m
}

// splitParams resolves the path template by substituting path parameters
// (URL-encoded) and buckets the remaining declared parameters into
// query/header/cookie maps per payload.ParamLocations.
func splitParams(payload *model.HTTPProviderPayload, args map[string]any) (path string, query url.Values, headers map[string]string, cookies map[string]string, err error) {
	path = payload.PathTemplate
	query = url.Values{}
	headers = map[string]string{}
	cookies = map[string]string{}

	var flat map[string]any
	if err := mapstructure.Decode(args, &flat); err != nil {
		return "", nil, nil, nil, model.Errorf(model.ErrInvocationInvalid, "decode args: %v", err)
	}

	missing := []string{}
	for _, name := range payload.RequiredParams {
		if _, ok := flat[name]; !ok {
			if _, inBody := flat["body"]; name != "body" || !inBody {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		return "", nil, nil, nil, model.Errorf(model.ErrInvocationInvalid, "missing required parameter(s): %s", strings.Join(missing, ", "))
	}

	for name, loc := range payload.ParamLocations {
		v, ok := flat[name]
		if !ok {
			continue
		}
		str := fmt.Sprintf("%v", v)
		switch loc {
		case "path":
			path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(str))
		case "query":
			query.Set(name, str)
		case "header":
			headers[name] = str
		case "cookie":
			cookies[name] = str
		}
	}

	return path, query, headers, cookies, nil
}
