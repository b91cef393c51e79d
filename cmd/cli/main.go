// Command-line client for the code-mode gateway's HTTP control plane.
//
// Usage:
//
//	cli submit -workspace ws1 -actor alice -code 'result = tools.calendar.list({})'
//	cli get -run <runId>
//	cli events -run <runId>
//	cli approvals -workspace ws1
//	cli approve -approval <runId>:<callId> -reviewer alice
//	cli deny -approval <runId>:<callId> -reviewer alice -reason "not now"
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/codemode/toolgateway/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	addr := os.Getenv("GATEWAY_ADDR")
	if addr == "" {
		addr = "http://localhost:8080"
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "version" {
		fmt.Println(version.GitCommit)
		return
	}

	client := &apiClient{baseURL: addr, http: &http.Client{Timeout: 60 * time.Second}}

	var err error
	switch cmd {
	case "submit":
		err = runSubmit(client, args)
	case "get":
		err = runGet(client, args)
	case "events":
		err = runEvents(client, args)
	case "cancel":
		err = runCancel(client, args)
	case "approvals":
		err = runListApprovals(client, args)
	case "approve":
		err = runResolveApproval(client, args, "approved")
	case "deny":
		err = runResolveApproval(client, args, "denied")
	case "tools":
		err = runListTools(client, args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cli <submit|get|events|cancel|approvals|approve|deny|tools|version> [flags]")
}

// apiClient is a thin wrapper over the httpapi wire shapes; actor/client
// identity travels as headers, trusted by the gateway as already
// verified by whatever sits in front of it.
type apiClient struct {
	baseURL string
	http    *http.Client
	actorID string
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.actorID != "" {
		req.Header.Set("X-Actor-Id", c.actorID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func runSubmit(c *apiClient, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	workspace := fs.String("workspace", "", "workspace id")
	actor := fs.String("actor", "", "actor id")
	code := fs.String("code", "", "snippet source")
	timeoutMs := fs.Int64("timeout-ms", 30_000, "run timeout in milliseconds")
	fs.Parse(args)

	c.actorID = *actor

	var out map[string]any
	err := c.do(http.MethodPost, "/v1/runs", map[string]any{
		"workspaceId": *workspace,
		"code":        *code,
		"timeoutMs":   *timeoutMs,
	}, &out)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runGet(c *apiClient, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	runID := fs.String("run", "", "run id")
	fs.Parse(args)

	var out map[string]any
	if err := c.do(http.MethodGet, "/v1/runs/"+*runID, nil, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func runEvents(c *apiClient, args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	runID := fs.String("run", "", "run id")
	fs.Parse(args)

	var afterSeq int64
	for {
		var out map[string]any
		path := fmt.Sprintf("/v1/runs/%s/events?afterSeq=%d", *runID, afterSeq)
		if err := c.do(http.MethodGet, path, nil, &out); err != nil {
			return err
		}
		if out == nil {
			continue
		}
		printJSON(out)
		if seq, ok := out["seq"].(float64); ok {
			afterSeq = int64(seq)
		}
		if status, ok := out["status"].(string); ok {
			switch status {
			case "completed", "failed", "timed_out", "denied":
				return nil
			}
		}
	}
}

func runCancel(c *apiClient, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	runID := fs.String("run", "", "run id")
	actor := fs.String("actor", "", "actor id")
	fs.Parse(args)

	c.actorID = *actor
	var out map[string]any
	if err := c.do(http.MethodPost, "/v1/runs/"+*runID+"/cancel", nil, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func runListApprovals(c *apiClient, args []string) error {
	fs := flag.NewFlagSet("approvals", flag.ExitOnError)
	workspace := fs.String("workspace", "", "workspace id")
	fs.Parse(args)

	var out []map[string]any
	if err := c.do(http.MethodGet, "/v1/approvals?workspaceId="+*workspace, nil, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func runResolveApproval(c *apiClient, args []string, decision string) error {
	fs := flag.NewFlagSet(decision, flag.ExitOnError)
	approvalID := fs.String("approval", "", "approval id, formatted <runId>:<callId>")
	reviewer := fs.String("reviewer", "", "reviewer actor id")
	reason := fs.String("reason", "", "reason, required when denying")
	fs.Parse(args)

	var out map[string]any
	err := c.do(http.MethodPost, "/v1/approvals/"+*approvalID, map[string]any{
		"decision":   decision,
		"reviewerId": *reviewer,
		"reason":     *reason,
	}, &out)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runListTools(c *apiClient, args []string) error {
	fs := flag.NewFlagSet("tools", flag.ExitOnError)
	workspace := fs.String("workspace", "", "workspace id")
	actor := fs.String("actor", "", "actor id")
	fs.Parse(args)

	c.actorID = *actor
	var out []map[string]any
	if err := c.do(http.MethodGet, "/v1/tools?workspaceId="+*workspace, nil, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
