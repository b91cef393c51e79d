// Gateway executable for the code-mode tool-execution control plane.
//
// Starts the HTTP control plane (internal/httpapi) and a Temporal worker
// supervising Runs through internal/workflow, both backed by the same
// in-process engine.Manager. Re-execs itself as a subprocess Starlark
// worker when invoked with runtime.WorkerSentinelArg, the child side of
// the subprocess runtime adapter's own re-exec contract.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/codemode/toolgateway/internal/config"
	"github.com/codemode/toolgateway/internal/credentials"
	"github.com/codemode/toolgateway/internal/engine"
	"github.com/codemode/toolgateway/internal/httpapi"
	"github.com/codemode/toolgateway/internal/mcp"
	"github.com/codemode/toolgateway/internal/model"
	"github.com/codemode/toolgateway/internal/policy"
	"github.com/codemode/toolgateway/internal/providers"
	"github.com/codemode/toolgateway/internal/registry"
	"github.com/codemode/toolgateway/internal/runtime"
	"github.com/codemode/toolgateway/internal/security"
	"github.com/codemode/toolgateway/internal/statestore"
	"github.com/codemode/toolgateway/internal/temporalclient"
	"github.com/codemode/toolgateway/internal/version"
	wf "github.com/codemode/toolgateway/internal/workflow"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == runtime.WorkerSentinelArg {
		if err := runtime.RunSubprocessWorker(os.Stdin, os.Stdout); err != nil {
			log.Fatalf("subprocess worker: %v", err)
		}
		return
	}

	configPath := flag.String("config", "gateway.yaml", "path to gateway config file")
	flag.Parse()

	log.Printf("starting gateway (commit %s)", version.GitCommit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := statestore.OpenSQLiteStore(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite store: %v", err)
	}
	defer store.Close()

	selfPath, err := os.Executable()
	if err != nil {
		log.Fatalf("resolve self path: %v", err)
	}

	extractors := map[model.SourceKind]registry.Extractor{
		model.SourceInternal: registry.StaticExtractor{},
		// SourceOpenAPI/SourceGraphQL/SourceMCP need real schema parsing,
		// which §1's Non-goals place out of scope; an operator wires a
		// concrete registry.Extractor for those kinds as needed.
	}
	builder := registry.NewBuilder(store, extractors)
	pol := policy.NewEvaluator(store)

	var cache credentials.Cache
	if cfg.RedisAddr != "" {
		rc := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		cache = credentials.NewRedisCache(rc, cfg.RedisTTL)
	}
	// No Vault is wired: secret decryption is the external vault
	// collaborator's job (§1 Non-goals). Without one, credentials.Resolver
	// returns ErrAuthMissing for any call whose source has a stored
	// credential record (it cannot decrypt the blob), and for a call that
	// requires a credential when none is stored.
	creds := credentials.NewResolver(store, nil, cache)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	mcpManager := mcp.NewMcpConnectionManager()

	provReg := providers.NewRegistry()
	builtin := providers.NewBuiltinProvider()
	builtin.RegisterDefaults()
	provReg.Register(builtin)
	provReg.Register(providers.NewHTTPProvider(httpClient))
	provReg.Register(providers.NewGraphQLProvider(httpClient))
	provReg.Register(providers.NewMCPProvider(mcpManager))

	tokens := security.NewCallbackTokens([]byte(cfg.CallbackSecret), cfg.CallbackTokenTTL, store.AsTokenStore())

	dispatcher := runtime.NewDispatcher()
	dispatcher.Register(runtime.NewStarlarkAdapter())
	dispatcher.Register(runtime.NewSubprocessAdapter(selfPath))

	mgr := engine.NewManager(engine.Config{
		DefaultTimeoutMs: cfg.DefaultTimeoutMs,
		MaxPreviewChars:  cfg.MaxPreviewChars,
	}, builder, pol, creds, provReg, dispatcher)

	srv := httpapi.New(mgr, store, builder, pol, creds, tokens)

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv}
	go func() {
		log.Printf("control plane listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// temporalclient layers config-file/env-var connection options (Temporal
	// Cloud TLS certs included) under the gateway.yaml host/namespace, which
	// take precedence when set.
	clientOpts, err := temporalclient.LoadClientOptions(cfg.Temporal.HostPort, cfg.Temporal.Namespace)
	if err != nil {
		log.Fatalf("load temporal client options: %v", err)
	}
	temporalClient, err := client.Dial(clientOpts)
	if err != nil {
		log.Fatalf("dial temporal: %v", err)
	}
	defer temporalClient.Close()

	w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(wf.RunWorkflow)
	w.RegisterWorkflow(wf.RegistryRebuildWorkflow)

	activities := &wf.Activities{Engine: mgr, Builder: builder}
	w.RegisterActivity(activities.ExecuteRun)
	w.RegisterActivity(activities.ResolveApprovalDecision)
	w.RegisterActivity(activities.CancelRun)
	w.RegisterActivity(activities.RebuildRegistry)

	workerErrCh := make(chan error, 1)
	go func() {
		log.Printf("temporal worker starting on task queue %s", cfg.Temporal.TaskQueue)
		workerErrCh <- w.Run(worker.InterruptCh())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-workerErrCh:
		if err != nil {
			log.Printf("temporal worker stopped: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
