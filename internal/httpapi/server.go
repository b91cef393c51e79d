// Package httpapi is the control-plane and runtime-callback HTTP surface
// (§6.1, §6.2): a thin go-chi router translating wire requests into calls
// against engine.Manager, registry.Builder, and the statestore.Store CRUD
// surfaces for sources/policies/credentials.
package httpapi

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/codemode/toolgateway/internal/credentials"
	"github.com/codemode/toolgateway/internal/engine"
	"github.com/codemode/toolgateway/internal/policy"
	"github.com/codemode/toolgateway/internal/registry"
	"github.com/codemode/toolgateway/internal/security"
	"github.com/codemode/toolgateway/internal/statestore"
)

// Server wires the gateway's engine and persistence ports behind an
// http.Handler. Identity (actorId/clientId) is supplied by whatever
// upstream auth layer sits in front of this server (§1 Non-goals: "the
// auth identity provider" is an external collaborator) — it arrives here
// as the X-Actor-Id / X-Client-Id headers, trusted as already verified.
type Server struct {
	mux *chi.Mux

	engine      *engine.Manager
	store       statestore.Store
	builder     *registry.Builder
	policy      *policy.Evaluator
	credentials *credentials.Resolver
	tokens      *security.CallbackTokens
}

func New(eng *engine.Manager, store statestore.Store, builder *registry.Builder, pol *policy.Evaluator, creds *credentials.Resolver, tokens *security.CallbackTokens) *Server {
	s := &Server{
		engine:      eng,
		store:       store,
		builder:     builder,
		policy:      pol,
		credentials: creds,
		tokens:      tokens,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runtime/tool-call", s.handleToolCallback)

		r.Post("/runs", s.handleSubmitRun)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Get("/runs/{runID}/events", s.handleRunEvents)
		r.Post("/runs/{runID}/cancel", s.handleCancelRun)

		r.Get("/approvals", s.handleListApprovals)
		r.Post("/approvals/{approvalID}", s.handleResolveApproval)

		r.Get("/tools", s.handleListTools)
		r.Post("/tool-sources", s.handleUpsertSource)
		r.Delete("/tool-sources/{sourceID}", s.handleDeleteSource)

		r.Post("/credentials", s.handleUpsertCredential)
		r.Get("/credentials", s.handleListCredentials)

		r.Post("/policies", s.handleUpsertPolicy)
	})

	s.mux = r
}

// requestLogger mirrors the teacher's log.Printf-based diagnostics (no
// structured logging library is wired anywhere in the teacher repo) rather
// than pulling in a framework the rest of the gateway doesn't use.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		log.Printf("%s %s", r.Method, r.URL.Path)
	})
}
