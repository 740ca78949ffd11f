// Package server provides the HTTP surface of spec §6: agents, sessions,
// chat (streaming and non-streaming), files, config, and the scheduler
// API, generalized from the teacher's handlers_*.go split by resource.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/agentmesh/runtime/internal/agent"
	"github.com/agentmesh/runtime/internal/config"
	"github.com/agentmesh/runtime/internal/orchestrator"
	"github.com/agentmesh/runtime/internal/provider"
)

// Config holds server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// SchedulerAPIEnabled gates the /api/scheduler/* routes (spec §7's
	// scheduler_api_disabled code).
	SchedulerAPIEnabled bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:                8080,
		EnableCORS:          true,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        0, // no write timeout: chat SSE streams can run long
		SchedulerAPIEnabled: true,
	}
}

// Server is the HTTP server.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server

	root         config.WorkspacesRoot
	registry     *agent.Registry
	providers    *provider.Registry
	orchestrator *orchestrator.Orchestrator
	schedulers   *schedulerSet

	chatLimiter  *ipLimiter
	filesLimiter *ipLimiter
}

// New creates a new Server instance, wiring the Agent Registry, Provider
// Registry, and Run Orchestrator into chi routes.
func New(cfg *Config, root config.WorkspacesRoot, registry *agent.Registry, providers *provider.Registry, orch *orchestrator.Orchestrator) *Server {
	s := &Server{
		config:       cfg,
		router:       chi.NewRouter(),
		root:         root,
		registry:     registry,
		providers:    providers,
		orchestrator: orch,
		schedulers:   newSchedulerSet(registry, orch),
		chatLimiter:  newIPLimiter(rate.Limit(60.0/60.0), 60),
		filesLimiter: newIPLimiter(rate.Limit(120.0/60.0), 120),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	s.router.Use(securityHeaders)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server and the per-agent background schedulers.
func (s *Server) Start(ctx context.Context) error {
	ids, err := s.registry.List()
	if err != nil {
		return fmt.Errorf("server: list agents: %w", err)
	}
	for _, id := range ids {
		if err := s.schedulers.startFor(ctx, id); err != nil {
			return fmt.Errorf("server: start schedulers for %q: %w", id, err)
		}
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server and stops all schedulers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.schedulers.stopAll()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders sets the fixed set of response headers mandated by
// spec §6 on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		h.Set("Cross-Origin-Resource-Policy", "same-site")
		next.ServeHTTP(w, r)
	})
}
