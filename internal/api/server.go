// Package api exposes the decision, risk, hold and approval services over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/verdict/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware(cfg.AllowedOrigins))
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Post("/evaluate", handler.Evaluate)

		r.Post("/windows/overlaps", handler.WindowOverlaps)
		r.Post("/windows/validate", handler.ValidateWindow)

		r.Route("/risk", func(r chi.Router) {
			r.Post("/assess", handler.AssessRisk)
			r.Post("/step-up/complete", handler.CompleteStepUp)
			r.Get("/actors/{actorID}/devices", handler.ListTrustedDevices)
			r.Put("/actors/{actorID}/devices/{deviceID}", handler.TrustDevice)
			r.Delete("/actors/{actorID}/devices/{deviceID}", handler.RevokeDevice)
		})

		r.Route("/holds", func(r chi.Router) {
			r.Post("/", handler.PlaceHold)
			r.Get("/{id}", handler.GetHold)
			r.Post("/{id}/finalize", handler.FinalizeHold)
			r.Delete("/{id}", handler.ReleaseHold)
		})

		r.Route("/approvals", func(r chi.Router) {
			r.Post("/", handler.OpenApproval)
			r.Get("/{id}", handler.GetApproval)
			r.Post("/{id}/decide", handler.DecideApproval)
		})

		r.Get("/audit", handler.ListAudit)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
