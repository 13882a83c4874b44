// Package api exposes the diagnosis service over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sipadi/padi/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg *domain.Config, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(handler.metrics.Middleware)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", handler.metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(cfg.Limits.RequestsPerSecond, cfg.Limits.RequestBurst))

		r.Get("/symptoms", handler.ListSymptoms)
		r.Get("/diseases", handler.ListDiseases)
		r.Get("/diseases/{id}", handler.GetDisease)

		r.Group(func(r chi.Router) {
			r.Use(UserMiddleware)

			r.Post("/diagnosis/start", handler.StartDiagnosis)
			r.Get("/history", handler.ListHistory)
			r.Get("/history/{id}", handler.GetHistory)
		})

		r.Group(func(r chi.Router) {
			r.Use(AdminMiddleware(cfg.Admin.Token))

			r.Post("/symptoms", handler.CreateSymptom)
			r.Post("/diseases", handler.CreateDisease)
			r.Put("/diseases/{id}/min-match", handler.SetMinSymptomMatch)

			r.Get("/rules", handler.ListRules)
			r.Post("/rules", handler.CreateRules)
			r.Put("/rules/{id}/active", handler.SetRuleActive)
			r.Post("/rules/reload", handler.ReloadRules)

			r.Get("/settings", handler.ListSettings)
			r.Put("/settings/{key}", handler.UpdateSetting)

			r.Post("/history/cleanup", handler.CleanupHistory)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start starts the HTTP server.
// Shutdown may be called before Start; Start then returns http.ErrServerClosed.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
