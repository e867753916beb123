// Package server provides HTTP server management and lifecycle handling for the cycle tracker.
// It wires middleware and routes around an interfaces.HTTPHandler and shuts down gracefully.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux for the dev profiling server
	"time"

	"github.com/giygas/cycletracker/config"
	"github.com/giygas/cycletracker/interfaces"
	"github.com/giygas/cycletracker/logging"
	"github.com/giygas/cycletracker/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const rateLimiterCleanupInterval = 10 * time.Minute

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	router  chi.Router
	handler interfaces.HTTPHandler
	config  *config.Config
	limiter *RateLimiter

	profiler *http.Server
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, handler interfaces.HTTPHandler) *Server {
	router := chi.NewRouter()

	server := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         net.JoinHostPort(cfg.Address, cfg.Port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:  router,
		handler: handler,
		config:  cfg,
		limiter: NewRateLimiter(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// Router exposes the configured router, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	if s.config.Env == config.EnvProduction {
		s.router.Use(BlockDirectAccessMiddleware) // Put BEFORE RealIPMiddleware to see original RemoteAddr
	}
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(nil))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.limiter.Middleware)
	s.router.Use(metrics.Metrics)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	h := s.handler

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/cycles", h.ListCycles)
		r.Post("/cycles", h.StartCycle)
		r.Get("/cycles/active", h.GetActiveCycle)
		r.Post("/cycles/active/end", h.EndCycle)
		r.Post("/cycles/active/administrations", h.LogAdministration)
		r.Delete("/cycles/active/administrations/{administrationId}", h.RemoveAdministration)

		r.Get("/cycles/{id}", h.GetCycle)
		r.Get("/cycles/{id}/residuals", h.ResidualLevels)
		r.Get("/cycles/{id}/series", h.SerumLevelSeries)
		r.Get("/cycles/{id}/weekly-averages", h.WeeklyAverages)
		r.Get("/cycles/{id}/totals", h.TotalDosages)
		r.Get("/cycles/{id}/sites", h.SiteRotation)
		r.Get("/cycles/{id}/recommended-site", h.RecommendedSite)
		r.Get("/cycles/{id}/calendar", h.Calendar)

		r.Get("/dashboard", h.Dashboard)
		r.Get("/history", h.History)

		r.Get("/substances", h.ListSubstances)
		r.Post("/substances", h.AddSubstance)
		r.Get("/substances/{id}", h.GetSubstance)
		r.Get("/substances/{id}/dosage-check", h.ValidateDosage)
	})

	s.router.Get("/health", h.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Start starts the server and blocks until it stops
func (s *Server) Start() error {
	// Start profiling server if in development mode
	if s.config.Env == config.EnvDevelopment {
		s.startProfilingServer()
	}

	s.limiter.StartCleanup(rateLimiterCleanupInterval)

	logging.Info(fmt.Sprintf("Starting server at: %s", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	defer s.limiter.Stop()

	if s.profiler != nil {
		_ = s.profiler.Shutdown(ctx)
	}

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		// If graceful shutdown fails, force close
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}

// startProfilingServer starts the pprof profiling server in development mode
func (s *Server) startProfilingServer() {
	s.profiler = &http.Server{
		Addr:              "localhost:6060",
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	profiler := s.profiler

	go func() {
		logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
		if err := profiler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn("Profiling server failed", "error", err)
		}
	}()
}
