// Package server exposes the read-only inspection API: registry
// projections, run history, and stored metric values. It mutates
// nothing; runs are started from the CLI, not over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"metrify/internal/config"
	"metrify/internal/registry"
	"metrify/internal/store"
	"metrify/internal/version"
)

type Server struct {
	cfg     config.Config
	reg     *registry.Registry
	metrics *store.Store
	trace   *store.TraceLog
	logger  *slog.Logger
	server  *http.Server
}

// NewServer wires the inspection server. metrics and trace may be nil
// when the corresponding backend is not configured; their routes then
// respond 404.
func NewServer(cfg config.Config, reg *registry.Registry, metrics *store.Store, trace *store.TraceLog, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		reg:     reg,
		metrics: metrics,
		trace:   trace,
		logger:  logger,
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(otelhttp.NewMiddleware("metrify-inspect"))

	router.Get("/healthz", s.handleHealth)
	router.Get("/version", version.HandleVersion)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/sources", s.handleSources)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/targets", s.handleTargets)
		r.Get("/runs", s.handleRuns)
		r.Get("/datasets", s.handleDatasets)
		r.Get("/datasets/{datasetID}/latest", s.handleLatest)
	})

	s.server = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspection api listening", "addr", s.cfg.HTTPAddr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
