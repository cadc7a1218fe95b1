// Package api serves a CabinetDB database over HTTP.
//
// Routes under /api/v1 require the X-API-Key header; /metrics is left open
// for scraping.
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ssargent/cabinetdb/pkg/log"
)

const (
	statsInterval   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// NewRouter wires every route of s. gatherer backs /metrics; nil uses the
// default gatherer.
func NewRouter(s *Server, gatherer prometheus.Gatherer, logger zerolog.Logger) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	metrics := s.metrics

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(metrics.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		r.Get("/health", metrics.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))
		r.Get("/status", metrics.InstrumentHandler("GET", "/api/v1/status", s.handleStatus))

		r.Put("/kv/{key}", metrics.InstrumentHandler("PUT", "/api/v1/kv/{key}", s.handlePut))
		r.Get("/kv/{key}", metrics.InstrumentHandler("GET", "/api/v1/kv/{key}", s.handleGet))
		r.Delete("/kv/{key}", metrics.InstrumentHandler("DELETE", "/api/v1/kv/{key}", s.handleDelete))
		r.Post("/kv/{key}/increment", metrics.InstrumentHandler("POST", "/api/v1/kv/{key}/increment", s.handleIncrement))

		r.Get("/keys", metrics.InstrumentHandler("GET", "/api/v1/keys", s.handleKeys))
	})

	return r
}

// StartServer serves db until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, db KVStore, config ServerConfig) error {
	logger := log.API
	if config.APIKey == "" {
		return errors.New("api: an API key is required")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	server := NewServer(db, config, NewMetrics(reg))

	addr := net.JoinHostPort(config.Bind, strconv.Itoa(config.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(server, reg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go server.startMetricsUpdater(ctx, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("serving CabinetDB REST API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", addr)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down REST API")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// startMetricsUpdater refreshes the database gauges until ctx ends.
func (s *Server) startMetricsUpdater(ctx context.Context, logger zerolog.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		if err := s.refreshStats(); err != nil {
			logger.Warn().Err(err).Msg("refreshing database metrics")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
