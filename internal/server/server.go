// Package server exposes liveness, readiness and metrics endpoints for the
// keep-alive loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/xkilldash9x/nbwarden/internal/config"
	"github.com/xkilldash9x/nbwarden/internal/health"
)

const requestTimeout = 30 * time.Second

// StatusSource is the monitor state the probes report on.
type StatusSource interface {
	Status() (health.Status, bool)
	LastCycle() time.Time
}

// Server serves /live, /ready and /metrics.
type Server struct {
	cfg     config.ServerConfig
	handler http.Handler
	logger  *zap.Logger
}

// New builds the router. maxCycleAge bounds how stale the monitor heartbeat
// may get before liveness fails; zero disables the heartbeat check.
func New(cfg config.ServerConfig, src StatusSource, maxCycleAge time.Duration, reg *prometheus.Registry, logger *zap.Logger) *Server {
	hc := healthcheck.NewMetricsHandler(reg, "nbwarden")
	hc.AddReadinessCheck("remote-session", ReadinessCheck(src))
	if maxCycleAge > 0 {
		hc.AddLivenessCheck("monitor-heartbeat", HeartbeatCheck(src, maxCycleAge))
	}
	if cfg.MaxGoroutines > 0 {
		hc.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(cfg.MaxGoroutines))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/live", hc.LiveEndpoint)
	r.Get("/ready", hc.ReadyEndpoint)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &Server{
		cfg:     cfg,
		handler: r,
		logger:  logger.Named("server"),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address until ctx ends, then shuts down
// within the configured timeout. A clean shutdown returns nil.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Probe server listening.", zap.String("address", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("probe server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("probe server shutdown: %w", err)
	}
	<-errCh
	s.logger.Info("Probe server stopped.")
	return nil
}

// ReadinessCheck passes while the latest health reading is healthy.
func ReadinessCheck(src StatusSource) healthcheck.Check {
	return func() error {
		status, ok := src.Status()
		if !ok {
			return errors.New("no health check has completed yet")
		}
		if !status.Healthy {
			return fmt.Errorf("remote session unhealthy: %s", status.Reason)
		}
		return nil
	}
}

// HeartbeatCheck passes while the monitor completed a cycle within maxAge.
func HeartbeatCheck(src StatusSource, maxAge time.Duration) healthcheck.Check {
	return func() error {
		last := src.LastCycle()
		if last.IsZero() {
			return errors.New("monitor has not started")
		}
		if age := time.Since(last); age > maxAge {
			return fmt.Errorf("last monitor cycle %s ago exceeds %s", age.Truncate(time.Second), maxAge)
		}
		return nil
	}
}
