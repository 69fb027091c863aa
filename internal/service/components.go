// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/nbwarden/internal/monitor"
	"github.com/xkilldash9x/nbwarden/internal/observability"
	"github.com/xkilldash9x/nbwarden/internal/recovery"
	"github.com/xkilldash9x/nbwarden/internal/server"
)

// sessionCloseTimeout bounds Shutdown when the monitor never took ownership of the session.
const sessionCloseTimeout = 15 * time.Second

// Session is the browser surface the keep-alive components drive.
type Session interface {
	recovery.Page
	Close(ctx context.Context) error
}

// Components holds everything a keep-alive run needs.
// Once Run is called the monitor owns the session and closes it when it stops.
type Components struct {
	TargetURL string
	Plan      recovery.Plan
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Session   Session
	Monitor   *monitor.Monitor
	// Server is nil when no listen address is configured.
	Server *server.Server

	logger  *zap.Logger
	started bool
}

// Run drives the monitor, and the probe server when configured, until ctx
// is cancelled or one of them fails.
func (c *Components) Run(ctx context.Context) error {
	c.started = true

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Monitor.Run(gctx) })
	if c.Server != nil {
		g.Go(func() error { return c.Server.Run(gctx) })
	}
	return g.Wait()
}

// Shutdown releases the session when Run was never called. After Run the
// monitor has already released it.
func (c *Components) Shutdown() {
	if c.started || c.Session == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
	defer cancel()

	if err := c.Session.Close(ctx); err != nil {
		c.logger.Warn("Error closing browser session during shutdown.", zap.Error(err))
		return
	}
	c.logger.Debug("Browser session closed.")
}
