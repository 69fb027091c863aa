// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nbwarden/internal/browser"
	"github.com/xkilldash9x/nbwarden/internal/config"
	"github.com/xkilldash9x/nbwarden/internal/health"
	"github.com/xkilldash9x/nbwarden/internal/monitor"
	"github.com/xkilldash9x/nbwarden/internal/observability"
	"github.com/xkilldash9x/nbwarden/internal/recipe"
	"github.com/xkilldash9x/nbwarden/internal/recovery"
	"github.com/xkilldash9x/nbwarden/internal/server"
)

const (
	browserLaunchTimeout = 60 * time.Second
	// heartbeatSlack is added to the longest expected cycle before liveness fails.
	heartbeatSlack = 5 * time.Minute
)

// SessionOpener starts a browser session.
type SessionOpener func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Session, error)

// ComponentFactory creates the keep-alive components. Swapping the opener
// keeps the wiring testable without a browser.
type ComponentFactory struct {
	OpenSession SessionOpener
}

// NewComponentFactory returns a factory that launches a real browser.
func NewComponentFactory() *ComponentFactory {
	return &ComponentFactory{OpenSession: OpenBrowser}
}

// OpenBrowser launches the browser, bounding the launch by browserLaunchTimeout.
func OpenBrowser(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Session, error) {
	launchCtx, cancel := context.WithTimeout(ctx, browserLaunchTimeout)
	defer cancel()

	s, err := browser.Open(launchCtx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create validates the recipe, opens the session and wires the checker,
// recovery runner, monitor and optional probe server around it.
func (f *ComponentFactory) Create(ctx context.Context, cfg *config.Config, targetURL string, logger *zap.Logger) (*Components, error) {
	plan, err := recipe.FromConfig(cfg.Recipe).RecoveryPlan()
	if err != nil {
		return nil, fmt.Errorf("invalid recipe: %w", err)
	}
	if cfg.Recipe.ChannelID == "" {
		logger.Warn("No channel ID configured; recovery will not reinstall the plugin.")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	components := &Components{
		TargetURL: targetURL,
		Plan:      plan,
		Registry:  reg,
		Metrics:   observability.NewMetrics(reg),
		logger:    logger,
	}

	session, err := f.OpenSession(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	components.Session = session
	logger.Debug("Browser session opened.")

	checker := health.NewChecker(session, targetURL, health.MarkersFromConfig(cfg.Health), cfg.Monitor.CheckTimeout, logger)
	runner := recovery.NewRunner(session, plan, recovery.OptionsFromConfig(cfg), components.Metrics, logger)
	components.Monitor = monitor.New(checker, runner, session, cfg.Monitor.Interval, components.Metrics, logger)

	if cfg.Server.ListenAddr != "" {
		components.Server = server.New(cfg.Server, components.Monitor, MaxCycleAge(cfg, plan), reg, logger)
		logger.Debug("Probe server configured.", zap.String("listen_addr", cfg.Server.ListenAddr))
	}
	return components, nil
}

// MaxCycleAge is the longest a single monitor cycle may take: the interval, one
// check, and one full recovery at its configured ceilings. An unbounded
// sign-in wait makes cycles unbounded and returns 0, disabling the heartbeat check.
func MaxCycleAge(cfg *config.Config, plan []recipe.Cell) time.Duration {
	if cfg.Recovery.SignInTimeout == 0 {
		return 0
	}
	age := cfg.Monitor.Interval + cfg.Monitor.CheckTimeout +
		cfg.Browser.NavigationTimeout*2 +
		cfg.Recovery.SignInTimeout + cfg.Recovery.PostSignInWait +
		cfg.Recovery.ElementTimeout*3 + cfg.Recovery.CellReadyTimeout
	for _, cell := range plan {
		age += cell.Timeout + cfg.Recovery.ElementTimeout
	}
	return age + heartbeatSlack
}
