// File: cmd/keepalive.go
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nbwarden/internal/config"
	"github.com/xkilldash9x/nbwarden/internal/observability"
	"github.com/xkilldash9x/nbwarden/internal/reporting"
	"github.com/xkilldash9x/nbwarden/internal/service"
)

func newKeepaliveCmd() *cobra.Command {
	keepaliveCmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Watch the notebook session and recover it when it dies",
		Long: `Checks the target notebook every monitor interval. When the page shows a
failure marker, or no success marker, the session is rebuilt in a fresh notebook.
Runs until interrupted.

The target URL comes from --url, COLAB_URL or monitor.target_url, and falls back
to the session URL file written by setup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger().Named("keepalive")

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			target, err := resolveTargetURL(cfg)
			if err != nil {
				return err
			}

			factory := service.NewComponentFactory()
			factory.OpenSession = openBrowser
			components, err := factory.Create(ctx, cfg, target, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			logger.Info("Keeping session alive.",
				zap.String("target_url", target),
				zap.Duration("interval", cfg.Monitor.Interval),
			)
			err = components.Run(ctx)
			if ctx.Err() != nil {
				// An interrupt is the only way keepalive ends cleanly.
				logger.Info("Keep-alive stopped.")
				return nil
			}
			return err
		},
	}

	keepaliveCmd.Flags().String("url", "", "notebook URL to keep alive (overrides COLAB_URL)")
	annotateFlag(keepaliveCmd.Flags(), "url", "monitor.target_url")
	keepaliveCmd.Flags().Duration("interval", 0, "time between health checks")
	annotateFlag(keepaliveCmd.Flags(), "interval", "monitor.interval")
	keepaliveCmd.Flags().String("listen", "", "address for the /live, /ready and /metrics endpoints")
	annotateFlag(keepaliveCmd.Flags(), "listen", "server.listen_addr")
	keepaliveCmd.Flags().String("url-file", "", "file receiving the notebook URL after a recovery")
	annotateFlag(keepaliveCmd.Flags(), "url-file", "reporting.url_file")
	keepaliveCmd.Flags().String("screenshot-dir", "", "directory receiving a screenshot when a recovery step fails")
	annotateFlag(keepaliveCmd.Flags(), "screenshot-dir", "reporting.screenshot_dir")
	return keepaliveCmd
}

// resolveTargetURL prefers the configured target and falls back to the session URL file.
func resolveTargetURL(cfg *config.Config) (string, error) {
	if cfg.Monitor.TargetURL != "" {
		return cfg.Monitor.TargetURL, nil
	}
	if cfg.Reporting.URLFile != "" {
		url, err := reporting.ReadSessionURL(cfg.Reporting.URLFile)
		if err == nil {
			return url, nil
		}
		return "", fmt.Errorf("no target URL configured (set --url or %s) and %w", config.EnvTargetURL, err)
	}
	return "", errors.New("no target URL configured (set --url or " + config.EnvTargetURL + ")")
}
