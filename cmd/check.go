// File: cmd/check.go
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nbwarden/internal/health"
	"github.com/xkilldash9x/nbwarden/internal/observability"
)

// ErrUnhealthy is returned by the check command when the session is not healthy.
var ErrUnhealthy = errors.New("session is unhealthy")

func newCheckCmd() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check the notebook session once",
		Long:  "Loads the target notebook once and exits non-zero unless it is healthy.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger().Named("check")

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			target, err := resolveTargetURL(cfg)
			if err != nil {
				return err
			}

			session, err := openBrowser(ctx, cfg.Browser, logger)
			if err != nil {
				return err
			}
			defer closeSession(session, logger)

			status, err := health.NewChecker(session, target, health.MarkersFromConfig(cfg.Health), cfg.Monitor.CheckTimeout, logger).Check(ctx)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			logger.Info("Health check completed.",
				zap.String("target_url", target),
				zap.Bool("healthy", status.Healthy),
				zap.String("reason", status.Reason),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "healthy=%t reason=%q\n", status.Healthy, status.Reason)
			if !status.Healthy {
				return fmt.Errorf("%w: %s", ErrUnhealthy, status.Reason)
			}
			return nil
		},
	}

	checkCmd.Flags().String("url", "", "notebook URL to check (overrides COLAB_URL)")
	annotateFlag(checkCmd.Flags(), "url", "monitor.target_url")
	return checkCmd
}
