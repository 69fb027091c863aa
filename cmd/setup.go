// File: cmd/setup.go
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nbwarden/internal/observability"
	"github.com/xkilldash9x/nbwarden/internal/recipe"
	"github.com/xkilldash9x/nbwarden/internal/recovery"
	"github.com/xkilldash9x/nbwarden/internal/reporting"
)

func newSetupCmd() *cobra.Command {
	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Create a notebook, install the chat client and start it",
		Long: `Opens the notebook service in a browser window, waits for a manual sign-in,
creates a fresh notebook and runs the install, plugin and start cells in it.
The resulting notebook URL is written to the session URL file.

The browser runs with a visible window unless --headless is given, since the
sign-in has to be completed by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger().Named("setup")

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			headless, _ := cmd.Flags().GetBool("headless")
			cfg.Browser.Headless = headless

			plan, err := recipe.FromConfig(cfg.Recipe).SetupPlan()
			if err != nil {
				if errors.Is(err, recipe.ErrChannelIDRequired) {
					return fmt.Errorf("%w: set DISCORD_CHANNEL_ID or recipe.channel_id", err)
				}
				return fmt.Errorf("invalid recipe: %w", err)
			}

			report := reporting.NewReport("setup")
			result, runErr := runSetup(cmd, plan, logger)
			if result != nil {
				report.Finish(result.NotebookURL, result.Steps, runErr)
			} else {
				report.Finish("", nil, runErr)
			}

			if cfg.Reporting.ReportFile != "" {
				if err := reporting.WriteReportTo(cfg.Reporting.ReportFile, cmd.OutOrStdout(), report); err != nil {
					logger.Warn("Could not write run report.", zap.Error(err))
				}
			}
			if runErr != nil {
				return runErr
			}

			if err := reporting.WriteSessionURL(cfg.Reporting.URLFile, result.NotebookURL); err != nil {
				return fmt.Errorf("failed to save notebook URL: %w", err)
			}
			logger.Info("Setup completed.",
				zap.String("notebook_url", result.NotebookURL),
				zap.String("url_file", cfg.Reporting.URLFile),
			)
			fmt.Fprintln(cmd.OutOrStdout(), result.NotebookURL)
			return nil
		},
	}

	setupCmd.Flags().Bool("headless", false, "run the browser without a window")
	setupCmd.Flags().String("report", "", "write a JSON run report to this path ('-' for stdout)")
	annotateFlag(setupCmd.Flags(), "report", "reporting.report_file")
	setupCmd.Flags().String("url-file", "", "file receiving the notebook URL")
	annotateFlag(setupCmd.Flags(), "url-file", "reporting.url_file")
	setupCmd.Flags().String("screenshot-dir", "", "directory receiving a screenshot when a step fails")
	annotateFlag(setupCmd.Flags(), "screenshot-dir", "reporting.screenshot_dir")
	return setupCmd
}

// runSetup opens a browser, runs the plan and always closes the browser.
func runSetup(cmd *cobra.Command, plan []recipe.Cell, logger *zap.Logger) (*recovery.Result, error) {
	ctx := cmd.Context()
	cfg, err := configFromContext(ctx)
	if err != nil {
		return nil, err
	}

	session, err := openBrowser(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, err
	}
	defer closeSession(session, logger)

	runner := recovery.NewRunner(session, plan, recovery.OptionsFromConfig(cfg), nil, logger)
	return runner.Run(ctx)
}
