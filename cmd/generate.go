// File: cmd/generate.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nbwarden/internal/observability"
	"github.com/xkilldash9x/nbwarden/internal/recipe"
	"github.com/xkilldash9x/nbwarden/internal/reporting"
)

func newGenerateCmd() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Write setup.sh and the plugin source to the output directory",
		Long: `Renders the standalone setup script and the chat client plugin from the
recipe configuration. Requires a channel ID (DISCORD_CHANNEL_ID or recipe.channel_id).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger().Named("generate")

			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			r := recipe.FromConfig(cfg.Recipe)
			if err := r.Validate(); err != nil {
				return fmt.Errorf("invalid recipe: %w", err)
			}

			script, err := r.ShellScript()
			if err != nil {
				return err
			}
			plugin, err := r.PluginSource()
			if err != nil {
				return err
			}

			outDir := cfg.Reporting.OutputDir
			files := []struct {
				path string
				data string
				mode os.FileMode
			}{
				{filepath.Join(outDir, "setup.sh"), script, 0o755},
				{filepath.Join(outDir, "userplugins", r.PluginName, "index.ts"), plugin, 0o644},
			}
			for _, f := range files {
				if err := reporting.WriteFileAtomic(f.path, []byte(f.data), f.mode); err != nil {
					return err
				}
				logger.Info("Generated file.", zap.String("path", f.path))
				fmt.Fprintln(cmd.OutOrStdout(), f.path)
			}
			return nil
		},
	}

	generateCmd.Flags().StringP("output-dir", "o", "", "directory for the generated files")
	annotateFlag(generateCmd.Flags(), "output-dir", "reporting.output_dir")
	generateCmd.Flags().String("channel-id", "", "channel ID embedded in the plugin (overrides DISCORD_CHANNEL_ID)")
	annotateFlag(generateCmd.Flags(), "channel-id", "recipe.channel_id")
	return generateCmd
}
