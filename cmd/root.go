// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nbwarden/internal/config"
	"github.com/xkilldash9x/nbwarden/internal/observability"
)

const (
	envPrefix         = "NBWARDEN"
	defaultConfigName = "nbwarden"
	defaultEnvFile    = ".env"

	// configKeyAnnotation marks a flag as an override for a configuration key.
	configKeyAnnotation = "nbwarden/config-key"
)

type configKey struct{}

// NewRootCommand builds a fresh command tree. Nothing is shared between calls.
func NewRootCommand() *cobra.Command {
	var (
		cfgFile string
		envFile string
	)

	rootCmd := &cobra.Command{
		Use:           "nbwarden",
		Short:         "nbwarden keeps a hosted notebook session and its chat client alive.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}

			v := viper.New()
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}
			if err := bindAnnotatedFlags(v, cmd.Flags()); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// The logger is not configured yet; fall back to defaults so the error is visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "nbwarden"})
				return err
			}
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()),
			)

			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./nbwarden.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file loaded into the environment before configuration")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	annotateFlag(rootCmd.PersistentFlags(), "log-level", "logger.level")

	rootCmd.AddCommand(
		newSetupCmd(),
		newKeepaliveCmd(),
		newCheckCmd(),
		newGenerateCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with ctx and logs any failure once. Only
// keepalive treats an interrupt as success; any other interrupted command
// returns an error wrapping context.Canceled.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	defer observability.Sync()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		observability.GetLogger().Warn("Command interrupted before it finished.", zap.Error(err))
	default:
		observability.GetLogger().Error("Command execution failed.", zap.Error(err))
	}
	return err
}

// loadEnvFile loads a dotenv file without overriding variables that are
// already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// initializeConfig wires defaults, the optional config file and the environment into v.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func annotateFlag(flags *pflag.FlagSet, name, key string) {
	if err := flags.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("annotate flag %s: %v", name, err))
	}
}

// bindAnnotatedFlags binds every flag carrying a config key annotation to that key.
func bindAnnotatedFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil {
			bindErr = fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

// configFromContext returns the configuration loaded by the root command.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
