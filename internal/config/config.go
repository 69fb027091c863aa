// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Environment variables read without the NBWARDEN_ prefix. They predate the
// config file and are what CI workflows already export.
const (
	EnvTargetURL = "COLAB_URL"
	EnvChannelID = "DISCORD_CHANNEL_ID"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Notebook  NotebookConfig  `mapstructure:"notebook" yaml:"notebook"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
	Monitor   MonitorConfig   `mapstructure:"monitor" yaml:"monitor"`
	Recovery  RecoveryConfig  `mapstructure:"recovery" yaml:"recovery"`
	Recipe    RecipeConfig    `mapstructure:"recipe" yaml:"recipe"`
	Reporting ReportingConfig `mapstructure:"reporting" yaml:"reporting"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// BrowserConfig holds settings for the Chromium instance behind the session handle.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir       string         `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	UserAgent         string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Debug             bool           `mapstructure:"debug" yaml:"debug"`
}

// NotebookConfig describes the notebook service UI. Selectors starting with
// "/" or "(" are XPath, everything else is CSS.
type NotebookConfig struct {
	EntryURL            string   `mapstructure:"entry_url" yaml:"entry_url"`
	CreateURL           string   `mapstructure:"create_url" yaml:"create_url"`
	FileMenuSelector    string   `mapstructure:"file_menu_selector" yaml:"file_menu_selector"`
	NewNotebookSelector string   `mapstructure:"new_notebook_selector" yaml:"new_notebook_selector"`
	CellSelector        string   `mapstructure:"cell_selector" yaml:"cell_selector"`
	RunButtonSelector   string   `mapstructure:"run_button_selector" yaml:"run_button_selector"`
	SignInPrompt        string   `mapstructure:"sign_in_prompt" yaml:"sign_in_prompt"`
	SignedInIndicators  []string `mapstructure:"signed_in_indicators" yaml:"signed_in_indicators"`
}

// HealthConfig holds the text fragments that make up the health predicate.
type HealthConfig struct {
	FailureMarkers []string `mapstructure:"failure_markers" yaml:"failure_markers"`
	SuccessMarkers []string `mapstructure:"success_markers" yaml:"success_markers"`
}

// MonitorConfig configures the keep-alive loop.
type MonitorConfig struct {
	TargetURL    string        `mapstructure:"target_url" yaml:"target_url"`
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
	CheckTimeout time.Duration `mapstructure:"check_timeout" yaml:"check_timeout"`
}

// RecoveryConfig bounds every wait in the recovery sequence.
type RecoveryConfig struct {
	// SignInTimeout caps the wait for a signed-in page. Zero waits indefinitely.
	SignInTimeout    time.Duration `mapstructure:"sign_in_timeout" yaml:"sign_in_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ElementTimeout   time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	CellReadyTimeout time.Duration `mapstructure:"cell_ready_timeout" yaml:"cell_ready_timeout"`
	PostSignInWait   time.Duration `mapstructure:"post_sign_in_wait" yaml:"post_sign_in_wait"`
}

// RecipeConfig holds the typed inputs for generated cells and artifacts.
type RecipeConfig struct {
	ClientPackageURL string        `mapstructure:"client_package_url" yaml:"client_package_url"`
	ModRepoURL       string        `mapstructure:"mod_repo_url" yaml:"mod_repo_url"`
	ModDir           string        `mapstructure:"mod_dir" yaml:"mod_dir"`
	PluginName       string        `mapstructure:"plugin_name" yaml:"plugin_name"`
	PluginAuthor     string        `mapstructure:"plugin_author" yaml:"plugin_author"`
	PluginAuthorID   string        `mapstructure:"plugin_author_id" yaml:"plugin_author_id"`
	ChannelID        string        `mapstructure:"channel_id" yaml:"channel_id"`
	SendInterval     time.Duration `mapstructure:"send_interval" yaml:"send_interval"`
	InstallTimeout   time.Duration `mapstructure:"install_timeout" yaml:"install_timeout"`
	CellTimeout      time.Duration `mapstructure:"cell_timeout" yaml:"cell_timeout"`
}

// ReportingConfig controls the files written by setup and recovery.
type ReportingConfig struct {
	URLFile       string `mapstructure:"url_file" yaml:"url_file"`
	ReportFile    string `mapstructure:"report_file" yaml:"report_file"`
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	OutputDir     string `mapstructure:"output_dir" yaml:"output_dir"`
}

// ServerConfig configures the optional probe and metrics listener.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxGoroutines   int           `mapstructure:"max_goroutines" yaml:"max_goroutines"`
	// MaxConnections caps concurrent probe connections. 0 means no limit.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "nbwarden")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport", map[string]int{"width": 1920, "height": 1080})
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.debug", false)

	// -- Notebook --
	v.SetDefault("notebook.entry_url", "https://colab.research.google.com/")
	v.SetDefault("notebook.create_url", "https://colab.research.google.com/notebooks/create")
	v.SetDefault("notebook.file_menu_selector", "//div[contains(text(), 'File')]")
	v.SetDefault("notebook.new_notebook_selector", "//div[contains(text(), 'New notebook')]")
	v.SetDefault("notebook.cell_selector", "div.codecell-input")
	v.SetDefault("notebook.run_button_selector", "button.run-button")
	v.SetDefault("notebook.sign_in_prompt", "Sign in")
	v.SetDefault("notebook.signed_in_indicators", []string{"NEW NOTEBOOK", "File", "Runtime", "Tools"})

	// -- Health --
	v.SetDefault("health.failure_markers", []string{"timeout", "disconnected"})
	v.SetDefault("health.success_markers", []string{"Discord started successfully"})

	// -- Monitor --
	v.SetDefault("monitor.interval", "30m")
	v.SetDefault("monitor.check_timeout", "90s")

	// -- Recovery --
	v.SetDefault("recovery.sign_in_timeout", "10m")
	v.SetDefault("recovery.poll_interval", "10s")
	v.SetDefault("recovery.element_timeout", "15s")
	v.SetDefault("recovery.cell_ready_timeout", "45s")
	v.SetDefault("recovery.post_sign_in_wait", "10s")

	// -- Recipe --
	v.SetDefault("recipe.client_package_url", "https://discord.com/api/downloads/distro/app/linux/x64/stable")
	v.SetDefault("recipe.mod_repo_url", "https://github.com/Vendicated/Vencord.git")
	v.SetDefault("recipe.mod_dir", "Vencord")
	v.SetDefault("recipe.plugin_name", "notifyServerJoins")
	v.SetDefault("recipe.plugin_author", "nbwarden")
	v.SetDefault("recipe.plugin_author_id", "0")
	v.SetDefault("recipe.send_interval", "2s")
	v.SetDefault("recipe.install_timeout", "10m")
	v.SetDefault("recipe.cell_timeout", "2m")

	// -- Reporting --
	v.SetDefault("reporting.url_file", "colab_url.txt")
	v.SetDefault("reporting.report_file", "")
	v.SetDefault("reporting.screenshot_dir", "")
	v.SetDefault("reporting.output_dir", "generated")

	// -- Server --
	v.SetDefault("server.listen_addr", "")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_goroutines", 200)
	v.SetDefault("server.max_connections", 16)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The two legacy variables are bound explicitly since they do not carry the prefix.
	if err := v.BindEnv("monitor.target_url", EnvTargetURL); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", EnvTargetURL, err)
	}
	if err := v.BindEnv("recipe.channel_id", EnvChannelID); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", EnvChannelID, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values. Command-specific
// requirements (a target URL for keepalive, a channel ID for the plugin) are
// checked by the commands that need them.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be a positive duration")
	}
	if c.Monitor.CheckTimeout <= 0 {
		return fmt.Errorf("monitor.check_timeout must be a positive duration")
	}
	if c.Monitor.TargetURL != "" {
		if err := validateHTTPURL(c.Monitor.TargetURL); err != nil {
			return fmt.Errorf("monitor.target_url: %w", err)
		}
	}
	if err := c.Recovery.Validate(); err != nil {
		return fmt.Errorf("recovery configuration invalid: %w", err)
	}
	if err := c.Notebook.Validate(); err != nil {
		return fmt.Errorf("notebook configuration invalid: %w", err)
	}
	if len(c.Health.SuccessMarkers) == 0 {
		return fmt.Errorf("health.success_markers must contain at least one marker")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative")
	}
	return nil
}

// Validate checks the recovery wait ceilings.
func (r *RecoveryConfig) Validate() error {
	if r.SignInTimeout < 0 {
		return fmt.Errorf("sign_in_timeout must not be negative")
	}
	if r.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if r.ElementTimeout <= 0 || r.CellReadyTimeout <= 0 {
		return fmt.Errorf("element_timeout and cell_ready_timeout must be positive durations")
	}
	if r.PostSignInWait < 0 {
		return fmt.Errorf("post_sign_in_wait must not be negative")
	}
	return nil
}

// Validate checks the notebook UI description.
func (n *NotebookConfig) Validate() error {
	if err := validateHTTPURL(n.EntryURL); err != nil {
		return fmt.Errorf("entry_url: %w", err)
	}
	if n.CreateURL != "" {
		if err := validateHTTPURL(n.CreateURL); err != nil {
			return fmt.Errorf("create_url: %w", err)
		}
	}
	if n.CellSelector == "" || n.RunButtonSelector == "" {
		return fmt.Errorf("cell_selector and run_button_selector are required")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}
