// Package recipe builds the notebook cells and standalone artifacts that
// install, configure and start the chat client on the remote runtime.
//
// Every value that ends up inside generated code is validated first and then
// encoded for its target language (shell quoting, JSON/Python string literals),
// so no configuration value is spliced into a script verbatim.
package recipe

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"time"

	"github.com/xkilldash9x/nbwarden/internal/config"
)

// Completion markers printed by the generated cells. The start marker is the
// text the health check looks for.
const (
	InstallMarker = "Client and mod installed successfully!"
	PluginMarker  = "Plugin file created successfully!"
	StartMarker   = "Discord started successfully!"
)

// ErrChannelIDRequired is returned when a plugin artifact is requested without a channel ID.
var ErrChannelIDRequired = errors.New("a channel ID is required to generate the plugin")

var (
	snowflakePattern  = regexp.MustCompile(`^[0-9]{17,20}$`)
	identPattern      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	segmentPattern    = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	numericPattern    = regexp.MustCompile(`^[0-9]{1,20}$`)
	controlCharacters = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// Recipe is the validated input for every generated cell and artifact.
type Recipe struct {
	ClientPackageURL string
	ModRepoURL       string
	ModDir           string
	PluginName       string
	PluginAuthor     string
	PluginAuthorID   string
	ChannelID        string
	SendInterval     time.Duration
	InstallTimeout   time.Duration
	CellTimeout      time.Duration
}

// FromConfig copies the recipe section of the configuration.
func FromConfig(cfg config.RecipeConfig) Recipe {
	return Recipe{
		ClientPackageURL: cfg.ClientPackageURL,
		ModRepoURL:       cfg.ModRepoURL,
		ModDir:           cfg.ModDir,
		PluginName:       cfg.PluginName,
		PluginAuthor:     cfg.PluginAuthor,
		PluginAuthorID:   cfg.PluginAuthorID,
		ChannelID:        cfg.ChannelID,
		SendInterval:     cfg.SendInterval,
		InstallTimeout:   cfg.InstallTimeout,
		CellTimeout:      cfg.CellTimeout,
	}
}

// Validate rejects values that cannot be safely embedded in generated code.
// An empty channel ID is allowed here; artifacts that need one check for it.
func (r Recipe) Validate() error {
	if err := validateHTTPURL(r.ClientPackageURL); err != nil {
		return fmt.Errorf("client package URL: %w", err)
	}
	if err := validateHTTPURL(r.ModRepoURL); err != nil {
		return fmt.Errorf("mod repository URL: %w", err)
	}
	if !segmentPattern.MatchString(r.ModDir) || r.ModDir == "." || r.ModDir == ".." {
		return fmt.Errorf("mod directory %q must be a single path segment of letters, digits, '.', '_' or '-'", r.ModDir)
	}
	if !identPattern.MatchString(r.PluginName) {
		return fmt.Errorf("plugin name %q must be an identifier", r.PluginName)
	}
	if r.PluginAuthor == "" || controlCharacters.MatchString(r.PluginAuthor) {
		return fmt.Errorf("plugin author must be non-empty and free of control characters")
	}
	if !numericPattern.MatchString(r.PluginAuthorID) {
		return fmt.Errorf("plugin author ID %q must be numeric", r.PluginAuthorID)
	}
	if r.ChannelID != "" && !snowflakePattern.MatchString(r.ChannelID) {
		return fmt.Errorf("channel ID %q must be a 17-20 digit snowflake", r.ChannelID)
	}
	if r.SendInterval < 0 {
		return fmt.Errorf("send interval must not be negative")
	}
	if r.InstallTimeout <= 0 || r.CellTimeout <= 0 {
		return fmt.Errorf("install and cell timeouts must be positive durations")
	}
	return nil
}

// PluginDir is the plugin directory relative to the mod checkout.
func (r Recipe) PluginDir() string {
	return path.Join("src", "userplugins", r.PluginName)
}

// PluginPath is the plugin entry file relative to the mod checkout.
func (r Recipe) PluginPath() string {
	return path.Join(r.PluginDir(), "index.ts")
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
