// internal/browser/options.go
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/nbwarden/internal/config"
)

// DefaultAllocatorOptions builds the ExecAllocator options for the configured browser.
// The flags match what the notebook UI needs to run inside containers and CI runners.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+8)
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-plugins", true),
	)

	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	if cfg.UserDataDir != "" {
		dir, err := homedir.Expand(cfg.UserDataDir)
		if err != nil {
			dir = cfg.UserDataDir
		}
		opts = append(opts, chromedp.UserDataDir(dir))
	}

	for _, arg := range cfg.Args {
		if name, value, ok := parseArg(arg); ok {
			opts = append(opts, chromedp.Flag(name, value))
		}
	}
	return opts
}

// parseArg turns "--name=value" or "--name" into a chromedp flag.
func parseArg(arg string) (string, interface{}, bool) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", nil, false
	}
	if name, value, found := strings.Cut(arg, "="); found {
		return name, value, true
	}
	return arg, true, true
}
