package recipe

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"al.essio.dev/pkg/shellescape"
	jsoniter "github.com/json-iterator/go"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var templates = template.Must(template.New("recipe").Funcs(template.FuncMap{
	"shell":   shellescape.Quote,
	"literal": literal,
	"split":   splitLiteral,
	"ms":      func(d time.Duration) int64 { return d.Milliseconds() },
}).ParseFS(templateFS, "templates/*.tmpl"))

// view is the data handed to every template.
type view struct {
	Recipe
	PluginDir     string
	PluginPath    string
	PluginBase64  string
	HasPlugin     bool
	InstallMarker string
	PluginMarker  string
	StartMarker   string
}

// ShellScript returns a standalone setup.sh performing the full setup on a Linux host.
func (r Recipe) ShellScript() (string, error) {
	if r.ChannelID == "" {
		return "", ErrChannelIDRequired
	}
	return r.render("setup.sh")
}

// PluginSource returns the TypeScript plugin with the configured values embedded.
func (r Recipe) PluginSource() (string, error) {
	if r.ChannelID == "" {
		return "", ErrChannelIDRequired
	}
	return r.render("plugin.ts")
}

func (r Recipe) render(name string) (string, error) {
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("invalid recipe: %w", err)
	}
	v := view{
		Recipe:        r,
		PluginDir:     r.PluginDir(),
		PluginPath:    r.PluginPath(),
		HasPlugin:     r.ChannelID != "",
		InstallMarker: InstallMarker,
		PluginMarker:  PluginMarker,
		StartMarker:   StartMarker,
	}
	if v.HasPlugin && name != "plugin.ts" {
		plugin, err := r.render("plugin.ts")
		if err != nil {
			return "", err
		}
		v.PluginBase64 = base64.StdEncoding.EncodeToString([]byte(plugin))
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, v); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// literal encodes s as a double-quoted string literal valid in JSON,
// TypeScript and Python.
func literal(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// splitLiteral encodes s as two adjacent Python string literals, so the
// source of a cell never contains its own completion marker and only the
// printed output does.
func splitLiteral(s string) (string, error) {
	i := len(s) / 2
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	head, err := literal(s[:i])
	if err != nil {
		return "", err
	}
	tail, err := literal(s[i:])
	if err != nil {
		return "", err
	}
	return strings.Join([]string{head, tail}, " "), nil
}
