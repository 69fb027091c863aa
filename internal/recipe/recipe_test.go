package recipe

import (
	"encoding/base64"
	"regexp"
	"strings"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/nbwarden/internal/config"
)

func validRecipe() Recipe {
	return Recipe{
		ClientPackageURL: "https://discord.com/api/downloads/distro/app/linux/x64/stable",
		ModRepoURL:       "https://github.com/Vendicated/Vencord.git",
		ModDir:           "Vencord",
		PluginName:       "notifyServerJoins",
		PluginAuthor:     "nbwarden",
		PluginAuthorID:   "4723456780",
		ChannelID:        "123456789012345678",
		SendInterval:     2 * time.Second,
		InstallTimeout:   10 * time.Minute,
		CellTimeout:      2 * time.Minute,
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	r := FromConfig(cfg.Recipe)
	require.NoError(t, r.Validate(), "defaults must validate without a channel ID")
	assert.Equal(t, cfg.Recipe.ModDir, r.ModDir)
	assert.Empty(t, r.ChannelID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Recipe)
		errMsg string
	}{
		{"relative package URL", func(r *Recipe) { r.ClientPackageURL = "/stable" }, "client package URL"},
		{"ftp repo URL", func(r *Recipe) { r.ModRepoURL = "ftp://example.com/mod.git" }, "mod repository URL"},
		{"newline in repo URL", func(r *Recipe) { r.ModRepoURL = "https://example.com/a\n!rm -rf /" }, "mod repository URL"},
		{"mod dir traversal", func(r *Recipe) { r.ModDir = "../etc" }, "mod directory"},
		{"mod dir dot-dot", func(r *Recipe) { r.ModDir = ".." }, "mod directory"},
		{"mod dir with space", func(r *Recipe) { r.ModDir = "my mod" }, "mod directory"},
		{"plugin name with quote", func(r *Recipe) { r.PluginName = `x"; alert(1); "` }, "plugin name"},
		{"plugin name leading digit", func(r *Recipe) { r.PluginName = "1plugin" }, "plugin name"},
		{"empty author", func(r *Recipe) { r.PluginAuthor = "" }, "plugin author"},
		{"author with newline", func(r *Recipe) { r.PluginAuthor = "a\nb" }, "plugin author"},
		{"author ID not numeric", func(r *Recipe) { r.PluginAuthorID = "12n); evil(" }, "plugin author ID"},
		{"short channel ID", func(r *Recipe) { r.ChannelID = "12345" }, "channel ID"},
		{"channel ID with quote", func(r *Recipe) { r.ChannelID = `123456789012345678"` }, "channel ID"},
		{"negative send interval", func(r *Recipe) { r.SendInterval = -time.Second }, "send interval"},
		{"zero cell timeout", func(r *Recipe) { r.CellTimeout = 0 }, "timeouts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecipe()
			tt.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("valid recipe", func(t *testing.T) {
		assert.NoError(t, validRecipe().Validate())
	})
}

func TestSetupPlan(t *testing.T) {
	plan, err := validRecipe().SetupPlan()
	require.NoError(t, err)

	want := []Cell{
		{Name: "install", Expect: InstallMarker, Timeout: 10 * time.Minute},
		{Name: "plugin", Expect: PluginMarker, Timeout: 10 * time.Minute},
		{Name: "start", Expect: StartMarker, Timeout: 2 * time.Minute},
	}
	if diff := cmp.Diff(want, plan, cmpopts.IgnoreFields(Cell{}, "Source")); diff != "" {
		t.Errorf("SetupPlan() mismatch (-want +got):\n%s", diff)
	}

	for _, cell := range plan {
		assert.NotContains(t, cell.Source, cell.Expect, "cell %s must not contain its own marker", cell.Name)
		assert.True(t, strings.HasSuffix(cell.Source, "\n"))
	}

	t.Run("requires a channel ID", func(t *testing.T) {
		r := validRecipe()
		r.ChannelID = ""
		_, err := r.SetupPlan()
		assert.ErrorIs(t, err, ErrChannelIDRequired)
	})

	t.Run("rejects an invalid recipe", func(t *testing.T) {
		r := validRecipe()
		r.ModDir = "a/b"
		_, err := r.SetupPlan()
		assert.Error(t, err)
	})
}

func TestRecoveryPlan(t *testing.T) {
	t.Run("with plugin", func(t *testing.T) {
		plan, err := validRecipe().RecoveryPlan()
		require.NoError(t, err)
		require.Len(t, plan, 1)

		cell := plan[0]
		assert.Equal(t, "quick_setup", cell.Name)
		assert.Equal(t, StartMarker, cell.Expect)
		assert.Equal(t, 12*time.Minute, cell.Timeout)
		assert.Contains(t, cell.Source, "!git clone https://github.com/Vendicated/Vencord.git Vencord")
		assert.Contains(t, cell.Source, "base64.b64decode(")
		assert.NotContains(t, cell.Source, StartMarker)
	})

	t.Run("without channel ID the plugin is skipped", func(t *testing.T) {
		r := validRecipe()
		r.ChannelID = ""
		plan, err := r.RecoveryPlan()
		require.NoError(t, err)
		assert.NotContains(t, plan[0].Source, "base64")
		assert.Contains(t, plan[0].Source, "nohup discord")
	})
}

func TestPluginCellDecodesToPluginSource(t *testing.T) {
	r := validRecipe()
	cell, err := r.PluginCell()
	require.NoError(t, err)

	match := regexp.MustCompile(`b64decode\("([A-Za-z0-9+/=]+)"\)`).FindStringSubmatch(cell.Source)
	require.Len(t, match, 2)
	decoded, err := base64.StdEncoding.DecodeString(match[1])
	require.NoError(t, err)

	src, err := r.PluginSource()
	require.NoError(t, err)
	assert.Equal(t, src, string(decoded))
	assert.Contains(t, cell.Source, `os.makedirs("src/userplugins/notifyServerJoins", exist_ok=True)`)
}

func TestPluginSource(t *testing.T) {
	r := validRecipe()
	src, err := r.PluginSource()
	require.NoError(t, err)

	assert.Contains(t, src, `default: "123456789012345678"`)
	assert.Contains(t, src, `name: "notifyServerJoins"`)
	assert.Contains(t, src, `authors: [{ name: "nbwarden", id: 4723456780n }]`)
	assert.Contains(t, src, "const SEND_INTERVAL_MS = 2000;")

	t.Run("author is encoded as a string literal", func(t *testing.T) {
		r := validRecipe()
		r.PluginAuthor = `Ann "the" Dev`
		src, err := r.PluginSource()
		require.NoError(t, err)
		assert.Contains(t, src, `name: "Ann \"the\" Dev"`)
	})

	t.Run("requires a channel ID", func(t *testing.T) {
		r := validRecipe()
		r.ChannelID = ""
		_, err := r.PluginSource()
		assert.ErrorIs(t, err, ErrChannelIDRequired)
	})
}

func TestShellScript(t *testing.T) {
	r := validRecipe()
	r.ClientPackageURL = "https://example.com/download?platform=linux&format=deb"
	script, err := r.ShellScript()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "#!/usr/bin/env bash\n"))
	assert.Contains(t, script, "set -euo pipefail")
	assert.Contains(t, script, "wget -q -O client.deb 'https://example.com/download?platform=linux&format=deb'")
	assert.Contains(t, script, "cd Vencord")
	assert.Contains(t, script, "> src/userplugins/notifyServerJoins/index.ts")
	assert.Contains(t, script, "echo 'Discord started successfully!'")
}

func TestSplitLiteral(t *testing.T) {
	tests := map[string]string{
		"Discord started successfully!": `"Discord starte" "d successfully!"`,
		"":                              `"" ""`,
		"ab":                            `"a" "b"`,
		"héé":                           `"h" "éé"`,
	}
	for in, want := range tests {
		got, err := splitLiteral(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

// FuzzRecipe checks that any recipe accepted by Validate renders every
// artifact, and that the channel ID only ever reaches the plugin as a literal.
func FuzzRecipe(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		r := Recipe{}
		if err := consumer.GenerateStruct(&r); err != nil {
			return
		}
		if r.Validate() != nil {
			return
		}

		plan, err := r.RecoveryPlan()
		require.NoError(t, err)
		require.Len(t, plan, 1)

		if r.ChannelID == "" {
			return
		}
		src, err := r.PluginSource()
		require.NoError(t, err)
		assert.Contains(t, src, `default: "`+r.ChannelID+`"`)

		_, err = r.ShellScript()
		require.NoError(t, err)
	})
}
