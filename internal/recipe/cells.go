package recipe

import (
	"fmt"
	"time"
)

// Cell is one unit of notebook input. When Expect is set the cell is complete
// once Expect appears in the page, bounded by Timeout; otherwise Timeout is a
// fixed settle time.
type Cell struct {
	Name    string
	Source  string
	Expect  string
	Timeout time.Duration
}

// InstallCell downloads the client package and builds the mod.
func (r Recipe) InstallCell() (Cell, error) {
	src, err := r.render("install_cell")
	if err != nil {
		return Cell{}, err
	}
	return Cell{Name: "install", Source: src, Expect: InstallMarker, Timeout: r.InstallTimeout}, nil
}

// PluginCell writes the generated plugin into the mod checkout and rebuilds it.
func (r Recipe) PluginCell() (Cell, error) {
	if r.ChannelID == "" {
		return Cell{}, ErrChannelIDRequired
	}
	src, err := r.render("plugin_cell")
	if err != nil {
		return Cell{}, err
	}
	return Cell{Name: "plugin", Source: src, Expect: PluginMarker, Timeout: r.InstallTimeout}, nil
}

// StartCell launches the client in the background.
func (r Recipe) StartCell() (Cell, error) {
	src, err := r.render("start_cell")
	if err != nil {
		return Cell{}, err
	}
	return Cell{Name: "start", Source: src, Expect: StartMarker, Timeout: r.CellTimeout}, nil
}

// QuickSetupCell repeats install, plugin and start in a single cell. The
// plugin step is left out when no channel ID is configured.
func (r Recipe) QuickSetupCell() (Cell, error) {
	src, err := r.render("quick_cell")
	if err != nil {
		return Cell{}, err
	}
	return Cell{Name: "quick_setup", Source: src, Expect: StartMarker, Timeout: r.InstallTimeout + r.CellTimeout}, nil
}

// SetupPlan is the first-time setup: install, plugin, start.
func (r Recipe) SetupPlan() ([]Cell, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	builders := []func() (Cell, error){r.InstallCell, r.PluginCell, r.StartCell}
	plan := make([]Cell, 0, len(builders))
	for _, build := range builders {
		cell, err := build()
		if err != nil {
			return nil, err
		}
		plan = append(plan, cell)
	}
	return plan, nil
}

// RecoveryPlan is the single quick-setup cell run after a session is lost.
func (r Recipe) RecoveryPlan() ([]Cell, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	cell, err := r.QuickSetupCell()
	if err != nil {
		return nil, fmt.Errorf("build recovery plan: %w", err)
	}
	return []Cell{cell}, nil
}
