package app

import (
	"context"
	"fmt"

	"github.com/vk/taskancestry/internal/config"
)

// Mode selects what Run does.
type Mode string

const (
	// ModeServe accepts events over socket.io until interrupted.
	ModeServe Mode = "serve"
	// ModeReplay feeds a recorded trace through the collector, then exports.
	ModeReplay Mode = "replay"
	// ModeEmit streams a recorded trace to a running server.
	ModeEmit Mode = "emit"
)

// Invocation is one parsed command line.
type Invocation struct {
	Mode Mode

	// ConfigPath is an optional HCL file merged over the defaults.
	ConfigPath string
	// Overrides holds the values of the flags that were set explicitly.
	Overrides config.Overrides

	TracePath       string
	Target          string
	RequestSnapshot bool
}

// ResolveConfig layers defaults, the config file and the flag overrides, in
// that order, and validates the result.
func (inv *Invocation) ResolveConfig(ctx context.Context, loader config.Loader) (*config.Config, error) {
	cfg := config.Default()
	if inv.ConfigPath != "" {
		fromFile, err := loader.Load(ctx, inv.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg.Apply(fromFile)
	}
	cfg.Apply(&inv.Overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
