package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/taskancestry/internal/collector"
	"github.com/vk/taskancestry/internal/config"
	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/export"
	"github.com/vk/taskancestry/internal/metrics"
	"github.com/vk/taskancestry/internal/registry"
	"github.com/vk/taskancestry/internal/snapshot"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	ctx    context.Context
	logger *slog.Logger
	config *config.Config

	promRegistry *prometheus.Registry
	metrics      *metrics.Exporter
	registry     *registry.Registry
	collector    *collector.Collector
	trigger      *snapshot.Trigger

	httpServer *http.Server
}

// Option customizes an App.
type Option func(*options)

type options struct {
	exit     func(int)
	exporter export.Exporter
}

// WithExit replaces os.Exit on the interrupt path.
func WithExit(exit func(int)) Option {
	return func(o *options) { o.exit = exit }
}

// WithExporter replaces the exporter selected from the configured format.
func WithExporter(e export.Exporter) Option {
	return func(o *options) { o.exporter = e }
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger, metrics registry and
// entity registry.
func NewApp(outW io.Writer, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{exit: os.Exit}
	for _, opt := range opts {
		opt(&o)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	promRegistry := prometheus.NewRegistry()
	exporter, err := metrics.NewExporter("", promRegistry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	reg := registry.New(
		registry.WithLogger(logger),
		registry.WithRecorder(exporter),
		registry.WithVerboseDiagnostics(cfg.VerboseDiagnostics),
	)
	coll := collector.New(reg, collector.Options{
		ExtendedAncestry:   cfg.ExtendedAncestry,
		VerboseDiagnostics: cfg.VerboseDiagnostics,
		Recorder:           exporter,
	})
	trigger := snapshot.New(reg, snapshot.Options{
		OutputPath: cfg.OutputPath,
		Format:     cfg.Format,
		Exporter:   o.exporter,
		Exit:       o.exit,
		Recorder:   exporter,
		Verbose:    cfg.VerboseDiagnostics,
	})
	logger.Debug("Tracker assembled.",
		"extended_ancestry", cfg.ExtendedAncestry,
		"verbose_diagnostics", cfg.VerboseDiagnostics,
		"output_path", config.ResolveOutputPath(cfg.OutputPath),
	)

	return &App{
		outW:         outW,
		ctx:          ctx,
		logger:       logger,
		config:       cfg,
		promRegistry: promRegistry,
		metrics:      exporter,
		registry:     reg,
		collector:    coll,
		trigger:      trigger,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Collector returns the application's event collector.
func (a *App) Collector() *collector.Collector {
	return a.collector
}

// Trigger returns the application's snapshot trigger.
func (a *App) Trigger() *snapshot.Trigger {
	return a.trigger
}
