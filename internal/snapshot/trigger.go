package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/vk/taskancestry/internal/config"
	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/export"
	"github.com/vk/taskancestry/internal/graph"
	"github.com/vk/taskancestry/internal/metrics"
	"github.com/vk/taskancestry/internal/registry"
)

// ErrClosed is returned by Shutdown and Snapshot after the registry has been
// released.
var ErrClosed = errors.New("snapshot trigger already shut down")

const (
	ReasonInterrupt = "interrupt"
	ReasonShutdown  = "shutdown"
	ReasonRequest   = "request"
)

// Options configures a Trigger. Zero values select the defaults.
type Options struct {
	// OutputPath is the configured path; it is resolved through
	// config.ResolveOutputPath at every export.
	OutputPath string
	// Format selects the exporter; empty infers it from the path.
	Format string
	// Exporter overrides Format.
	Exporter export.Exporter
	// Exit terminates the process after an interrupt export. Defaults to os.Exit.
	Exit func(code int)
	// Recorder receives a count per built snapshot.
	Recorder metrics.Recorder
	// Verbose logs a summary of every entity before the shutdown build.
	Verbose bool
}

// Trigger coordinates snapshot builds for one registry.
type Trigger struct {
	reg  *registry.Registry
	opts Options

	requests chan os.Signal

	// mu serializes builds and exports with the release of the registry.
	mu     sync.Mutex
	closed bool
}

// New creates a Trigger for reg.
func New(reg *registry.Registry, opts Options) *Trigger {
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoOp{}
	}
	return &Trigger{
		reg:      reg,
		opts:     opts,
		requests: make(chan os.Signal, 1),
	}
}

// Request asks the worker for an interrupt snapshot. It never blocks and
// never locks; it returns false if a request is already pending.
func (t *Trigger) Request(sig os.Signal) bool {
	select {
	case t.requests <- sig:
		return true
	default:
		return false
	}
}

// Watch routes the given signals to the worker. The returned function stops
// the routing.
func (t *Trigger) Watch(sigs ...os.Signal) (stop func()) {
	signal.Notify(t.requests, sigs...)
	return func() { signal.Stop(t.requests) }
}

// Run is the snapshot worker. It waits for one interrupt request, exports,
// and calls Exit with the signal number. It returns when ctx is done or
// after Exit returns.
func (t *Trigger) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Snapshot worker waiting for interrupt.")

	select {
	case <-ctx.Done():
		logger.Debug("Snapshot worker stopped.")
		return nil
	case sig := <-t.requests:
		code := exitCode(sig)
		logger.Info("Interrupt received, exporting ancestry graph.", "signal", sig, "exit_code", code)
		t.mu.Lock()
		if t.closed {
			logger.Info("Registry already released by shutdown, skipping interrupt export.")
		} else if _, err := t.snapshot(ctx, ReasonInterrupt); err != nil {
			logger.Error("Interrupt export failed.", "error", err)
		}
		t.mu.Unlock()
		t.opts.Exit(code)
		return nil
	}
}

// Snapshot builds a graph from the registry's current contents and exports
// it. It does not wait for in-flight registrations.
func (t *Trigger) Snapshot(ctx context.Context, reason string) (*graph.Graph, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	return t.snapshot(ctx, reason)
}

func (t *Trigger) snapshot(ctx context.Context, reason string) (*graph.Graph, error) {
	logger := ctxlog.FromContext(ctx)

	g := graph.Build(ctx, t.reg)
	t.opts.Recorder.RecordSnapshot(reason, g.Len(), len(g.Edges))
	logger.Info("Ancestry graph built.", "reason", reason, "snapshot_id", g.ID.String(), "vertices", g.Len(), "edges", len(g.Edges))

	if err := t.export(ctx, g); err != nil {
		return g, err
	}
	return g, nil
}

// Shutdown exports the final graph and releases the registry. It must only
// be called after the event source has stopped.
func (t *Trigger) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	logger := ctxlog.FromContext(ctx)

	if t.opts.Verbose {
		logSummary(logger, t.reg.Snapshot())
	}

	_, err := t.snapshot(ctx, ReasonShutdown)
	t.reg.Release()
	logger.Debug("Registry released.")
	return err
}

func (t *Trigger) export(ctx context.Context, g *graph.Graph) error {
	path := config.ResolveOutputPath(t.opts.OutputPath)
	exporter := t.opts.Exporter
	if exporter == nil {
		var err error
		exporter, err = export.ForFormat(t.opts.Format, path)
		if err != nil {
			return err
		}
	}
	if err := exporter.Export(ctx, g, path); err != nil {
		return fmt.Errorf("failed to export snapshot %s: %w", g.ID, err)
	}
	ctxlog.FromContext(ctx).Info("Ancestry graph exported.", "path", path)
	return nil
}

func logSummary(logger *slog.Logger, snap registry.Snapshot) {
	for _, task := range snap.Tasks {
		logger.Debug("Task summary.", "task", task.String(), "children", len(task.Children()))
	}
	for _, region := range snap.Regions {
		logger.Debug("Parallel region summary.", "region", region.String())
	}
}

// exitCode maps a signal to the process exit status.
func exitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 1
}
