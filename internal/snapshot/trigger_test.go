package snapshot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskancestry/internal/config"
	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/entity"
	"github.com/vk/taskancestry/internal/graph"
	"github.com/vk/taskancestry/internal/registry"
	"github.com/vk/taskancestry/internal/testutil"
)

// captureExporter records every exported graph.
type captureExporter struct {
	mu     sync.Mutex
	graphs []*graph.Graph
	paths  []string
	err    error
}

func (c *captureExporter) Export(_ context.Context, g *graph.Graph, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graphs = append(c.graphs, g)
	c.paths = append(c.paths, path)
	return c.err
}

func (c *captureExporter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.graphs)
}

// exitRecorder stands in for os.Exit.
type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func (e *exitRecorder) get() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

func TestRequest_NonBlocking(t *testing.T) {
	trig := New(registry.New(), Options{Exporter: &captureExporter{}})

	assert.True(t, trig.Request(syscall.SIGINT))
	assert.False(t, trig.Request(syscall.SIGINT), "second pending request is dropped")
}

func TestRun_InterruptExportsAndExits(t *testing.T) {
	reg := registry.New()
	testutil.RegisterDiamond(reg)
	exporter := &captureExporter{}
	exits := &exitRecorder{}
	trig := New(reg, Options{OutputPath: "out.dot", Exporter: exporter, Exit: exits.exit})

	done := make(chan error, 1)
	go func() { done <- trig.Run(context.Background()) }()

	require.True(t, trig.Request(syscall.SIGINT))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot worker did not finish")
	}

	require.Equal(t, 1, exporter.count())
	assert.Equal(t, 8, exporter.graphs[0].Len())
	assert.Equal(t, "out.dot", exporter.paths[0])
	assert.Equal(t, []int{int(syscall.SIGINT)}, exits.get())
}

func TestRun_InterruptWhileRegistering(t *testing.T) {
	reg := registry.New()
	reg.RegisterTask(entity.NewTask(1, 0, entity.Initial, 0))
	exporter := &captureExporter{}
	exits := &exitRecorder{}
	trig := New(reg, Options{Exporter: exporter, Exit: exits.exit})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for id := uint64(2); ; id += 2 {
			select {
			case <-stop:
				return
			default:
			}
			reg.RegisterRegion(entity.NewParallelRegion(id, 1, 1, 0))
			reg.RegisterTask(entity.NewTask(id+1, id, entity.Implicit, 0))
		}
	}()

	done := make(chan error, 1)
	go func() { done <- trig.Run(context.Background()) }()
	trig.Request(syscall.SIGTERM)
	require.NoError(t, <-done)
	close(stop)
	wg.Wait()

	require.Equal(t, 1, exporter.count())
	g := exporter.graphs[0]
	require.NoError(t, g.Validate())
	assert.True(t, g.IsForest())
	assert.Equal(t, []int{int(syscall.SIGTERM)}, exits.get())
}

func TestRun_ContextCancelled(t *testing.T) {
	exits := &exitRecorder{}
	trig := New(registry.New(), Options{Exporter: &captureExporter{}, Exit: exits.exit})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, trig.Run(ctx))
	assert.Empty(t, exits.get())
}

func TestRun_ExportFailureStillExits(t *testing.T) {
	exporter := &captureExporter{err: errors.New("disk full")}
	exits := &exitRecorder{}
	trig := New(registry.New(), Options{Exporter: exporter, Exit: exits.exit})

	trig.Request(syscall.SIGINT)
	require.NoError(t, trig.Run(context.Background()))
	assert.Equal(t, []int{int(syscall.SIGINT)}, exits.get())
}

func TestShutdown_ExportsThenReleases(t *testing.T) {
	reg := registry.New()
	testutil.RegisterDiamond(reg)
	exporter := &captureExporter{}
	trig := New(reg, Options{Exporter: exporter})

	require.NoError(t, trig.Shutdown(context.Background()))

	require.Equal(t, 1, exporter.count())
	assert.Equal(t, 8, exporter.graphs[0].Len())
	assert.Len(t, exporter.graphs[0].Edges, len(testutil.DiamondEdges))
	regions, tasks := reg.Len()
	assert.Zero(t, regions+tasks)

	assert.ErrorIs(t, trig.Shutdown(context.Background()), ErrClosed)
	assert.Equal(t, 1, exporter.count())
}

func TestShutdown_VerboseSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	reg := registry.New()
	testutil.RegisterDiamond(reg)
	trig := New(reg, Options{Exporter: &captureExporter{}, Verbose: true})
	require.NoError(t, trig.Shutdown(ctx))

	out := buf.String()
	assert.Contains(t, out, "Task summary.")
	assert.Contains(t, out, "Parallel region summary.")
	assert.Contains(t, out, "Ancestry graph exported.")
}

func TestInterruptAfterShutdown_SkipsExport(t *testing.T) {
	reg := registry.New()
	testutil.RegisterDiamond(reg)
	exporter := &captureExporter{}
	exits := &exitRecorder{}
	trig := New(reg, Options{Exporter: exporter, Exit: exits.exit})

	require.NoError(t, trig.Shutdown(context.Background()))
	trig.Request(syscall.SIGINT)
	require.NoError(t, trig.Run(context.Background()))

	assert.Equal(t, 1, exporter.count(), "interrupt must not overwrite the shutdown export")
	assert.Equal(t, []int{int(syscall.SIGINT)}, exits.get())
}

func TestSnapshot_IndependentBuilds(t *testing.T) {
	reg := registry.New()
	testutil.RegisterDiamond(reg)
	exporter := &captureExporter{}
	trig := New(reg, Options{Exporter: exporter})

	first, err := trig.Snapshot(context.Background(), ReasonRequest)
	require.NoError(t, err)
	second, err := trig.Snapshot(context.Background(), ReasonRequest)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, exporter.count())
	regions, tasks := reg.Len()
	assert.Equal(t, 8, regions+tasks, "live snapshots keep the registry")
}

func TestSnapshot_ConcurrentWithShutdown(t *testing.T) {
	reg := registry.New()
	testutil.RegisterDiamond(reg)
	exporter := &captureExporter{}
	trig := New(reg, Options{Exporter: exporter})

	var wg sync.WaitGroup
	var live atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := trig.Snapshot(context.Background(), ReasonRequest)
			if errors.Is(err, ErrClosed) {
				return
			}
			assert.NoError(t, err)
			assert.NoError(t, g.Validate())
			live.Add(1)
		}()
	}
	require.NoError(t, trig.Shutdown(context.Background()))
	wg.Wait()

	assert.Equal(t, int(live.Load())+1, exporter.count())
	for _, g := range exporter.graphs {
		assert.Equal(t, 8, g.Len(), "no export observes a released registry")
	}

	_, err := trig.Snapshot(context.Background(), ReasonRequest)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRun_InterruptRacingShutdown(t *testing.T) {
	for range 50 {
		reg := registry.New()
		testutil.RegisterDiamond(reg)
		exporter := &captureExporter{}
		exits := &exitRecorder{}
		trig := New(reg, Options{Exporter: exporter, Exit: exits.exit})

		require.True(t, trig.Request(syscall.SIGTERM))
		done := make(chan error, 1)
		go func() { done <- trig.Run(context.Background()) }()
		require.NoError(t, trig.Shutdown(context.Background()))
		require.NoError(t, <-done)

		assert.Equal(t, []int{int(syscall.SIGTERM)}, exits.get())
		exporter.mu.Lock()
		assert.NotEmpty(t, exporter.graphs)
		for _, g := range exporter.graphs {
			assert.Equal(t, 8, g.Len(), "interrupt export ran after release")
		}
		exporter.mu.Unlock()
	}
}

func TestSnapshot_WritesDefaultFormatToEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.dot")
	t.Setenv(config.EnvOutputPath, path)

	reg := registry.New()
	testutil.RegisterDiamond(reg)
	trig := New(reg, Options{})

	_, err := trig.Snapshot(context.Background(), ReasonRequest)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "digraph G {")
}

func TestSnapshot_UnknownFormat(t *testing.T) {
	trig := New(registry.New(), Options{OutputPath: filepath.Join(t.TempDir(), "x"), Format: "svg"})
	_, err := trig.Snapshot(context.Background(), ReasonRequest)
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(syscall.SIGINT))
	assert.Equal(t, 15, exitCode(syscall.SIGTERM))
	assert.Equal(t, 1, exitCode(namedSignal("custom")))
}

type namedSignal string

func (s namedSignal) String() string { return string(s) }
func (namedSignal) Signal()          {}
