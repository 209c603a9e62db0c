package collector

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/entity"
	"github.com/vk/taskancestry/internal/event"
	"github.com/vk/taskancestry/internal/graph"
	"github.com/vk/taskancestry/internal/metrics"
	"github.com/vk/taskancestry/internal/registry"
	"github.com/vk/taskancestry/internal/testutil"
)

func dispatchAll(t *testing.T, c *Collector, events []event.Event) {
	t.Helper()
	for i, ev := range events {
		require.True(t, c.Dispatch(context.Background(), ev), "event %d (%s) had no effect", i, ev.Kind)
	}
}

func TestDispatch_DiamondScenario(t *testing.T) {
	reg := registry.New()
	c := New(reg, Options{})
	dispatchAll(t, c, testutil.DiamondEvents())

	regions, tasks := reg.Len()
	assert.Equal(t, 1, regions)
	assert.Equal(t, 7, tasks)

	initial, ok := reg.InitialTaskID()
	require.True(t, ok)
	assert.Equal(t, testutil.DiamondT0, initial)

	region, ok := reg.LookupRegion(testutil.DiamondRegion)
	require.True(t, ok)
	assert.ElementsMatch(t, []uint64{testutil.DiamondI0, testutil.DiamondI1}, region.Children())
	assert.Equal(t, uint32(2), region.RequestedTeamSize)

	i0, ok := reg.LookupTask(testutil.DiamondI0)
	require.True(t, ok)
	assert.Equal(t, entity.Implicit, i0.Kind)
	assert.Equal(t, entity.Completed, i0.Status(), "implicit task end marks completion")
	assert.Equal(t, []uint64{testutil.DiamondEx, testutil.DiamondEy, testutil.DiamondEz, testutil.DiamondEfinal}, i0.Children())

	efinal, ok := reg.LookupTask(testutil.DiamondEfinal)
	require.True(t, ok)
	assert.Equal(t, entity.Completed, efinal.Status())
	assert.Equal(t, uintptr(0x401400), efinal.CodeLocation)

	g := graph.Build(context.Background(), reg)
	assert.Len(t, g.Edges, len(testutil.DiamondEdges))
	for _, e := range testutil.DiamondEdges {
		assert.True(t, g.HasEdge(e[0], e[1]), "missing edge %d->%d", e[0], e[1])
	}
	assert.False(t, g.HasEdge(testutil.DiamondEx, testutil.DiamondEfinal), "data dependence is not ancestry")
	assert.True(t, g.IsForest())

	assert.Equal(t, Stats{RegionEnds: 1}, c.Stats())
}

func TestDispatch_ExtendedAncestry(t *testing.T) {
	c := New(registry.New(), Options{ExtendedAncestry: true})
	require.NotNil(t, c.Index())
	dispatchAll(t, c, testutil.DiamondEvents())

	assert.Equal(t, []uint64{testutil.DiamondI0, testutil.DiamondRegion, testutil.DiamondT0}, c.Index().Ancestors(testutil.DiamondEfinal))
	assert.Equal(t, []uint64{testutil.DiamondRegion}, c.Index().ChildRegions(testutil.DiamondT0))
	assert.ElementsMatch(t, []uint64{testutil.DiamondI0, testutil.DiamondI1}, c.Index().Team(testutil.DiamondRegion))
}

func TestDispatch_ExtendedAncestryDisabled(t *testing.T) {
	c := New(registry.New(), Options{})
	assert.Nil(t, c.Index())
}

func TestDispatch_DuplicateHasNoEffect(t *testing.T) {
	reg := registry.New()
	c := New(reg, Options{ExtendedAncestry: true})

	require.True(t, c.OnExplicitTaskCreate(1, 0, true, 0))
	require.True(t, c.OnExplicitTaskCreate(5, 1, false, 0x10))
	assert.False(t, c.OnExplicitTaskCreate(5, 9, false, 0x20))

	task, _ := reg.LookupTask(5)
	assert.Equal(t, uint64(1), task.ParentID)
	assert.Equal(t, uintptr(0x10), task.CodeLocation)
	parent, _ := c.Index().ParentTask(5)
	assert.Equal(t, uint64(1), parent)
	assert.Equal(t, uint64(1), reg.Stats().Duplicates)
}

func TestDispatch_UnknownReferences(t *testing.T) {
	reg := registry.New()
	c := New(reg, Options{})
	ctx := context.Background()

	assert.False(t, c.Dispatch(ctx, event.TaskComplete(0, 42)))
	assert.False(t, c.Dispatch(ctx, event.ImplicitTaskEnd(0, 42)))
	assert.False(t, c.Dispatch(ctx, event.Event{Kind: event.KindRegionEnd, RegionID: 42}))

	// An implicit task whose region is unknown is still registered.
	assert.True(t, c.Dispatch(ctx, event.ImplicitTaskBegin(0, 7, 99)))
	_, ok := reg.LookupTask(7)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), reg.Stats().UnknownRefs)
}

func TestDispatch_UnrecognizedEventsAreIgnored(t *testing.T) {
	promReg := prometheus.NewRegistry()
	rec, err := metrics.NewExporter("test", promReg)
	require.NoError(t, err)

	var buf testutil.SafeBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	reg := registry.New()
	c := New(reg, Options{Recorder: rec, VerboseDiagnostics: true})

	assert.False(t, c.Dispatch(ctx, event.Event{Kind: "task_schedule", TaskID: 1}))
	assert.False(t, c.Dispatch(ctx, event.Event{Kind: event.KindImplicitTask, Endpoint: "middle", TaskID: 2, RegionID: 3}))
	assert.False(t, c.OnImplicitTask("middle", 2, 3, 0))

	regions, tasks := reg.Len()
	assert.Zero(t, regions+tasks)
	assert.Equal(t, uint64(3), c.Stats().Unrecognized)
	count, err := promtest.GatherAndCount(promReg, "test_unrecognized_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Contains(t, buf.String(), "Unrecognized event ignored.")
	assert.Contains(t, buf.String(), "endpoint=middle")
}

func TestDispatch_ConcurrentThreads(t *testing.T) {
	const threads = 16
	const perThread = 200

	reg := registry.New()
	c := New(reg, Options{ExtendedAncestry: true})
	ctx := context.Background()

	require.True(t, c.OnExplicitTaskCreate(1, 0, true, 0))
	require.True(t, c.OnRegionBegin(2, 1, threads, 0))

	var wg sync.WaitGroup
	for th := uint32(0); th < threads; th++ {
		wg.Add(1)
		go func(th uint32) {
			defer wg.Done()
			implicit := uint64(1000 + th)
			c.Dispatch(ctx, event.ImplicitTaskBegin(th, implicit, 2))
			for i := uint64(0); i < perThread; i++ {
				id := 10000*(uint64(th)+1) + i
				c.Dispatch(ctx, event.TaskCreate(th, id, implicit, false, 0))
				c.Dispatch(ctx, event.TaskComplete(th, id))
			}
			c.Dispatch(ctx, event.ImplicitTaskEnd(th, implicit))
		}(th)
	}
	wg.Wait()

	regions, tasks := reg.Len()
	assert.Equal(t, 1, regions)
	assert.Equal(t, 1+threads+threads*perThread, tasks)

	g := graph.Build(ctx, reg)
	assert.Equal(t, 1+tasks, g.Len())
	assert.Len(t, g.Edges, g.Len()-1)
	assert.True(t, g.IsForest())

	region, _ := reg.LookupRegion(2)
	assert.Len(t, region.Children(), threads)
	assert.Len(t, c.Index().Team(2), threads)
}
