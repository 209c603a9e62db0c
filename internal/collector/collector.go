package collector

import (
	"context"
	"sync/atomic"

	"github.com/vk/taskancestry/internal/ancestry"
	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/entity"
	"github.com/vk/taskancestry/internal/event"
	"github.com/vk/taskancestry/internal/metrics"
	"github.com/vk/taskancestry/internal/registry"
)

// Options configures a Collector.
type Options struct {
	// ExtendedAncestry maintains an ancestry.Index next to the registry.
	ExtendedAncestry bool
	// VerboseDiagnostics logs every ignored event at debug level.
	VerboseDiagnostics bool
	Recorder           metrics.Recorder
}

// Collector is safe for concurrent use by any number of event sources.
type Collector struct {
	reg      *registry.Registry
	index    *ancestry.Index
	recorder metrics.Recorder
	verbose  bool

	regionEnds   atomic.Uint64
	unrecognized atomic.Uint64
}

// New creates a Collector writing into reg.
func New(reg *registry.Registry, opts Options) *Collector {
	c := &Collector{
		reg:      reg,
		recorder: opts.Recorder,
		verbose:  opts.VerboseDiagnostics,
	}
	if c.recorder == nil {
		c.recorder = metrics.NoOp{}
	}
	if opts.ExtendedAncestry {
		c.index = ancestry.New()
	}
	return c
}

// Registry returns the registry the collector writes into.
func (c *Collector) Registry() *registry.Registry { return c.reg }

// Index returns the extended ancestry index, or nil when it is disabled.
func (c *Collector) Index() *ancestry.Index { return c.index }

// Stats holds the collector's own diagnostic counts.
type Stats struct {
	RegionEnds   uint64
	Unrecognized uint64
}

// Stats returns the counts accumulated so far.
func (c *Collector) Stats() Stats {
	return Stats{
		RegionEnds:   c.regionEnds.Load(),
		Unrecognized: c.unrecognized.Load(),
	}
}

// OnRegionBegin registers a parallel region encountered by parentTaskID.
func (c *Collector) OnRegionBegin(regionID, parentTaskID uint64, teamSize uint32, codeLocation uintptr) bool {
	inserted := c.reg.RegisterRegion(entity.NewParallelRegion(regionID, parentTaskID, teamSize, codeLocation))
	if inserted && c.index != nil {
		c.index.RecordRegion(parentTaskID, regionID)
	}
	return inserted
}

// OnRegionEnd is accepted and counted. Regions stay registered until the
// registry is released.
func (c *Collector) OnRegionEnd(regionID uint64) bool {
	c.regionEnds.Add(1)
	_, ok := c.reg.LookupRegion(regionID)
	return ok
}

// OnImplicitTask routes the combined implicit-task callback by endpoint. An
// endpoint other than begin or end is counted, ignored and reported false.
func (c *Collector) OnImplicitTask(endpoint event.Endpoint, taskID, regionID uint64, threadNum uint32) bool {
	switch endpoint {
	case event.Begin:
		return c.OnImplicitTaskBegin(taskID, regionID, threadNum)
	case event.End:
		return c.OnImplicitTaskEnd(taskID)
	default:
		c.countUnrecognized(event.KindImplicitTask)
		return false
	}
}

// OnImplicitTaskBegin registers an implicit task and adds it to the team of
// regionID.
func (c *Collector) OnImplicitTaskBegin(taskID, regionID uint64, threadNum uint32) bool {
	inserted := c.reg.RegisterTask(entity.NewTask(taskID, regionID, entity.Implicit, 0))
	if !inserted {
		return false
	}
	c.reg.LinkTaskToRegion(regionID, taskID)
	if c.index != nil {
		c.index.RecordImplicitTask(regionID, taskID)
	}
	return true
}

// OnImplicitTaskEnd marks the implicit task Completed.
func (c *Collector) OnImplicitTaskEnd(taskID uint64) bool {
	return c.reg.CompleteTask(taskID)
}

// OnExplicitTaskCreate registers an explicit task, or the initial task when
// isInitial is set.
func (c *Collector) OnExplicitTaskCreate(taskID, parentTaskID uint64, isInitial bool, codeLocation uintptr) bool {
	kind := entity.Explicit
	if isInitial {
		kind = entity.Initial
	}
	inserted := c.reg.RegisterTask(entity.NewTask(taskID, parentTaskID, kind, codeLocation))
	if !inserted || isInitial {
		return inserted
	}
	c.reg.LinkTaskToTask(parentTaskID, taskID)
	if c.index != nil {
		c.index.RecordTask(parentTaskID, taskID)
	}
	return true
}

// OnTaskComplete marks the task Completed if it is known.
func (c *Collector) OnTaskComplete(taskID uint64) bool {
	return c.reg.CompleteTask(taskID)
}

// Dispatch applies one event. It reports false when the event had no effect,
// either because the registry ignored it or because the event is not
// recognized. Unrecognized events are counted and never fail.
func (c *Collector) Dispatch(ctx context.Context, ev event.Event) bool {
	switch ev.Kind {
	case event.KindRegionBegin:
		return c.OnRegionBegin(ev.RegionID, ev.ParentTaskID, ev.TeamSize, uintptr(ev.CodeLocation))
	case event.KindRegionEnd:
		return c.OnRegionEnd(ev.RegionID)
	case event.KindImplicitTask:
		if ev.Endpoint != event.Begin && ev.Endpoint != event.End {
			c.ignore(ctx, ev)
			return false
		}
		return c.OnImplicitTask(ev.Endpoint, ev.TaskID, ev.RegionID, ev.Thread)
	case event.KindTaskCreate:
		return c.OnExplicitTaskCreate(ev.TaskID, ev.ParentTaskID, ev.Initial, uintptr(ev.CodeLocation))
	case event.KindTaskComplete:
		return c.OnTaskComplete(ev.TaskID)
	default:
		c.ignore(ctx, ev)
		return false
	}
}

func (c *Collector) ignore(ctx context.Context, ev event.Event) {
	c.countUnrecognized(ev.Kind)
	if c.verbose {
		ctxlog.FromContext(ctx).Debug("Unrecognized event ignored.", "kind", ev.Kind, "endpoint", ev.Endpoint, "task_id", ev.TaskID)
	}
}

func (c *Collector) countUnrecognized(kind event.Kind) {
	c.unrecognized.Add(1)
	c.recorder.RecordUnrecognizedEvent(string(kind))
}
