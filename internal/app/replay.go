package app

import (
	"context"

	"github.com/vk/taskancestry/internal/event"
)

// replayPlan orders a trace for concurrent replay. Each event waits for the
// earlier events that create the region or task it refers to, so workers
// handling different threads reproduce the effect of a sequential replay.
type replayPlan struct {
	// created[i] is closed once event i is applied. It is nil for events
	// that create nothing.
	created []chan struct{}
	// deps[i] lists the trace positions event i waits for. Every entry is
	// smaller than i.
	deps [][]int
}

func planReplay(events []event.Event) *replayPlan {
	p := &replayPlan{
		created: make([]chan struct{}, len(events)),
		deps:    make([][]int, len(events)),
	}
	regions := make(map[uint64]int)
	tasks := make(map[uint64]int)

	dependOn := func(i int, creators map[uint64]int, id uint64) {
		if c, ok := creators[id]; ok {
			p.deps[i] = append(p.deps[i], c)
		}
	}
	// A repeated creation waits for the first one so first-wins holds.
	create := func(i int, creators map[uint64]int, id uint64) {
		if c, ok := creators[id]; ok {
			p.deps[i] = append(p.deps[i], c)
			return
		}
		creators[id] = i
		p.created[i] = make(chan struct{})
	}

	for i, ev := range events {
		switch ev.Kind {
		case event.KindRegionBegin:
			dependOn(i, tasks, ev.ParentTaskID)
			create(i, regions, ev.RegionID)
		case event.KindRegionEnd:
			dependOn(i, regions, ev.RegionID)
		case event.KindImplicitTask:
			switch ev.Endpoint {
			case event.Begin:
				dependOn(i, regions, ev.RegionID)
				create(i, tasks, ev.TaskID)
			case event.End:
				dependOn(i, tasks, ev.TaskID)
			}
		case event.KindTaskCreate:
			if !ev.Initial {
				dependOn(i, tasks, ev.ParentTaskID)
			}
			create(i, tasks, ev.TaskID)
		case event.KindTaskComplete:
			dependOn(i, tasks, ev.TaskID)
		}
	}
	return p
}

// wait blocks until every dependency of event i has been applied.
func (p *replayPlan) wait(ctx context.Context, i int) error {
	for _, d := range p.deps[i] {
		select {
		case <-p.created[d]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// done marks event i as applied.
func (p *replayPlan) done(i int) {
	if ch := p.created[i]; ch != nil {
		close(ch)
	}
}
