// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"github.com/vk/taskancestry/internal/entity"
	"github.com/vk/taskancestry/internal/event"
	"github.com/vk/taskancestry/internal/registry"
)

// Entity ids of the diamond scenario: the initial task opens a parallel
// region with a team of two, and the first implicit task creates four
// explicit tasks that share a data dependence but not an ancestry link.
const (
	DiamondT0     uint64 = 1
	DiamondRegion uint64 = 2
	DiamondI0     uint64 = 3
	DiamondI1     uint64 = 4
	DiamondEx     uint64 = 5
	DiamondEy     uint64 = 6
	DiamondEz     uint64 = 7
	DiamondEfinal uint64 = 8
)

// DiamondEdges lists the expected parent->child entity pairs.
var DiamondEdges = [][2]uint64{
	{DiamondT0, DiamondRegion},
	{DiamondRegion, DiamondI0},
	{DiamondRegion, DiamondI1},
	{DiamondI0, DiamondEx},
	{DiamondI0, DiamondEy},
	{DiamondI0, DiamondEz},
	{DiamondI0, DiamondEfinal},
}

// DiamondEvents returns the event stream the runtime reports for the diamond
// program, in per-thread order.
func DiamondEvents() []event.Event {
	return []event.Event{
		event.TaskCreate(0, DiamondT0, 0, true, 0),
		event.RegionBegin(0, DiamondRegion, DiamondT0, 2, 0x401000),
		event.ImplicitTaskBegin(0, DiamondI0, DiamondRegion),
		event.ImplicitTaskBegin(1, DiamondI1, DiamondRegion),
		event.TaskCreate(0, DiamondEx, DiamondI0, false, 0x401100),
		event.TaskCreate(0, DiamondEy, DiamondI0, false, 0x401200),
		event.TaskCreate(0, DiamondEz, DiamondI0, false, 0x401300),
		event.TaskCreate(0, DiamondEfinal, DiamondI0, false, 0x401400),
		event.TaskComplete(1, DiamondEx),
		event.TaskComplete(1, DiamondEy),
		event.TaskComplete(0, DiamondEz),
		event.TaskComplete(0, DiamondEfinal),
		event.ImplicitTaskEnd(1, DiamondI1),
		event.ImplicitTaskEnd(0, DiamondI0),
		{Kind: event.KindRegionEnd, RegionID: DiamondRegion},
	}
}

// RegisterDiamond fills reg with the diamond entities directly.
func RegisterDiamond(reg *registry.Registry) {
	reg.RegisterTask(entity.NewTask(DiamondT0, 0, entity.Initial, 0))
	reg.RegisterRegion(entity.NewParallelRegion(DiamondRegion, DiamondT0, 2, 0x401000))
	reg.RegisterTask(entity.NewTask(DiamondI0, DiamondRegion, entity.Implicit, 0))
	reg.RegisterTask(entity.NewTask(DiamondI1, DiamondRegion, entity.Implicit, 0))
	reg.LinkTaskToRegion(DiamondRegion, DiamondI0)
	reg.LinkTaskToRegion(DiamondRegion, DiamondI1)
	for i, id := range []uint64{DiamondEx, DiamondEy, DiamondEz, DiamondEfinal} {
		reg.RegisterTask(entity.NewTask(id, DiamondI0, entity.Explicit, uintptr(0x401100+0x100*i)))
	}
}
