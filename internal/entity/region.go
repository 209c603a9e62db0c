package entity

import (
	"fmt"
	"sync"
)

// ParallelRegion is a runtime construct that spawns a team of implicit tasks.
type ParallelRegion struct {
	ID uint64
	// ParentTaskID is the task that encountered the parallel construct.
	ParentTaskID      uint64
	RequestedTeamSize uint32
	CodeLocation      uintptr

	mu       sync.Mutex
	children []uint64
}

// NewParallelRegion creates a region with an empty team.
func NewParallelRegion(id, parentTaskID uint64, teamSize uint32, codeLocation uintptr) *ParallelRegion {
	return &ParallelRegion{
		ID:                id,
		ParentTaskID:      parentTaskID,
		RequestedTeamSize: teamSize,
		CodeLocation:      codeLocation,
	}
}

// AddChild records an implicit task as a member of this region's team.
func (r *ParallelRegion) AddChild(taskID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children = append(r.children, taskID)
}

// Children returns a copy of the implicit task ids, in the order they were linked.
func (r *ParallelRegion) Children() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.children))
	copy(out, r.children)
	return out
}

func (r *ParallelRegion) String() string {
	return fmt.Sprintf("region %d (parent=%d, team=%d, children=%d, codeptr=%#x)",
		r.ID, r.ParentTaskID, r.RequestedTeamSize, len(r.Children()), r.CodeLocation)
}
