// Package ancestry maintains redundant parent/child indices so ancestry
// questions can be answered without building a graph.
//
// The index is optional. The collector only feeds it when the
// extended_ancestry option is on, and graph building never reads it.
package ancestry

import "sync"

// Index holds six independently locked mappings. Single-valued mappings keep
// the first value recorded for a key; list-valued mappings only append.
type Index struct {
	taskParentMu sync.RWMutex
	taskParent   map[uint64]uint64 // task -> parent task

	taskChildrenMu sync.RWMutex
	taskChildren   map[uint64][]uint64 // parent task -> child tasks

	taskRegionsMu sync.RWMutex
	taskRegions   map[uint64][]uint64 // parent task -> child regions

	regionParentMu sync.RWMutex
	regionParent   map[uint64]uint64 // region -> parent task

	implicitRegionMu sync.RWMutex
	implicitRegion   map[uint64]uint64 // implicit task -> enclosing region

	regionTeamMu sync.RWMutex
	regionTeam   map[uint64][]uint64 // region -> implicit tasks
}

// New creates an empty index.
func New() *Index {
	return &Index{
		taskParent:     make(map[uint64]uint64),
		taskChildren:   make(map[uint64][]uint64),
		taskRegions:    make(map[uint64][]uint64),
		regionParent:   make(map[uint64]uint64),
		implicitRegion: make(map[uint64]uint64),
		regionTeam:     make(map[uint64][]uint64),
	}
}

// RecordTask links an explicit task to the task that created it. It returns
// false if childID already had a parent.
func (x *Index) RecordTask(parentID, childID uint64) bool {
	if !putOnce(&x.taskParentMu, x.taskParent, childID, parentID) {
		return false
	}
	appendTo(&x.taskChildrenMu, x.taskChildren, parentID, childID)
	return true
}

// RecordRegion links a parallel region to the task that encountered it. It
// returns false if regionID already had a parent.
func (x *Index) RecordRegion(parentTaskID, regionID uint64) bool {
	if !putOnce(&x.regionParentMu, x.regionParent, regionID, parentTaskID) {
		return false
	}
	appendTo(&x.taskRegionsMu, x.taskRegions, parentTaskID, regionID)
	return true
}

// RecordImplicitTask links an implicit task to its region. It returns false
// if taskID was already linked.
func (x *Index) RecordImplicitTask(regionID, taskID uint64) bool {
	if !putOnce(&x.implicitRegionMu, x.implicitRegion, taskID, regionID) {
		return false
	}
	appendTo(&x.regionTeamMu, x.regionTeam, regionID, taskID)
	return true
}

// ParentTask returns the task that created the explicit task id.
func (x *Index) ParentTask(id uint64) (uint64, bool) {
	return get(&x.taskParentMu, x.taskParent, id)
}

// ChildTasks returns the explicit tasks created by id, in arrival order.
func (x *Index) ChildTasks(id uint64) []uint64 {
	return list(&x.taskChildrenMu, x.taskChildren, id)
}

// ChildRegions returns the parallel regions encountered by task id.
func (x *Index) ChildRegions(id uint64) []uint64 {
	return list(&x.taskRegionsMu, x.taskRegions, id)
}

// RegionParent returns the task that encountered region id.
func (x *Index) RegionParent(id uint64) (uint64, bool) {
	return get(&x.regionParentMu, x.regionParent, id)
}

// EnclosingRegion returns the region an implicit task belongs to.
func (x *Index) EnclosingRegion(id uint64) (uint64, bool) {
	return get(&x.implicitRegionMu, x.implicitRegion, id)
}

// Team returns the implicit tasks of region id.
func (x *Index) Team(id uint64) []uint64 {
	return list(&x.regionTeamMu, x.regionTeam, id)
}

// Ancestors walks from id towards the root, alternating between task and
// region links, and returns the chain nearest-first. The walk stops at the
// first id with no recorded parent. A cycle in the recorded data ends the
// walk instead of looping.
func (x *Index) Ancestors(id uint64) []uint64 {
	var chain []uint64
	seen := map[uint64]struct{}{id: {}}
	cur := id
	for {
		next, ok := x.ParentTask(cur)
		if !ok {
			next, ok = x.EnclosingRegion(cur)
		}
		if !ok {
			next, ok = x.RegionParent(cur)
		}
		if !ok {
			return chain
		}
		if _, dup := seen[next]; dup {
			return chain
		}
		seen[next] = struct{}{}
		chain = append(chain, next)
		cur = next
	}
}

func putOnce(mu *sync.RWMutex, m map[uint64]uint64, key, value uint64) bool {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := m[key]; exists {
		return false
	}
	m[key] = value
	return true
}

func appendTo(mu *sync.RWMutex, m map[uint64][]uint64, key, value uint64) {
	mu.Lock()
	defer mu.Unlock()
	m[key] = append(m[key], value)
}

func get(mu *sync.RWMutex, m map[uint64]uint64, key uint64) (uint64, bool) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := m[key]
	return v, ok
}

func list(mu *sync.RWMutex, m map[uint64][]uint64, key uint64) []uint64 {
	mu.RLock()
	defer mu.RUnlock()
	src := m[key]
	out := make([]uint64, len(src))
	copy(out, src)
	return out
}
