package graph

import (
	"github.com/vk/taskancestry/internal/registry"
)

// addEdges links every region and every non-initial task to its parent.
func (b *builder) addEdges(snap registry.Snapshot) {
	for _, pr := range snap.Regions {
		b.link(pr.ParentTaskID, pr.ID)
	}
	for _, t := range snap.Tasks {
		if t.IsInitial() {
			continue
		}
		b.link(t.ParentID, t.ID)
	}
}

// link adds parent->child when both have vertices. A missing parent means it
// was not registered when the snapshot was taken; the edge is omitted. An
// entity recorded as its own parent gets a self-loop, which DetectCycles
// reports.
func (b *builder) link(parentID, childID uint64) {
	b.indexMu.Lock()
	defer b.indexMu.Unlock()
	parent, parentOK := b.index[parentID]
	child, childOK := b.index[childID]
	if !parentOK || !childOK {
		return
	}

	b.graphMu.Lock()
	defer b.graphMu.Unlock()
	b.graph.Edges = append(b.graph.Edges, Edge{Parent: parent, Child: child})
}
