package graph

import (
	"cmp"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vk/taskancestry/internal/entity"
	"github.com/vk/taskancestry/internal/registry"
)

// builder holds the in-progress graph. indexMu is always taken before
// graphMu.
type builder struct {
	indexMu sync.Mutex
	index   map[uint64]int

	graphMu sync.Mutex
	graph   *Graph
}

// addVertices creates one vertex per entity, then orders the vertices by
// entity id so repeated builds of the same data are identical.
func (b *builder) addVertices(snap registry.Snapshot) {
	var eg errgroup.Group
	eg.Go(func() error {
		for _, pr := range snap.Regions {
			b.addRegionVertex(pr)
		}
		return nil
	})
	eg.Go(func() error {
		for _, t := range snap.Tasks {
			b.addTaskVertex(t)
		}
		return nil
	})
	// Neither goroutine fails; Wait only joins them.
	_ = eg.Wait()

	b.indexMu.Lock()
	defer b.indexMu.Unlock()
	b.graphMu.Lock()
	defer b.graphMu.Unlock()

	slices.SortFunc(b.graph.Vertices, func(x, y Vertex) int { return cmp.Compare(x.EntityID, y.EntityID) })
	for i, v := range b.graph.Vertices {
		b.index[v.EntityID] = i
	}
}

func (b *builder) addRegionVertex(pr *entity.ParallelRegion) {
	color, shape := presentation(ParallelRegion)
	b.addVertex(Vertex{
		EntityID:     pr.ID,
		Kind:         ParallelRegion,
		CodeLocation: pr.CodeLocation,
		Color:        color,
		Shape:        shape,
		Status:       entity.Created,
	})
}

func (b *builder) addTaskVertex(t *entity.Task) {
	kind := taskVertexKind(t)
	color, shape := presentation(kind)
	b.addVertex(Vertex{
		EntityID:     t.ID,
		Kind:         kind,
		CodeLocation: t.CodeLocation,
		Color:        color,
		Shape:        shape,
		Status:       t.Status(),
	})
}

// addVertex appends v unless its entity already has a vertex.
func (b *builder) addVertex(v Vertex) {
	b.indexMu.Lock()
	defer b.indexMu.Unlock()
	b.graphMu.Lock()
	defer b.graphMu.Unlock()

	if _, exists := b.index[v.EntityID]; exists {
		return
	}
	b.graph.Vertices = append(b.graph.Vertices, v)
	b.index[v.EntityID] = len(b.graph.Vertices) - 1
}
