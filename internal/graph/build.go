package graph

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/registry"
)

// Build takes a snapshot of reg and constructs a fresh ancestry graph from
// it. The registry is not modified.
func Build(ctx context.Context, reg *registry.Registry) *Graph {
	return BuildFromSnapshot(ctx, reg.Snapshot())
}

// BuildFromSnapshot constructs an ancestry graph from an already captured snapshot.
func BuildFromSnapshot(ctx context.Context, snap registry.Snapshot) *Graph {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.", "regions", len(snap.Regions), "tasks", len(snap.Tasks))

	b := newBuilder(len(snap.Regions) + len(snap.Tasks))

	// First pass: create all vertices.
	b.addVertices(snap)
	logger.Debug("Build: Vertex creation complete.", "vertex_count", len(b.graph.Vertices))

	// Second pass: link children to parents.
	b.addEdges(snap)
	logger.Debug("Build: Edge creation complete.", "edge_count", len(b.graph.Edges))

	g := b.graph
	g.index = b.index
	g.finalize()
	return g
}

func newBuilder(size int) *builder {
	return &builder{
		index: make(map[uint64]int, size),
		graph: &Graph{
			ID:       newGraphID(),
			TakenAt:  time.Now(),
			Vertices: make([]Vertex, 0, size),
		},
	}
}

func newGraphID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
