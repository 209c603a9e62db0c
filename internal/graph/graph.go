package graph

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vk/taskancestry/internal/entity"
)

// VertexKind classifies a vertex for presentation.
type VertexKind int

const (
	ParallelRegion VertexKind = iota
	ExplicitTask
	ImplicitTask
)

// String returns the name used in exported files.
func (k VertexKind) String() string {
	switch k {
	case ParallelRegion:
		return "ParallelRegion"
	case ExplicitTask:
		return "ExplicitTask"
	case ImplicitTask:
		return "ImplicitTask"
	default:
		return fmt.Sprintf("VertexKind(%d)", int(k))
	}
}

// Vertex is a fully populated copy of one entity's display attributes.
type Vertex struct {
	EntityID     uint64
	Kind         VertexKind
	CodeLocation uintptr
	Color        string
	Shape        string
	Status       entity.Status
}

// Edge links a parent vertex to a child vertex by index.
type Edge struct {
	Parent int
	Child  int
}

// Graph is an immutable ancestry graph. Each build produces an independent
// Graph with its own ID.
type Graph struct {
	ID       uuid.UUID
	TakenAt  time.Time
	Vertices []Vertex
	Edges    []Edge

	index    map[uint64]int
	children [][]int
	parents  [][]int
}

// Len returns the number of vertices.
func (g *Graph) Len() int {
	return len(g.Vertices)
}

// Index returns the vertex index of an entity.
func (g *Graph) Index(entityID uint64) (int, bool) {
	v, ok := g.index[entityID]
	return v, ok
}

// Vertex returns the vertex of an entity.
func (g *Graph) Vertex(entityID uint64) (Vertex, bool) {
	v, ok := g.index[entityID]
	if !ok {
		return Vertex{}, false
	}
	return g.Vertices[v], true
}

// Children returns the child vertex indices of v.
func (g *Graph) Children(v int) []int {
	return g.children[v]
}

// Parents returns the parent vertex indices of v. Under quiescence it holds
// at most one element.
func (g *Graph) Parents(v int) []int {
	return g.parents[v]
}

// InDegree returns the number of parent edges of v.
func (g *Graph) InDegree(v int) int {
	return len(g.parents[v])
}

// Roots returns the vertices without a parent edge, in vertex order.
func (g *Graph) Roots() []int {
	var roots []int
	for v := range g.Vertices {
		if len(g.parents[v]) == 0 {
			roots = append(roots, v)
		}
	}
	return roots
}

// HasEdge reports whether the graph links parentID to childID.
func (g *Graph) HasEdge(parentID, childID uint64) bool {
	p, ok := g.index[parentID]
	if !ok {
		return false
	}
	c, ok := g.index[childID]
	if !ok {
		return false
	}
	for _, child := range g.children[p] {
		if child == c {
			return true
		}
	}
	return false
}

// finalize computes adjacency lists from the edge list.
func (g *Graph) finalize() {
	g.children = make([][]int, len(g.Vertices))
	g.parents = make([][]int, len(g.Vertices))
	for _, e := range g.Edges {
		g.children[e.Parent] = append(g.children[e.Parent], e.Child)
		g.parents[e.Child] = append(g.parents[e.Child], e.Parent)
	}
}

// presentation returns the color and shape a vertex of kind k is drawn with.
func presentation(k VertexKind) (color, shape string) {
	switch k {
	case ParallelRegion:
		return "red", "box"
	case ExplicitTask:
		return "blue", "ellipse"
	default:
		return "green", "circle"
	}
}

func taskVertexKind(t *entity.Task) VertexKind {
	if t.Kind == entity.Implicit {
		return ImplicitTask
	}
	return ExplicitTask
}
