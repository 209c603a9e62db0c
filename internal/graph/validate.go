package graph

import (
	"errors"
	"fmt"
)

// ErrCycle is returned by DetectCycles when a vertex is its own ancestor.
var ErrCycle = errors.New("ancestry cycle detected")

// ErrDanglingEdge is returned by Validate when an edge endpoint is not a vertex.
var ErrDanglingEdge = errors.New("edge endpoint out of range")

// DetectCycles checks the graph for any cycles. It returns an error wrapping
// ErrCycle that names the first entity found on a cycle.
func (g *Graph) DetectCycles() error {
	// Classic depth-first search with three sets of vertices:
	// permanent: fully visited and not part of a cycle.
	// temporary: in the recursion stack of the current traversal.
	// unvisited: all others.
	permanent := make([]bool, len(g.Vertices))
	temporary := make([]bool, len(g.Vertices))

	var visit func(v int) error
	visit = func(v int) error {
		if permanent[v] {
			return nil
		}
		if temporary[v] {
			return fmt.Errorf("%w: involving entity %d", ErrCycle, g.Vertices[v].EntityID)
		}

		temporary[v] = true
		for _, child := range g.children[v] {
			if err := visit(child); err != nil {
				return err
			}
		}
		temporary[v] = false
		permanent[v] = true
		return nil
	}

	for v := range g.Vertices {
		if !permanent[v] {
			if err := visit(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsForest reports whether the graph is acyclic and every vertex has at most
// one parent.
func (g *Graph) IsForest() bool {
	for v := range g.Vertices {
		if g.InDegree(v) > 1 {
			return false
		}
	}
	return g.DetectCycles() == nil
}

// Validate checks that every edge refers to existing vertices.
func (g *Graph) Validate() error {
	n := len(g.Vertices)
	for i, e := range g.Edges {
		if e.Parent < 0 || e.Parent >= n || e.Child < 0 || e.Child >= n {
			return fmt.Errorf("%w: edge %d (%d -> %d) with %d vertices", ErrDanglingEdge, i, e.Parent, e.Child, n)
		}
	}
	return nil
}
