/*
Package graph reconstructs the ancestry graph of tasks and parallel regions
from a registry snapshot.

The graph is an arena: vertices live in a slice and every edge is a pair of
indices into that slice, directed from parent to child. A Graph is built in
one call and never mutated afterwards, so it can be handed to exporters and
queried from any goroutine.

Construction runs in two phases, mirroring how the registry is filled:

 1. Vertex creation: one vertex per region and per task present in the
    snapshot. Regions and tasks are added from two goroutines, since no
    vertex depends on another. An entity-id to vertex-index map is recorded
    for the next phase.

 2. Edge creation: each region is linked to its parent task, and every
    non-initial task to its parent region (implicit) or parent task
    (explicit). A parent missing from the index is not an error; the edge is
    left out. An entity recorded as its own parent keeps its self-loop.

Because the snapshot can be taken while the runtime is still reporting
events, the result is only guaranteed to be a forest when the event source
has gone quiet. DetectCycles and IsForest let callers check.
*/
package graph
