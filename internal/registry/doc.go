/*
Package registry is the single source of truth for which tasks and parallel
regions exist.

It holds two disjoint maps, task id to *entity.Task and region id to
*entity.ParallelRegion, each behind its own sync.RWMutex. Any number of
goroutines may call into a Registry concurrently. Two callers registering the
same id race for the map's critical section; the first one in wins and the
other is reported as "not inserted". Ids are never reused and an entry is
never overwritten.

# Lock order

Operations that need both maps always take the region map first and the task
map second. The graph builder extends this order with its own vertex index
and graph locks, which are only ever taken after both registry locks:

	region map -> task map -> vertex index -> graph

# Degraded conditions

Nothing in this package returns an error. A duplicate registration returns
false, and a completion or link that names an unknown id has no effect. Both
are counted in Stats and forwarded to the metrics.Recorder.
*/
package registry
