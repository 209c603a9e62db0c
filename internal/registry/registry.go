package registry

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vk/taskancestry/internal/entity"
	"github.com/vk/taskancestry/internal/metrics"
)

// Registry stores every task and parallel region reported by the runtime.
type Registry struct {
	regionsMu sync.RWMutex
	regions   map[uint64]*entity.ParallelRegion

	tasksMu sync.RWMutex
	tasks   map[uint64]*entity.Task

	initialTaskID atomic.Uint64
	hasInitial    atomic.Bool

	duplicates  atomic.Uint64
	unknownRefs atomic.Uint64

	logger   *slog.Logger
	recorder metrics.Recorder
	verbose  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for verbose diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithRecorder sets the diagnostic metrics sink.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Registry) { r.recorder = rec }
}

// WithVerboseDiagnostics logs every duplicate and unknown-id reference at debug level.
func WithVerboseDiagnostics(on bool) Option {
	return func(r *Registry) { r.verbose = on }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		regions:  make(map[uint64]*entity.ParallelRegion),
		tasks:    make(map[uint64]*entity.Task),
		logger:   slog.Default(),
		recorder: metrics.NoOp{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterTask inserts t if its id is not yet known as a task or a region.
// It reports whether the insertion happened.
func (r *Registry) RegisterTask(t *entity.Task) bool {
	r.regionsMu.RLock()
	defer r.regionsMu.RUnlock()
	r.tasksMu.Lock()
	defer r.tasksMu.Unlock()

	_, isRegion := r.regions[t.ID]
	_, isTask := r.tasks[t.ID]
	if isRegion || isTask {
		r.duplicate("task", t.ID)
		return false
	}
	r.tasks[t.ID] = t
	if t.IsInitial() && r.hasInitial.CompareAndSwap(false, true) {
		r.initialTaskID.Store(t.ID)
	}
	r.recorder.RecordRegistration("task", true)
	return true
}

// RegisterRegion inserts pr if its id is not yet known as a region or a task.
// It reports whether the insertion happened.
func (r *Registry) RegisterRegion(pr *entity.ParallelRegion) bool {
	r.regionsMu.Lock()
	defer r.regionsMu.Unlock()
	r.tasksMu.RLock()
	defer r.tasksMu.RUnlock()

	_, isRegion := r.regions[pr.ID]
	_, isTask := r.tasks[pr.ID]
	if isRegion || isTask {
		r.duplicate("region", pr.ID)
		return false
	}
	r.regions[pr.ID] = pr
	r.recorder.RecordRegistration("region", true)
	return true
}

// CompleteTask marks the task Completed. An unknown id is counted and ignored.
// It reports whether the task was found.
func (r *Registry) CompleteTask(id uint64) bool {
	t, ok := r.LookupTask(id)
	if !ok {
		r.unknown("complete_task", id)
		return false
	}
	t.Complete()
	return true
}

// LinkTaskToRegion records taskID as a member of regionID's team. It has no
// effect unless both ids are known.
func (r *Registry) LinkTaskToRegion(regionID, taskID uint64) bool {
	r.regionsMu.RLock()
	region, regionOK := r.regions[regionID]
	r.tasksMu.RLock()
	_, taskOK := r.tasks[taskID]
	r.tasksMu.RUnlock()
	r.regionsMu.RUnlock()

	if !regionOK || !taskOK {
		r.unknown("link_task_to_region", regionID)
		return false
	}
	region.AddChild(taskID)
	return true
}

// LinkTaskToTask records childID as a child of the task parentID. It has no
// effect unless both ids are known tasks.
func (r *Registry) LinkTaskToTask(parentID, childID uint64) bool {
	r.tasksMu.RLock()
	parent, parentOK := r.tasks[parentID]
	_, childOK := r.tasks[childID]
	r.tasksMu.RUnlock()

	if !parentOK || !childOK {
		r.unknown("link_task_to_task", parentID)
		return false
	}
	parent.AddChild(childID)
	return true
}

// LookupTask returns the task registered under id.
func (r *Registry) LookupTask(id uint64) (*entity.Task, bool) {
	r.tasksMu.RLock()
	defer r.tasksMu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// LookupRegion returns the region registered under id.
func (r *Registry) LookupRegion(id uint64) (*entity.ParallelRegion, bool) {
	r.regionsMu.RLock()
	defer r.regionsMu.RUnlock()
	pr, ok := r.regions[id]
	return pr, ok
}

// InitialTaskID returns the id of the first initial task registered.
func (r *Registry) InitialTaskID() (uint64, bool) {
	if !r.hasInitial.Load() {
		return 0, false
	}
	return r.initialTaskID.Load(), true
}

// Len returns the number of registered regions and tasks.
func (r *Registry) Len() (regions, tasks int) {
	r.regionsMu.RLock()
	defer r.regionsMu.RUnlock()
	r.tasksMu.RLock()
	defer r.tasksMu.RUnlock()
	return len(r.regions), len(r.tasks)
}

// Snapshot is a point-in-time copy of the registry's contents, sorted by id.
type Snapshot struct {
	Regions []*entity.ParallelRegion
	Tasks   []*entity.Task
}

// Snapshot captures what exists now. Both maps are read while holding both
// locks, so a region and a task can never be observed from two different
// moments. Registrations still in flight are not waited for.
func (r *Registry) Snapshot() Snapshot {
	r.regionsMu.RLock()
	r.tasksMu.RLock()
	regions := make([]*entity.ParallelRegion, 0, len(r.regions))
	for _, pr := range r.regions {
		regions = append(regions, pr)
	}
	tasks := make([]*entity.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	r.tasksMu.RUnlock()
	r.regionsMu.RUnlock()

	slices.SortFunc(regions, func(a, b *entity.ParallelRegion) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(tasks, func(a, b *entity.Task) int { return cmp.Compare(a.ID, b.ID) })
	return Snapshot{Regions: regions, Tasks: tasks}
}

// Release drops every entity. It is called once the shutdown export has
// completed; entities already handed out stay valid for their holders.
func (r *Registry) Release() {
	r.regionsMu.Lock()
	defer r.regionsMu.Unlock()
	r.tasksMu.Lock()
	defer r.tasksMu.Unlock()
	r.regions = make(map[uint64]*entity.ParallelRegion)
	r.tasks = make(map[uint64]*entity.Task)
}

// Stats holds the registry's diagnostic counts.
type Stats struct {
	Duplicates  uint64
	UnknownRefs uint64
}

// Stats returns the diagnostic counts accumulated so far.
func (r *Registry) Stats() Stats {
	return Stats{
		Duplicates:  r.duplicates.Load(),
		UnknownRefs: r.unknownRefs.Load(),
	}
}

func (r *Registry) duplicate(kind string, id uint64) {
	r.duplicates.Add(1)
	r.recorder.RecordRegistration(kind, false)
	if r.verbose {
		r.logger.Debug("Duplicate registration ignored.", "kind", kind, "id", id)
	}
}

func (r *Registry) unknown(op string, id uint64) {
	r.unknownRefs.Add(1)
	r.recorder.RecordUnknownReference(op)
	if r.verbose {
		r.logger.Debug("Reference to unknown id ignored.", "op", op, "id", id)
	}
}
