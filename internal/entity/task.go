package entity

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// TaskKind distinguishes how the runtime produced a task.
type TaskKind int

const (
	// Initial is the single root task of the program.
	Initial TaskKind = iota
	// Implicit tasks are generated by the runtime, one per member of a parallel region's team.
	Implicit
	// Explicit tasks are created by user code through a task construct.
	Explicit
)

// String returns the lowercase name of the kind.
func (k TaskKind) String() string {
	switch k {
	case Initial:
		return "initial"
	case Implicit:
		return "implicit"
	case Explicit:
		return "explicit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Status is the lifecycle state of a task.
type Status int32

const (
	// Created is the state of every task at registration.
	Created Status = iota
	// Completed is set once by a completion event.
	Completed
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Task is a schedulable unit of work reported by the runtime.
type Task struct {
	// ID is unique over the whole process lifetime.
	ID uint64
	// ParentID is the enclosing region for implicit tasks and the encountering
	// task for explicit tasks. It carries no meaning for the initial task.
	ParentID uint64
	Kind     TaskKind
	// CodeLocation is the return address of the construct, used for display only.
	CodeLocation uintptr

	status atomic.Int32

	mu       sync.Mutex
	children []uint64
}

// NewTask creates a task in the Created state.
func NewTask(id, parentID uint64, kind TaskKind, codeLocation uintptr) *Task {
	return &Task{
		ID:           id,
		ParentID:     parentID,
		Kind:         kind,
		CodeLocation: codeLocation,
	}
}

// IsInitial reports whether this is the root task.
func (t *Task) IsInitial() bool {
	return t.Kind == Initial
}

// Status atomically reads the task's status.
func (t *Task) Status() Status {
	return Status(t.status.Load())
}

// Complete moves the task to Completed. It returns false if the task had
// already been completed.
func (t *Task) Complete() bool {
	return t.status.CompareAndSwap(int32(Created), int32(Completed))
}

// AddChild appends a child task id in arrival order.
func (t *Task) AddChild(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children = append(t.children, id)
}

// Children returns a copy of the child task ids.
func (t *Task) Children() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, len(t.children))
	copy(out, t.children)
	return out
}

func (t *Task) String() string {
	return fmt.Sprintf("task %d (%s, parent=%d, status=%s, codeptr=%#x)",
		t.ID, t.Kind, t.ParentID, t.Status(), t.CodeLocation)
}
