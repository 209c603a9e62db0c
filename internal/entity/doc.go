// Package entity defines the records the registry keeps for every task and
// parallel region reported by the runtime.
//
// All identity fields are fixed at construction. The only mutable pieces are
// a task's status, which moves from Created to Completed at most once through
// an atomic compare-and-swap, and the ordered child lists, which are guarded
// by a per-entity mutex and only ever appended to.
package entity
