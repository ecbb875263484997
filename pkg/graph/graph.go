// Package graph describes the live process hierarchy an ancestry walk reads.
//
// A Graph is owned by the host and mutated concurrently by process
// creation, exit and scheduling. Readers take no lock on it and must
// tolerate whatever they observe: counts are best-effort, never a
// consistent point-in-time view.
package graph

import "iter"

// Task is the observable state of one process at the moment it was looked up.
type Task struct {
	PID    int64
	PPID   int64
	Comm   string
	State  int64 // raw scheduler state code
	NVCSW  int64 // voluntary context switches
	NIVCSW int64 // involuntary context switches
}

// Cred is the owning identity of a process.
type Cred struct {
	UID int64
	GID int64
}

// Graph is a read-only view of the process hierarchy.
//
// The root is the process whose parent is itself. ChildrenOf and SiblingsOf
// return lazy, finite sequences that re-read live state each time they are
// ranged over.
type Graph interface {
	// Current returns the calling process, or false if it cannot be resolved.
	Current() (Task, bool)
	ParentOf(t Task) Task
	ChildrenOf(t Task) iter.Seq[Task]
	// SiblingsOf yields the other children of t's parent. The root has none.
	SiblingsOf(t Task) iter.Seq[Task]
	// CredentialOf returns false when t has no credential attached.
	CredentialOf(t Task) (Cred, bool)
}

// IsRoot reports whether t is its own parent.
func IsRoot(g Graph, t Task) bool {
	return g.ParentOf(t).PID == t.PID
}

// Count scans seq to completion.
func Count(seq iter.Seq[Task]) int64 {
	var n int64
	for range seq {
		n++
	}
	return n
}
