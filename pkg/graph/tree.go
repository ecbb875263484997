package graph

import (
	"fmt"
	"iter"
	"slices"
	"sync"
)

// Tree is an in-memory Graph. It is safe to mutate while a walk is reading
// it; each lookup takes the lock briefly and never across a yield.
type Tree struct {
	mu      sync.RWMutex
	nodes   map[int64]*node
	root    int64
	current int64
	hasCur  bool
}

type node struct {
	task     Task
	cred     *Cred
	children []int64
}

// NewTree returns a tree holding only root. The root's parent is itself.
func NewTree(root Task, cred *Cred) *Tree {
	root.PPID = root.PID
	return &Tree{
		nodes: map[int64]*node{root.PID: {task: root, cred: cloneCred(cred)}},
		root:  root.PID,
	}
}

// Add inserts task as a child of task.PPID.
func (tr *Tree) Add(task Task, cred *Cred) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, ok := tr.nodes[task.PID]; ok {
		return fmt.Errorf("pid %d already present", task.PID)
	}
	parent, ok := tr.nodes[task.PPID]
	if !ok {
		return fmt.Errorf("parent %d of pid %d not present", task.PPID, task.PID)
	}
	tr.nodes[task.PID] = &node{task: task, cred: cloneCred(cred)}
	parent.children = append(parent.children, task.PID)
	return nil
}

// Remove deletes pid. Its children are reparented to the root.
func (tr *Tree) Remove(pid int64) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n, ok := tr.nodes[pid]
	if !ok {
		return fmt.Errorf("pid %d not present", pid)
	}
	if pid == tr.root {
		return fmt.Errorf("cannot remove root %d", pid)
	}
	if parent, ok := tr.nodes[n.task.PPID]; ok {
		parent.children = slices.DeleteFunc(parent.children, func(c int64) bool { return c == pid })
	}
	root := tr.nodes[tr.root]
	for _, c := range n.children {
		tr.nodes[c].task.PPID = tr.root
		root.children = append(root.children, c)
	}
	delete(tr.nodes, pid)
	if tr.hasCur && tr.current == pid {
		tr.hasCur = false
	}
	return nil
}

// SetCurrent selects the process Current reports.
func (tr *Tree) SetCurrent(pid int64) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, ok := tr.nodes[pid]; !ok {
		return fmt.Errorf("pid %d not present", pid)
	}
	tr.current, tr.hasCur = pid, true
	return nil
}

// SetCred replaces the credential of pid; nil detaches it.
func (tr *Tree) SetCred(pid int64, cred *Cred) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n, ok := tr.nodes[pid]
	if !ok {
		return fmt.Errorf("pid %d not present", pid)
	}
	n.cred = cloneCred(cred)
	return nil
}

// Update mutates the scheduling fields of pid. Identity fields are restored
// after fn returns.
func (tr *Tree) Update(pid int64, fn func(*Task)) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n, ok := tr.nodes[pid]
	if !ok {
		return fmt.Errorf("pid %d not present", pid)
	}
	pid, ppid := n.task.PID, n.task.PPID
	fn(&n.task)
	n.task.PID, n.task.PPID = pid, ppid
	return nil
}

// Len returns the number of processes in the tree.
func (tr *Tree) Len() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.nodes)
}

// Current implements Graph.
func (tr *Tree) Current() (Task, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	if !tr.hasCur {
		return Task{}, false
	}
	n, ok := tr.nodes[tr.current]
	if !ok {
		return Task{}, false
	}
	return n.task, true
}

// ParentOf implements Graph. A task that has left the tree is treated as a
// child of the root.
func (tr *Tree) ParentOf(t Task) Task {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	ppid := t.PPID
	if n, ok := tr.nodes[t.PID]; ok {
		ppid = n.task.PPID
	}
	if p, ok := tr.nodes[ppid]; ok {
		return p.task
	}
	return tr.nodes[tr.root].task
}

// ChildrenOf implements Graph.
func (tr *Tree) ChildrenOf(t Task) iter.Seq[Task] {
	return func(yield func(Task) bool) {
		for i := 0; ; i++ {
			child, ok := tr.childAt(t.PID, i, -1)
			if !ok || !yield(child) {
				return
			}
		}
	}
}

// SiblingsOf implements Graph.
func (tr *Tree) SiblingsOf(t Task) iter.Seq[Task] {
	return func(yield func(Task) bool) {
		ppid, ok := tr.parentPID(t.PID)
		if !ok || ppid == t.PID {
			return
		}
		for i := 0; ; i++ {
			sib, ok := tr.childAt(ppid, i, t.PID)
			if !ok || !yield(sib) {
				return
			}
		}
	}
}

// CredentialOf implements Graph.
func (tr *Tree) CredentialOf(t Task) (Cred, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	n, ok := tr.nodes[t.PID]
	if !ok || n.cred == nil {
		return Cred{}, false
	}
	return *n.cred, true
}

func (tr *Tree) parentPID(pid int64) (int64, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	n, ok := tr.nodes[pid]
	if !ok {
		return 0, false
	}
	return n.task.PPID, true
}

// childAt returns the i-th child of pid, not counting skip.
func (tr *Tree) childAt(pid int64, i int, skip int64) (Task, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	n, ok := tr.nodes[pid]
	if !ok {
		return Task{}, false
	}
	for _, c := range n.children {
		if c == skip {
			continue
		}
		if i == 0 {
			return tr.nodes[c].task, true
		}
		i--
	}
	return Task{}, false
}

func cloneCred(c *Cred) *Cred {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
