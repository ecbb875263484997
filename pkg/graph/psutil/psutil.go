// Package psutil reads the process hierarchy through gopsutil, for hosts
// where a portable view is preferred over parsing procfs directly.
package psutil

import (
	"context"
	"fmt"
	"iter"
	"os"

	"github.com/shirou/gopsutil/v4/common"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/srodi/procwalk/pkg/graph"
	"github.com/srodi/procwalk/pkg/types"
)

// RootComm is the name given to the synthesized PID 0.
const RootComm = "swapper/0"

// Graph is a graph.Graph backed by gopsutil.
type Graph struct {
	ctx  context.Context
	self int64
}

var _ graph.Graph = (*Graph)(nil)

// Option configures a Graph.
type Option func(*Graph)

// WithProcRoot makes gopsutil read procfs from path instead of /proc.
func WithProcRoot(path string) Option {
	return func(g *Graph) {
		if path != "" {
			g.ctx = context.WithValue(g.ctx, common.EnvKey, common.EnvMap{common.HostProcEnvKey: path})
		}
	}
}

// New returns a graph that reports self as the current process; a
// non-positive self means the calling process.
func New(ctx context.Context, self int64, opts ...Option) *Graph {
	if self <= 0 {
		self = int64(os.Getpid())
	}
	g := &Graph{ctx: ctx, self: self}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func rootTask() graph.Task {
	return graph.Task{PID: 0, PPID: 0, Comm: RootComm, State: types.TaskRunning}
}

// Task reads the current state of pid.
func (g *Graph) Task(pid int64) (graph.Task, error) {
	if pid == 0 {
		return rootTask(), nil
	}
	p, err := g.process(pid)
	if err != nil {
		return graph.Task{}, err
	}
	return g.taskOf(p)
}

func (g *Graph) process(pid int64) (*process.Process, error) {
	if pid <= 0 || pid > int64(^uint32(0)>>1) {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	return process.NewProcessWithContext(g.ctx, int32(pid))
}

func (g *Graph) taskOf(p *process.Process) (graph.Task, error) {
	name, err := p.NameWithContext(g.ctx)
	if err != nil {
		return graph.Task{}, fmt.Errorf("pid %d name: %w", p.Pid, err)
	}
	ppid, err := p.PpidWithContext(g.ctx)
	if err != nil {
		return graph.Task{}, fmt.Errorf("pid %d ppid: %w", p.Pid, err)
	}
	t := graph.Task{PID: int64(p.Pid), PPID: int64(ppid), Comm: name, State: -1}
	if status, err := p.StatusWithContext(g.ctx); err == nil && len(status) > 0 {
		t.State = stateCode(status[0])
	}
	if sw, err := p.NumCtxSwitchesWithContext(g.ctx); err == nil && sw != nil {
		t.NVCSW = sw.Voluntary
		t.NIVCSW = sw.Involuntary
	}
	return t, nil
}

// Current implements graph.Graph.
func (g *Graph) Current() (graph.Task, bool) {
	t, err := g.Task(g.self)
	return t, err == nil
}

// ParentOf implements graph.Graph.
func (g *Graph) ParentOf(t graph.Task) graph.Task {
	if t.PID == 0 {
		return rootTask()
	}
	ppid := t.PPID
	if fresh, err := g.Task(t.PID); err == nil {
		ppid = fresh.PPID
	}
	if ppid == 0 {
		return rootTask()
	}
	if parent, err := g.Task(ppid); err == nil {
		return parent
	}
	if t.PID != 1 {
		if initTask, err := g.Task(1); err == nil {
			return initTask
		}
	}
	return rootTask()
}

// ChildrenOf implements graph.Graph.
func (g *Graph) ChildrenOf(t graph.Task) iter.Seq[graph.Task] {
	return func(yield func(graph.Task) bool) {
		for _, child := range g.children(t.PID) {
			ct, err := g.taskOf(child)
			if err != nil {
				continue
			}
			if !yield(ct) {
				return
			}
		}
	}
}

// SiblingsOf implements graph.Graph.
func (g *Graph) SiblingsOf(t graph.Task) iter.Seq[graph.Task] {
	return func(yield func(graph.Task) bool) {
		if t.PID == 0 {
			return
		}
		for sib := range g.ChildrenOf(g.ParentOf(t)) {
			if sib.PID == t.PID {
				continue
			}
			if !yield(sib) {
				return
			}
		}
	}
}

// CredentialOf implements graph.Graph.
func (g *Graph) CredentialOf(t graph.Task) (graph.Cred, bool) {
	if t.PID == 0 {
		return graph.Cred{}, true
	}
	p, err := g.process(t.PID)
	if err != nil {
		return graph.Cred{}, false
	}
	uids, err := p.UidsWithContext(g.ctx)
	if err != nil || len(uids) == 0 {
		return graph.Cred{}, false
	}
	cred := graph.Cred{UID: int64(uids[0])}
	if gids, err := p.GidsWithContext(g.ctx); err == nil && len(gids) > 0 {
		cred.GID = int64(gids[0])
	}
	return cred, true
}

func (g *Graph) children(pid int64) []*process.Process {
	if pid != 0 {
		p, err := g.process(pid)
		if err != nil {
			return nil
		}
		kids, err := p.ChildrenWithContext(g.ctx)
		if err != nil {
			return nil
		}
		return kids
	}
	// Nothing lists the children of PID 0, so find tasks whose parent is 0.
	all, err := process.ProcessesWithContext(g.ctx)
	if err != nil {
		return nil
	}
	var kids []*process.Process
	for _, p := range all {
		if ppid, err := p.PpidWithContext(g.ctx); err == nil && ppid == 0 && p.Pid != 0 {
			kids = append(kids, p)
		}
	}
	return kids
}

// stateCode maps gopsutil's status names to raw scheduler codes.
func stateCode(status string) int64 {
	switch status {
	case process.Running:
		return types.TaskRunning
	case process.Sleep, process.Wait:
		return types.TaskInterruptible
	case process.Blocked, process.Lock:
		return types.TaskUninterruptible
	case process.Stop:
		return types.TaskStopped
	case process.Zombie:
		return types.ExitZombie
	case process.Idle:
		return types.TaskIdle
	default:
		return -1
	}
}
