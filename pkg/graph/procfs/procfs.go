// Package procfs reads the live process hierarchy from a mounted /proc.
//
// PID 0 never appears under /proc; it is synthesized as the root of the
// hierarchy (the idle task, parent of init and kthreadd, parent of itself).
package procfs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/srodi/procwalk/pkg/graph"
	"github.com/srodi/procwalk/pkg/types"
)

// DefaultRoot is where procfs is normally mounted.
const DefaultRoot = "/proc"

// RootComm is the name given to the synthesized PID 0.
const RootComm = "swapper/0"

// procReadFile and procReadDir allow tests to stub /proc access.
var (
	procReadFile = os.ReadFile
	procReadDir  = os.ReadDir
)

// Graph is a graph.Graph over procfs.
type Graph struct {
	root string
	self int64
}

var _ graph.Graph = (*Graph)(nil)

// Option configures a Graph.
type Option func(*Graph)

// WithRoot reads from a procfs mounted somewhere other than /proc.
func WithRoot(path string) Option {
	return func(g *Graph) { g.root = path }
}

// WithSelf makes Current report pid instead of the calling process.
func WithSelf(pid int64) Option {
	return func(g *Graph) { g.self = pid }
}

// New returns a graph rooted at /proc that reports the calling process as
// current.
func New(opts ...Option) *Graph {
	g := &Graph{root: DefaultRoot, self: int64(os.Getpid())}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func rootTask() graph.Task {
	return graph.Task{PID: 0, PPID: 0, Comm: RootComm, State: types.TaskRunning}
}

// Current implements graph.Graph.
func (g *Graph) Current() (graph.Task, bool) {
	t, err := g.Task(g.self)
	if err != nil {
		return graph.Task{}, false
	}
	return t, true
}

// Task reads the current state of pid.
func (g *Graph) Task(pid int64) (graph.Task, error) {
	if pid == 0 {
		return rootTask(), nil
	}
	if pid < 0 {
		return graph.Task{}, fmt.Errorf("invalid pid %d", pid)
	}
	stat, err := procReadFile(g.path(pid, "stat"))
	if err != nil {
		return graph.Task{}, err
	}
	t, err := parseStat(stat)
	if err != nil {
		return graph.Task{}, fmt.Errorf("pid %d: %w", pid, err)
	}
	if status, err := procReadFile(g.path(pid, "status")); err == nil {
		fields := parseStatus(status)
		t.NVCSW = fields.nvcsw
		t.NIVCSW = fields.nivcsw
	}
	return t, nil
}

// ParentOf implements graph.Graph. A parent that has exited hands its
// children to init, or to the root when init cannot be read.
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
		for _, pid := range g.childPIDs(t.PID) {
			child, err := g.Task(pid)
			if err != nil {
				continue // exited since the listing
			}
			if !yield(child) {
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
		parent := g.ParentOf(t)
		for sib := range g.ChildrenOf(parent) {
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
	status, err := procReadFile(g.path(t.PID, "status"))
	if err != nil {
		return graph.Cred{}, false
	}
	fields := parseStatus(status)
	if !fields.hasUID {
		return graph.Cred{}, false
	}
	return graph.Cred{UID: fields.uid, GID: fields.gid}, true
}

// childPIDs lists children from the kernel's per-thread children files.
// Each file only holds the children forked by that thread, so every thread
// of pid is read. A full scan is the fallback when none can be read.
func (g *Graph) childPIDs(pid int64) []int64 {
	if pid != 0 {
		if pids, ok := g.threadChildren(pid); ok {
			return pids
		}
	}
	return g.scanChildren(pid)
}

func (g *Graph) threadChildren(pid int64) ([]int64, bool) {
	taskDir := filepath.Join(g.root, strconv.FormatInt(pid, 10), "task")
	threads, err := procReadDir(taskDir)
	if err != nil {
		return nil, false
	}
	var (
		pids []int64
		seen = make(map[int64]bool)
		read bool
	)
	for _, th := range threads {
		data, err := procReadFile(filepath.Join(taskDir, th.Name(), "children"))
		if err != nil {
			continue // thread exited, or no children file on this kernel
		}
		read = true
		for _, child := range parsePIDList(data) {
			if !seen[child] {
				seen[child] = true
				pids = append(pids, child)
			}
		}
	}
	return pids, read
}

func (g *Graph) scanChildren(pid int64) []int64 {
	entries, err := procReadDir(g.root)
	if err != nil {
		return nil
	}
	var children []int64
	for _, e := range entries {
		cpid, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil || cpid <= 0 {
			continue
		}
		stat, err := procReadFile(g.path(cpid, "stat"))
		if err != nil {
			continue
		}
		t, err := parseStat(stat)
		if err != nil || t.PPID != pid {
			continue
		}
		children = append(children, cpid)
	}
	return children
}

func (g *Graph) path(pid int64, file string) string {
	return filepath.Join(g.root, strconv.FormatInt(pid, 10), file)
}

var errStatFormat = errors.New("unexpected stat format")

// parseStat reads pid, comm, state and ppid from /proc/<pid>/stat. The comm
// field may itself contain spaces and parentheses, so it ends at the last ')'.
func parseStat(data []byte) (graph.Task, error) {
	open := bytes.IndexByte(data, '(')
	closing := bytes.LastIndexByte(data, ')')
	if open < 0 || closing < open {
		return graph.Task{}, errStatFormat
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(string(data[:open])), 10, 64)
	if err != nil {
		return graph.Task{}, errStatFormat
	}
	rest := strings.Fields(string(data[closing+1:]))
	if len(rest) < 2 || len(rest[0]) == 0 {
		return graph.Task{}, errStatFormat
	}
	ppid, err := strconv.ParseInt(rest[1], 10, 64)
	if err != nil {
		return graph.Task{}, errStatFormat
	}
	return graph.Task{
		PID:   pid,
		PPID:  ppid,
		Comm:  string(data[open+1 : closing]),
		State: stateCode(rest[0][0]),
	}, nil
}

// stateCode maps the state letter shown by procfs back to the raw code.
func stateCode(letter byte) int64 {
	switch letter {
	case 'R':
		return types.TaskRunning
	case 'S':
		return types.TaskInterruptible
	case 'D':
		return types.TaskUninterruptible
	case 'T':
		return types.TaskStopped
	case 't':
		return types.TaskTraced
	case 'X':
		return types.ExitDead
	case 'Z':
		return types.ExitZombie
	case 'P':
		return types.TaskParked
	case 'I':
		return types.TaskIdle
	case 'x':
		return types.TaskDead
	case 'K':
		return types.TaskWakekill
	default:
		return -1
	}
}

type statusFields struct {
	uid, gid      int64
	hasUID        bool
	nvcsw, nivcsw int64
}

func parseStatus(data []byte) statusFields {
	var f statusFields
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		switch key {
		case "Uid":
			f.uid, f.hasUID = n, true
		case "Gid":
			f.gid = n
		case "voluntary_ctxt_switches":
			f.nvcsw = n
		case "nonvoluntary_ctxt_switches":
			f.nivcsw = n
		}
	}
	return f
}

func parsePIDList(data []byte) []int64 {
	var pids []int64
	for _, field := range strings.Fields(string(data)) {
		if pid, err := strconv.ParseInt(field, 10, 64); err == nil {
			pids = append(pids, pid)
		}
	}
	return pids
}
