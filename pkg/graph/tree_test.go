package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTree returns swapper(0) -> init(1) -> {sshd(10) -> bash(20) -> {vim(30), make(31)}, cron(11)}.
func buildTree(t *testing.T) *Tree {
	t.Helper()
	tr := NewTree(Task{PID: 0, Comm: "swapper/0"}, &Cred{})
	for _, task := range []Task{
		{PID: 1, PPID: 0, Comm: "init"},
		{PID: 10, PPID: 1, Comm: "sshd"},
		{PID: 11, PPID: 1, Comm: "cron"},
		{PID: 20, PPID: 10, Comm: "bash"},
		{PID: 30, PPID: 20, Comm: "vim"},
		{PID: 31, PPID: 20, Comm: "make"},
	} {
		require.NoError(t, tr.Add(task, &Cred{UID: 1000}))
	}
	require.NoError(t, tr.SetCurrent(20))
	return tr
}

func pids(seq func(func(Task) bool)) []int64 {
	var out []int64
	for task := range seq {
		out = append(out, task.PID)
	}
	return out
}

func TestTreeRelations(t *testing.T) {
	tr := buildTree(t)

	self, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, "bash", self.Comm)

	assert.Equal(t, int64(10), tr.ParentOf(self).PID)
	assert.Equal(t, []int64{30, 31}, pids(tr.ChildrenOf(self)))
	assert.Empty(t, pids(tr.SiblingsOf(self)))

	vim := Task{PID: 30}
	assert.Equal(t, []int64{31}, pids(tr.SiblingsOf(vim)))
	assert.Equal(t, int64(1), Count(tr.SiblingsOf(Task{PID: 10})))
	assert.Equal(t, int64(2), Count(tr.ChildrenOf(Task{PID: 1})))
}

func TestTreeRootIsOwnParent(t *testing.T) {
	tr := buildTree(t)
	root := tr.ParentOf(Task{PID: 1})
	assert.Equal(t, int64(0), root.PID)
	assert.True(t, IsRoot(tr, root))
	assert.Equal(t, root, tr.ParentOf(root))
	assert.Zero(t, Count(tr.SiblingsOf(root)))
	assert.Equal(t, int64(1), Count(tr.ChildrenOf(root)))
}

func TestTreeSequencesAreRestartable(t *testing.T) {
	tr := buildTree(t)
	seq := tr.ChildrenOf(Task{PID: 20})
	assert.Equal(t, int64(2), Count(seq))
	require.NoError(t, tr.Add(Task{PID: 32, PPID: 20, Comm: "cc"}, nil))
	assert.Equal(t, int64(3), Count(seq), "a rescan observes live state")
}

func TestTreeMutationDuringScan(t *testing.T) {
	tr := buildTree(t)
	var seen []int64
	for child := range tr.ChildrenOf(Task{PID: 20}) {
		seen = append(seen, child.PID)
		if child.PID == 30 {
			require.NoError(t, tr.Remove(31))
		}
	}
	assert.Equal(t, []int64{30}, seen)
}

func TestTreeRemoveReparentsToRoot(t *testing.T) {
	tr := buildTree(t)
	require.NoError(t, tr.Remove(10))

	bash, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, int64(0), tr.ParentOf(bash).PID)

	// A task value that outlived its process still has a parent.
	assert.Equal(t, int64(1), tr.ParentOf(Task{PID: 10, PPID: 1}).PID)
	assert.Equal(t, int64(0), tr.ParentOf(Task{PID: 99, PPID: 98}).PID)

	assert.Error(t, tr.Remove(0))
	assert.Error(t, tr.Remove(10))
}

func TestTreeCredentials(t *testing.T) {
	tr := buildTree(t)
	cred, ok := tr.CredentialOf(Task{PID: 20})
	require.True(t, ok)
	assert.Equal(t, int64(1000), cred.UID)

	require.NoError(t, tr.SetCred(20, nil))
	_, ok = tr.CredentialOf(Task{PID: 20})
	assert.False(t, ok)
}

func TestTreeUpdateKeepsIdentity(t *testing.T) {
	tr := buildTree(t)
	require.NoError(t, tr.Update(20, func(task *Task) {
		task.NVCSW = 7
		task.PID = 999
	}))
	self, _ := tr.Current()
	assert.Equal(t, int64(20), self.PID)
	assert.Equal(t, int64(7), self.NVCSW)
}

func TestTreeErrors(t *testing.T) {
	tr := buildTree(t)
	assert.Error(t, tr.Add(Task{PID: 1, PPID: 0}, nil))
	assert.Error(t, tr.Add(Task{PID: 50, PPID: 49}, nil))
	assert.Error(t, tr.SetCurrent(404))

	empty := NewTree(Task{PID: 0}, nil)
	_, ok := empty.Current()
	assert.False(t, ok)
	assert.Equal(t, 1, empty.Len())
}
