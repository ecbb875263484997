package report

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srodi/procwalk/pkg/types"
)

func info(pid int64, name string, state, uid int64) types.ProcessInfo {
	p := types.ProcessInfo{PID: pid, State: state, UID: uid, NumChildren: 1}
	p.SetName(name)
	return p
}

func sampleChain() []types.ProcessInfo {
	return []types.ProcessInfo{
		info(812, "bash", types.TaskInterruptible, 1000),
		info(700, "sshd", types.TaskInterruptible, 0),
		info(1, "systemd", types.TaskInterruptible, 0),
		info(0, "swapper/0", types.TaskRunning, types.NoUID),
	}
}

func TestBuildRows(t *testing.T) {
	rows := BuildRows(sampleChain())
	require.Len(t, rows, 4)

	assert.Equal(t, RoleSelf, rows[0].Role)
	assert.Equal(t, 0, rows[0].Depth)
	assert.Equal(t, "sleeping", rows[0].State)
	assert.Equal(t, "1000", rows[0].UID)
	assert.False(t, rows[0].Kernel)

	assert.Equal(t, RoleAncestor, rows[1].Role)
	assert.Equal(t, 2, rows[2].Depth)

	root := rows[3]
	assert.Equal(t, RoleRoot, root.Role)
	assert.Equal(t, "-", root.UID)
	assert.True(t, root.Kernel)
}

func TestBuildRowsCapacityReachedHasNoRoot(t *testing.T) {
	rows := BuildRows(sampleChain()[:2])
	assert.Equal(t, RoleAncestor, rows[1].Role)
}

func TestFilterRows(t *testing.T) {
	rows := BuildRows(sampleChain())
	hide := true
	show := false

	assert.Len(t, FilterRows(rows, FilterConfig{}), 4, "nil shows everything")
	assert.Len(t, FilterRows(rows, FilterConfig{HideKernel: &show}), 4)

	filtered := FilterRows(rows, FilterConfig{HideKernel: &hide})
	require.Len(t, filtered, 3)
	assert.Equal(t, int64(1), filtered[2].PID)
}

func TestFilterRowsKeepsSelf(t *testing.T) {
	hide := true
	rows := BuildRows([]types.ProcessInfo{
		info(45, "kworker/0:1", types.TaskIdle, 0),
		info(2, "kthreadd", types.TaskInterruptible, 0),
		info(0, "swapper/0", types.TaskRunning, types.NoUID),
	})
	filtered := FilterRows(rows, FilterConfig{HideKernel: &hide})
	require.Len(t, filtered, 1)
	assert.Equal(t, RoleSelf, filtered[0].Role)
	assert.True(t, filtered[0].Kernel)
}

func TestSummary(t *testing.T) {
	rows := BuildRows(sampleChain()[:3])
	assert.Equal(t, "bash(812) <- sshd(700) <- systemd(1)", Summary(rows))
	assert.Empty(t, Summary(nil))
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, BuildRows(sampleChain())))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "DEPTH"))
	assert.Contains(t, lines[1], "bash")
	assert.Contains(t, lines[4], "root (kernel)")

	buf.Reset()
	require.NoError(t, WriteTable(&buf, nil))
	assert.Contains(t, buf.String(), "No ancestors")
}

func TestWriteStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStats(&buf, types.ArrayStats{Min: math.MinInt64, Max: math.MaxInt64, Sum: 1035}))
	out := buf.String()
	assert.Contains(t, out, "-9223372036854775808")
	assert.Contains(t, out, "9223372036854775807")
	assert.Contains(t, out, "1035")
}
