package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srodi/procwalk/pkg/boundary"
	"github.com/srodi/procwalk/pkg/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

// fakeProc writes a minimal procfs with systemd(1) -> sshd(700) -> bash(812)
// and kthreadd(2) beside systemd.
func fakeProc(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []struct {
		pid, ppid int64
		comm      string
	}{
		{1, 0, "systemd"},
		{2, 0, "kthreadd"},
		{700, 1, "sshd"},
		{812, 700, "bash"},
	} {
		dir := filepath.Join(root, strconv.FormatInt(p.pid, 10))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		stat := fmt.Sprintf("%d (%s) S %d 1 1 0 -1\n", p.pid, p.comm, p.ppid)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644))
		status := fmt.Sprintf("Name:\t%s\nUid:\t1000\t1000\t1000\t1000\nGid:\t1000\t1000\t1000\t1000\n", p.comm)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status), 0o644))
	}
	return root
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return lines[len(lines)-1]
}

func TestStatsCommand(t *testing.T) {
	out, err := run(t, "stats", "5", "4", "3", "2", "1", "0", "9", "8", "7", "6")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "9", "45"}, strings.Fields(lastLine(out)))
}

func TestStatsCommandNegativeValues(t *testing.T) {
	out, err := run(t, "stats", "--", "-5", "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"-5", "7", "2"}, strings.Fields(lastLine(out)))
}

func TestStatsCommandErrors(t *testing.T) {
	_, err := run(t, "stats", "--size", "3", "1", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned -14")

	_, err = run(t, "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned -22")

	_, err = run(t, "stats", "one")
	assert.ErrorContains(t, err, `invalid value "one"`)
}

func TestAncestorsCommand(t *testing.T) {
	proc := fakeProc(t)
	out, err := run(t, "ancestors", "--proc-root", proc, "--pid", "812", "--size", "3")
	require.NoError(t, err)
	assert.Equal(t, "bash(812) <- sshd(700) <- systemd(1)", lastLine(out))
	assert.Contains(t, out, "DEPTH")
}

func TestAncestorsCommandReachesRoot(t *testing.T) {
	proc := fakeProc(t)
	out, err := run(t, "ancestors", "--proc-root", proc, "--pid", "812", "--size", "10")
	require.NoError(t, err)
	assert.Equal(t, "bash(812) <- sshd(700) <- systemd(1) <- swapper/0(0)", lastLine(out))

	out, err = run(t, "ancestors", "--proc-root", proc, "--pid", "812", "--size", "10", "--hide-kernel")
	require.NoError(t, err)
	assert.Equal(t, "bash(812) <- sshd(700) <- systemd(1)", lastLine(out))
}

func TestAncestorsCommandConfigFile(t *testing.T) {
	proc := fakeProc(t)
	path := filepath.Join(t.TempDir(), "procwalk.yaml")
	doc := fmt.Sprintf("size: 2\nproc_root: %s\n", proc)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	out, err := run(t, "--config", path, "ancestors", "--pid", "812")
	require.NoError(t, err)
	assert.Equal(t, "bash(812) <- sshd(700)", lastLine(out))

	out, err = run(t, "--config", path, "ancestors", "--pid", "812", "--size", "1")
	require.NoError(t, err)
	assert.Equal(t, "bash(812)", lastLine(out))
}

func TestAncestorsCommandErrors(t *testing.T) {
	proc := fakeProc(t)
	_, err := run(t, "ancestors", "--proc-root", proc, "--pid", "4242")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned -14")

	_, err = run(t, "ancestors", "--proc-root", proc, "--pid", "812", "--size", "0")
	require.Error(t, err)

	_, err = run(t, "ancestors", "--backend", "ebpf")
	assert.ErrorContains(t, err, "unknown backend")

	_, err = run(t, "--log-level", "loud", "ancestors")
	assert.Error(t, err)
}

// requireMemory skips when the host refuses the given caller memory.
func requireMemory(t *testing.T, kind string) {
	t.Helper()
	space, release, err := openSpace(kind, 8)
	if err != nil {
		t.Skipf("%s unavailable: %v", kind, err)
	}
	defer release()
	addr, err := space.Allocate(8)
	require.NoError(t, err)
	if _, err := boundary.ReadInt64(space, addr); err != nil {
		t.Skipf("%s unavailable: %v", kind, err)
	}
}

func TestStatsCommandMemoryBackends(t *testing.T) {
	for _, kind := range []string{config.MemoryArena, config.MemoryProcessVM, config.MemoryBPFMap} {
		t.Run(kind, func(t *testing.T) {
			requireMemory(t, kind)
			out, err := run(t, "--memory", kind, "stats", "5", "4", "3", "2", "1", "0", "9", "8", "7", "6")
			require.NoError(t, err)
			assert.Equal(t, []string{"0", "9", "45"}, strings.Fields(lastLine(out)))

			_, err = run(t, "--memory", kind, "stats", "--size", "3", "1", "2")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "returned -14", "reading past the buffer faults")
		})
	}
}

func TestAncestorsCommandMemoryBackends(t *testing.T) {
	proc := fakeProc(t)
	for _, kind := range []string{config.MemoryProcessVM, config.MemoryBPFMap} {
		t.Run(kind, func(t *testing.T) {
			requireMemory(t, kind)
			out, err := run(t, "--memory", kind, "ancestors", "--proc-root", proc, "--pid", "812", "--size", "3")
			require.NoError(t, err)
			assert.Equal(t, "bash(812) <- sshd(700) <- systemd(1)", lastLine(out))
		})
	}
}

func TestUnknownMemory(t *testing.T) {
	_, err := run(t, "--memory", "shm", "stats", "1")
	assert.ErrorContains(t, err, "unknown memory")
}

func TestWatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	frames := 0
	err := watch(ctx, &out, time.Hour, func(buf *bytes.Buffer) error {
		frames++
		buf.WriteString("frame\n")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, frames)
	assert.Equal(t, "\033[H\033[2Jframe\n", out.String())
}
