package types

import (
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireSizes(t *testing.T) {
	assert.Equal(t, 24, ArrayStatsSize)
	assert.Equal(t, 72, ProcessInfoSize)

	buf, err := ProcessInfo{}.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, buf, ProcessInfoSize)
}

func TestArrayStatsFoldWraps(t *testing.T) {
	s := NewArrayStats()
	for _, v := range []int64{math.MinInt64, 4, math.MaxInt64, 2, 1, -1, 9, 8, 7, 6, 1000} {
		s.Fold(v)
	}
	assert.Equal(t, int64(math.MinInt64), s.Min)
	assert.Equal(t, int64(math.MaxInt64), s.Max)
	assert.Equal(t, int64(1035), s.Sum)

	s = NewArrayStats()
	s.Fold(math.MaxInt64)
	s.Fold(1)
	assert.Equal(t, int64(math.MinInt64), s.Sum, "sum should wrap")
}

func TestProcessInfoLayout(t *testing.T) {
	info := ProcessInfo{PID: 42, State: TaskInterruptible, UID: NoUID, NVCSW: 3, NIVCSW: 4, NumChildren: 5, NumSiblings: 6}
	info.SetName("bash")

	buf, err := info.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, byte('b'), buf[8])
	assert.Equal(t, byte(0), buf[12])

	var got ProcessInfo
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, info, got)
	assert.Equal(t, "bash", got.NameString())
	assert.Equal(t, NoUID, got.UID)
}

func TestProcessInfoShortBuffer(t *testing.T) {
	var info ProcessInfo
	assert.Error(t, info.UnmarshalBinary(make([]byte, ProcessInfoSize-1)))

	var stats ArrayStats
	assert.Error(t, stats.UnmarshalBinary(make([]byte, 3)))
}

func TestSetNameTruncatesWithoutTerminator(t *testing.T) {
	var info ProcessInfo
	info.SetName("exactly-16-bytes")
	assert.Equal(t, "exactly-16-bytes", info.NameString())
	assert.NotContains(t, info.Name[:], byte(0))

	info.SetName("a-name-that-is-much-longer")
	assert.Equal(t, "a-name-that-is-m", info.NameString())

	info.SetName("sh")
	assert.Equal(t, "sh", info.NameString(), "shorter name must clear old bytes")
}

func TestStateName(t *testing.T) {
	cases := map[int64]string{
		TaskRunning:                     "running",
		TaskInterruptible:               "sleeping",
		TaskIdle:                        "idle",
		ExitZombie:                      "zombie",
		TaskStopped | TaskWakekill:      "stopped|wakekill",
		-3:                              "unknown(-3)",
		TaskInterruptible | 0x4000_0000: "sleeping|0x40000000",
	}
	for state, want := range cases {
		assert.Equal(t, want, StateName(state), "state %#x", state)
	}
}

func TestCallNumbers(t *testing.T) {
	if bits.UintSize == 64 {
		assert.Equal(t, int64(549), SysArrayStats)
		assert.Equal(t, int64(550), SysProcessAncestors)
	} else {
		assert.Equal(t, int64(440), SysArrayStats)
		assert.Equal(t, int64(441), SysProcessAncestors)
	}
	// Constants, so they can label switch cases and array sizes.
	var table [SysProcessAncestors + 1]bool
	assert.Len(t, table, int(SysProcessAncestors)+1)
}
