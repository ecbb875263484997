//go:build linux

package boundary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srodi/procwalk/pkg/types"
)

func newMapMemory(t *testing.T, size, entries int) *MapMemory {
	t.Helper()
	mm, err := NewMapMemory(size, entries)
	if err != nil {
		t.Skipf("bpf array maps unavailable: %v", err)
	}
	t.Cleanup(func() { mm.Close() })
	return mm
}

func TestMapMemoryWholeEntries(t *testing.T) {
	mm := newMapMemory(t, types.ProcessInfoSize, 3)
	addr, err := mm.Allocate(2 * types.ProcessInfoSize)
	require.NoError(t, err)
	assert.Equal(t, mm.Base(), addr)

	info := types.ProcessInfo{PID: 7, UID: types.NoUID}
	info.SetName("init")
	require.NoError(t, Write(mm, addr+types.ProcessInfoSize, info))

	var got types.ProcessInfo
	require.NoError(t, Read(mm, addr+types.ProcessInfoSize, types.ProcessInfoSize, &got))
	assert.Equal(t, info, got)

	var empty types.ProcessInfo
	require.NoError(t, Read(mm, addr, types.ProcessInfoSize, &empty))
	assert.Equal(t, types.ProcessInfo{}, empty)
}

func TestMapMemoryPartialEntries(t *testing.T) {
	mm := newMapMemory(t, types.ArrayStatsSize, 4)
	addr, err := mm.Allocate(5 * types.Int64Size)
	require.NoError(t, err)

	for i := int64(0); i < 5; i++ {
		require.NoError(t, WriteInt64(mm, addr+Addr(i*8), 10+i))
	}
	for i := int64(0); i < 5; i++ {
		v, err := ReadInt64(mm, addr+Addr(i*8))
		require.NoError(t, err)
		assert.Equal(t, 10+i, v, "word %d", i)
	}

	// A 16-byte read straddling the first two entries.
	buf := make([]byte, 16)
	require.NoError(t, mm.ReadAt(buf, addr+16))
	var pair [2]types.Int64
	require.NoError(t, pair[0].UnmarshalBinary(buf[:8]))
	require.NoError(t, pair[1].UnmarshalBinary(buf[8:]))
	assert.Equal(t, [2]types.Int64{12, 13}, pair)
}

func TestMapMemoryFaults(t *testing.T) {
	mm := newMapMemory(t, types.Int64Size, 4)

	assert.ErrorIs(t, WriteInt64(mm, mm.Base(), 1), ErrFault, "nothing allocated yet")

	addr, err := mm.Allocate(2 * types.Int64Size)
	require.NoError(t, err)
	assert.ErrorIs(t, WriteInt64(mm, addr+16, 1), ErrFault, "past the allocation")
	assert.ErrorIs(t, mm.WriteAt(make([]byte, 12), addr+8), ErrFault, "straddles the end")
	_, err = ReadInt64(mm, Null)
	assert.ErrorIs(t, err, ErrFault)
	_, err = ReadInt64(mm, mm.Base()-8)
	assert.ErrorIs(t, err, ErrFault)

	_, err = mm.Allocate(3 * types.Int64Size)
	assert.Error(t, err, "only two entries left")
	_, err = mm.Allocate(0)
	assert.Error(t, err)
}

func TestSlotsFor(t *testing.T) {
	assert.Equal(t, 1, SlotsFor(72, 8))
	assert.Equal(t, 3, SlotsFor(72, 144, 8))
	assert.Equal(t, 2, SlotsFor(8, 0, 3))
}
