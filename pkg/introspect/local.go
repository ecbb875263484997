package introspect

import (
	"errors"
	"fmt"

	"github.com/srodi/procwalk/pkg/boundary"
	"github.com/srodi/procwalk/pkg/graph"
	"github.com/srodi/procwalk/pkg/types"
)

// MaxLocalSlots bounds the snapshot buffer AncestorsIn allocates. No real
// ancestor chain comes close; a deeper walk would fault on the next slot.
const MaxLocalSlots = 4096

// Reduce runs ReduceIn over a fresh Arena.
func Reduce(values []int64, size int64, opts ...Option) (types.ArrayStats, error) {
	return ReduceIn(boundary.NewArena(), values, size, opts...)
}

// ReduceIn copies values into buffers allocated from space and runs
// ArrayStats over the first size of them. size may be smaller than
// len(values); a larger size runs off the end of the buffer.
func ReduceIn(space boundary.Space, values []int64, size int64, opts ...Option) (types.ArrayStats, error) {
	var stats types.ArrayStats
	data := boundary.Null
	if len(values) > 0 {
		var err error
		if data, err = space.Allocate(len(values) * types.Int64Size); err != nil {
			return stats, fmt.Errorf("allocating array: %w", err)
		}
		for i, v := range values {
			if err := boundary.WriteInt64(space, data+boundary.Addr(i*types.Int64Size), v); err != nil {
				return stats, fmt.Errorf("filling array: %w", err)
			}
		}
	}
	out, err := space.Allocate(types.ArrayStatsSize)
	if err != nil {
		return stats, fmt.Errorf("allocating result: %w", err)
	}

	if err := New(space, nil, opts...).ArrayStats(out, data, size); err != nil {
		return stats, err
	}
	err = boundary.Read(space, out, types.ArrayStatsSize, &stats)
	return stats, err
}

// Ancestors runs AncestorsIn over a fresh Arena.
func Ancestors(g graph.Graph, size int64, opts ...Option) ([]types.ProcessInfo, error) {
	return AncestorsIn(boundary.NewArena(), g, size, opts...)
}

// AncestorsBuffers returns the byte sizes of the snapshot array and the
// filled counter AncestorsIn allocates for size.
func AncestorsBuffers(size int64) (info, filled int) {
	return int(min(max(size, 0), MaxLocalSlots)) * types.ProcessInfoSize, types.Int64Size
}

// AncestorsIn runs ProcessAncestors against g with buffers allocated from
// space and returns the decoded snapshots. On a partial write the committed
// snapshots are returned together with the error.
func AncestorsIn(space boundary.Space, g graph.Graph, size int64, opts ...Option) ([]types.ProcessInfo, error) {
	if size <= 0 {
		return nil, New(space, g, opts...).ProcessAncestors(boundary.Null, size, boundary.Null)
	}
	infoSize, filledSize := AncestorsBuffers(size)
	info, err := space.Allocate(infoSize)
	if err != nil {
		return nil, fmt.Errorf("allocating snapshots: %w", err)
	}
	filledAddr, err := space.Allocate(filledSize)
	if err != nil {
		return nil, fmt.Errorf("allocating counter: %w", err)
	}

	err = New(space, g, opts...).ProcessAncestors(info, size, filledAddr)
	var filled int64
	if err == nil {
		if filled, err = boundary.ReadInt64(space, filledAddr); err != nil {
			return nil, err
		}
	} else {
		var ok bool
		if filled, ok = Committed(err); !ok {
			return nil, err
		}
	}

	infos, derr := decodeSlots(space, info, filled)
	if derr != nil {
		return infos, errors.Join(err, derr)
	}
	return infos, err
}

func decodeSlots(m boundary.Memory, base boundary.Addr, n int64) ([]types.ProcessInfo, error) {
	infos := make([]types.ProcessInfo, 0, n)
	for i := int64(0); i < n; i++ {
		addr, err := boundary.Index(base, i, types.ProcessInfoSize)
		if err != nil {
			return infos, err
		}
		var p types.ProcessInfo
		if err := boundary.Read(m, addr, types.ProcessInfoSize, &p); err != nil {
			return infos, err
		}
		infos = append(infos, p)
	}
	return infos, nil
}
