package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// NameLen is the fixed width of the process name buffer in ProcessInfo.
const NameLen = 16

// Wire sizes of the fixed-layout records exchanged with callers.
const (
	Int64Size       = 8
	ArrayStatsSize  = 3 * Int64Size
	ProcessInfoSize = Int64Size + NameLen + 6*Int64Size
)

// DefaultDepth is how many ancestors the CLI asks for when no size is given.
const DefaultDepth = 8

// ArrayStats is the result record of the array reduction: min, max, sum.
type ArrayStats struct {
	Min int64
	Max int64
	Sum int64
}

// NewArrayStats returns the identity of the reduction: an empty fold.
func NewArrayStats() ArrayStats {
	return ArrayStats{Min: math.MaxInt64, Max: math.MinInt64}
}

// Fold adds one element. Sum wraps on overflow like native 64-bit addition.
func (s *ArrayStats) Fold(item int64) {
	s.Sum += item
	if item > s.Max {
		s.Max = item
	}
	if item < s.Min {
		s.Min = item
	}
}

// MarshalBinary encodes the record in host byte order, fields min, max, sum.
func (s ArrayStats) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ArrayStatsSize)
	binary.NativeEndian.PutUint64(buf[0:], uint64(s.Min))
	binary.NativeEndian.PutUint64(buf[8:], uint64(s.Max))
	binary.NativeEndian.PutUint64(buf[16:], uint64(s.Sum))
	return buf, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (s *ArrayStats) UnmarshalBinary(data []byte) error {
	if len(data) < ArrayStatsSize {
		return fmt.Errorf("array stats: short buffer (%d < %d)", len(data), ArrayStatsSize)
	}
	s.Min = int64(binary.NativeEndian.Uint64(data[0:]))
	s.Max = int64(binary.NativeEndian.Uint64(data[8:]))
	s.Sum = int64(binary.NativeEndian.Uint64(data[16:]))
	return nil
}

// ProcessInfo is the per-process snapshot written for each step of an
// ancestry walk. Field order and widths are part of the caller ABI.
type ProcessInfo struct {
	PID         int64
	Name        [NameLen]byte
	State       int64
	UID         int64 // -1 when the process has no credential
	NVCSW       int64
	NIVCSW      int64
	NumChildren int64
	NumSiblings int64
}

// NoUID marks a snapshot whose process had no credential attached.
const NoUID int64 = -1

// SetName copies name into the fixed buffer, truncating to NameLen bytes.
// A name of exactly NameLen bytes is stored without a terminator.
func (p *ProcessInfo) SetName(name string) {
	p.Name = [NameLen]byte{}
	copy(p.Name[:], name)
}

// NameString returns the name up to the first NUL or the full buffer.
func (p ProcessInfo) NameString() string {
	return cStr(p.Name[:])
}

// MarshalBinary encodes the snapshot in host byte order without padding.
func (p ProcessInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ProcessInfoSize)
	binary.NativeEndian.PutUint64(buf[0:], uint64(p.PID))
	copy(buf[8:8+NameLen], p.Name[:])
	off := 8 + NameLen
	for _, v := range []int64{p.State, p.UID, p.NVCSW, p.NIVCSW, p.NumChildren, p.NumSiblings} {
		binary.NativeEndian.PutUint64(buf[off:], uint64(v))
		off += Int64Size
	}
	return buf, nil
}

// UnmarshalBinary decodes a snapshot produced by MarshalBinary.
func (p *ProcessInfo) UnmarshalBinary(data []byte) error {
	if len(data) < ProcessInfoSize {
		return fmt.Errorf("process info: short buffer (%d < %d)", len(data), ProcessInfoSize)
	}
	p.PID = int64(binary.NativeEndian.Uint64(data[0:]))
	copy(p.Name[:], data[8:8+NameLen])
	off := 8 + NameLen
	for _, dst := range []*int64{&p.State, &p.UID, &p.NVCSW, &p.NIVCSW, &p.NumChildren, &p.NumSiblings} {
		*dst = int64(binary.NativeEndian.Uint64(data[off:]))
		off += Int64Size
	}
	return nil
}

// Int64 is a single 64-bit word, used for array elements and counters.
type Int64 int64

// MarshalBinary encodes the word in host byte order.
func (v Int64) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Int64Size)
	binary.NativeEndian.PutUint64(buf, uint64(v))
	return buf, nil
}

// UnmarshalBinary decodes a word produced by MarshalBinary.
func (v *Int64) UnmarshalBinary(data []byte) error {
	if len(data) < Int64Size {
		return fmt.Errorf("int64: short buffer (%d < %d)", len(data), Int64Size)
	}
	*v = Int64(binary.NativeEndian.Uint64(data))
	return nil
}

func cStr(b []byte) string {
	n := bytes.IndexByte(b, 0)
	if n == -1 {
		return string(b)
	}
	return string(b[:n])
}
