// Package boundary moves fixed-size values between caller-owned memory and
// the code servicing a call. Every transfer is independent and may fail on
// its own; failures are reported as ErrFault and never retried.
package boundary

import (
	"encoding"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"golang.org/x/sys/unix"

	"github.com/srodi/procwalk/pkg/types"
)

// Addr is an address in the caller's memory.
type Addr uint64

// Null is never mapped.
const Null Addr = 0

func (a Addr) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

// ErrFault reports an inaccessible caller address.
var ErrFault error = unix.EFAULT

// ErrUnsupported is returned by backends that need Linux.
var ErrUnsupported = errors.New("memory backend requires linux")

// Memory is the caller's side of the boundary.
type Memory interface {
	// ReadAt copies len(p) bytes starting at addr into p.
	ReadAt(p []byte, addr Addr) error
	// WriteAt copies p into the caller's memory starting at addr.
	WriteAt(p []byte, addr Addr) error
}

// Space is caller memory that can hand out fresh zeroed buffers.
type Space interface {
	Memory
	Allocate(n int) (Addr, error)
}

var (
	_ Space = (*Arena)(nil)
	_ Space = (*ProcessVM)(nil)
	_ Space = (*MapMemory)(nil)
)

// SlotsFor returns how many entries of valueSize bytes hold buffers of the
// given sizes when each starts on its own entry.
func SlotsFor(valueSize int, sizes ...int) int {
	total := 0
	for _, n := range sizes {
		total += max(1, (n+valueSize-1)/valueSize)
	}
	return total
}

// FaultError describes one failed transfer.
type FaultError struct {
	Op   string
	Addr Addr
	Len  int
	Err  error
}

func (e *FaultError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %d bytes at %s: bad address", e.Op, e.Len, e.Addr)
	}
	return fmt.Sprintf("%s %d bytes at %s: %v", e.Op, e.Len, e.Addr, e.Err)
}

// Unwrap exposes both ErrFault and the backend's cause.
func (e *FaultError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFault}
	}
	return []error{ErrFault, e.Err}
}

func fault(op string, addr Addr, n int, cause error) error {
	return &FaultError{Op: op, Addr: addr, Len: n, Err: cause}
}

// Index returns the address of element i of an array at base with the given
// stride. Arithmetic that leaves the address space is a fault.
func Index(base Addr, i int64, stride int) (Addr, error) {
	if i < 0 || stride <= 0 {
		return Null, fault("index", base, stride, fmt.Errorf("element %d out of range", i))
	}
	hi, off := bits.Mul64(uint64(i), uint64(stride))
	if hi != 0 || off > math.MaxUint64-uint64(base) {
		return Null, fault("index", base, stride, fmt.Errorf("element %d overflows address space", i))
	}
	return base + Addr(off), nil
}

// Read copies size bytes from addr and decodes them into v.
func Read(m Memory, addr Addr, size int, v encoding.BinaryUnmarshaler) error {
	if addr == Null {
		return fault("read", addr, size, nil)
	}
	buf := make([]byte, size)
	if err := m.ReadAt(buf, addr); err != nil {
		return asFault("read", addr, size, err)
	}
	return v.UnmarshalBinary(buf)
}

// Write encodes v and copies it to addr as one unit.
func Write(m Memory, addr Addr, v encoding.BinaryMarshaler) error {
	buf, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	if addr == Null {
		return fault("write", addr, len(buf), nil)
	}
	if err := m.WriteAt(buf, addr); err != nil {
		return asFault("write", addr, len(buf), err)
	}
	return nil
}

// ReadInt64 reads one 64-bit word.
func ReadInt64(m Memory, addr Addr) (int64, error) {
	var v types.Int64
	if err := Read(m, addr, types.Int64Size, &v); err != nil {
		return 0, err
	}
	return int64(v), nil
}

// WriteInt64 writes one 64-bit word.
func WriteInt64(m Memory, addr Addr, v int64) error {
	return Write(m, addr, types.Int64(v))
}

// asFault keeps backend errors that are already faults and wraps the rest.
func asFault(op string, addr Addr, n int, err error) error {
	var fe *FaultError
	if errors.As(err, &fe) {
		return err
	}
	return fault(op, addr, n, err)
}
