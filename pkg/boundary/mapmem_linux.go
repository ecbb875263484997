//go:build linux
// +build linux

package boundary

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cilium/ebpf"
)

// mapBase is where slot 0 of a MapMemory lives.
const mapBase Addr = 0x7f00_0000_0000

// MapMemory exposes a BPF array map as caller memory. The map's entries are
// laid end to end from mapBase and every transfer is a bpf(2) lookup or
// update per entry touched, so the memory lives in the kernel and any
// single transfer can fail alone.
//
// Only ranges handed out by Allocate are accessible. A transfer covering a
// whole entry is one update; anything smaller is read, patched and written
// back. A transfer spanning entries is not atomic.
type MapMemory struct {
	m         *ebpf.Map
	valueSize int
	entries   int

	mu     sync.RWMutex
	allocs []extent // sorted by start
	next   Addr
}

type extent struct {
	start, end Addr
}

// NewMapMemory creates an array map with the given number of entries of
// valueSize bytes each.
func NewMapMemory(valueSize, entries int) (*MapMemory, error) {
	if valueSize <= 0 || entries <= 0 {
		return nil, fmt.Errorf("invalid map geometry %dx%d", entries, valueSize)
	}
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "procwalk_mem",
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  uint32(valueSize),
		MaxEntries: uint32(entries),
	})
	if err != nil {
		return nil, fmt.Errorf("creating array map: %w", err)
	}
	return &MapMemory{m: m, valueSize: valueSize, entries: entries, next: mapBase}, nil
}

// Base returns the address of entry 0.
func (mm *MapMemory) Base() Addr { return mapBase }

// Allocate implements Space. Each buffer starts on a fresh entry.
func (mm *MapMemory) Allocate(n int) (Addr, error) {
	if n <= 0 {
		return Null, fmt.Errorf("invalid allocation of %d bytes", n)
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	slots := SlotsFor(mm.valueSize, n)
	limit := mapBase + Addr(mm.entries*mm.valueSize)
	if mm.next+Addr(slots*mm.valueSize) > limit {
		return Null, fmt.Errorf("allocate %d bytes: map of %d entries exhausted", n, mm.entries)
	}
	start := mm.next
	mm.allocs = append(mm.allocs, extent{start: start, end: start + Addr(n)})
	mm.next += Addr(slots * mm.valueSize)
	return start, nil
}

// Close releases the map.
func (mm *MapMemory) Close() error {
	return mm.m.Close()
}

// ReadAt implements Memory.
func (mm *MapMemory) ReadAt(p []byte, addr Addr) error {
	if err := mm.check(addr, len(p)); err != nil {
		return fault("read", addr, len(p), err)
	}
	value := make([]byte, mm.valueSize)
	return mm.each(addr, len(p), func(key uint32, in, done, n int) error {
		if err := mm.m.Lookup(&key, rawValue(value)); err != nil {
			return fault("read", addr, len(p), err)
		}
		copy(p[done:done+n], value[in:])
		return nil
	})
}

// WriteAt implements Memory.
func (mm *MapMemory) WriteAt(p []byte, addr Addr) error {
	if err := mm.check(addr, len(p)); err != nil {
		return fault("write", addr, len(p), err)
	}
	value := make([]byte, mm.valueSize)
	return mm.each(addr, len(p), func(key uint32, in, done, n int) error {
		if n < mm.valueSize {
			if err := mm.m.Lookup(&key, rawValue(value)); err != nil {
				return fault("write", addr, len(p), err)
			}
		}
		copy(value[in:], p[done:done+n])
		if err := mm.m.Update(&key, rawValue(value), ebpf.UpdateExist); err != nil {
			return fault("write", addr, len(p), err)
		}
		return nil
	})
}

// each calls fn for every entry [addr, addr+n) touches, with the offset
// inside the entry, the bytes already handled and the bytes in this entry.
func (mm *MapMemory) each(addr Addr, n int, fn func(key uint32, in, done, n int) error) error {
	off := int(addr - mapBase)
	for done := 0; done < n; {
		key := uint32((off + done) / mm.valueSize)
		in := (off + done) % mm.valueSize
		chunk := min(n-done, mm.valueSize-in)
		if err := fn(key, in, done, chunk); err != nil {
			return err
		}
		done += chunk
	}
	return nil
}

// check requires [addr, addr+n) to lie inside one allocation.
func (mm *MapMemory) check(addr Addr, n int) error {
	if addr < mapBase {
		return errors.New("address below map base")
	}
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	i := sort.Search(len(mm.allocs), func(i int) bool { return mm.allocs[i].end > addr })
	if i == len(mm.allocs) || mm.allocs[i].start > addr {
		return errUnmapped
	}
	if n < 0 || uint64(n) > uint64(mm.allocs[i].end-addr) {
		return fmt.Errorf("access of %d bytes crosses end of buffer at %s", n, mm.allocs[i].start)
	}
	return nil
}

// rawValue hands a buffer to the map codec without copying twice.
type rawValue []byte

func (r rawValue) MarshalBinary() ([]byte, error) { return r, nil }

func (r rawValue) UnmarshalBinary(data []byte) error {
	copy(r, data)
	return nil
}
