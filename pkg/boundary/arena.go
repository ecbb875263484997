package boundary

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Prot is the access allowed on an arena region.
type Prot uint8

const (
	ProtNone  Prot = 0
	ProtRead  Prot = 1 << 0
	ProtWrite Prot = 1 << 1

	ProtReadWrite = ProtRead | ProtWrite
)

const (
	arenaBase  Addr = 0x10000
	arenaAlign      = 0x1000
)

var errUnmapped = errors.New("address not mapped")

// Arena is an in-process stand-in for a caller's address space. Regions are
// separated by unmapped guard gaps, so running past the end of an
// allocation faults the same way a real over-read would.
type Arena struct {
	mu      sync.RWMutex
	regions []*region // sorted by base
	next    Addr
}

type region struct {
	base Addr
	buf  []byte
	prot Prot
}

func (r *region) end() Addr { return r.base + Addr(len(r.buf)) }

// NewArena returns an empty address space.
func NewArena() *Arena {
	return &Arena{next: arenaBase}
}

// Alloc maps a zeroed region of n bytes and returns its base address.
func (a *Arena) Alloc(n int, prot Prot) Addr {
	if n < 0 {
		n = 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	r := &region{base: a.next, buf: make([]byte, n), prot: prot}
	a.regions = append(a.regions, r)
	// One guard page after every region.
	span := (Addr(n) + arenaAlign - 1) &^ (arenaAlign - 1)
	a.next += span + arenaAlign
	return r.base
}

// Allocate implements Space with a read-write region.
func (a *Arena) Allocate(n int) (Addr, error) {
	return a.Alloc(n, ProtReadWrite), nil
}

// AllocInt64s maps an array holding values and returns its address.
func (a *Arena) AllocInt64s(values []int64, prot Prot) Addr {
	addr := a.Alloc(len(values)*8, ProtReadWrite)
	for i, v := range values {
		// The region was just mapped read-write; this cannot fault.
		_ = WriteInt64(a, addr+Addr(i*8), v)
	}
	if prot != ProtReadWrite {
		_ = a.Protect(addr, prot)
	}
	return addr
}

// Protect changes the access allowed on the region starting at addr.
func (a *Arena) Protect(addr Addr, prot Prot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.regionAt(addr)
	if r == nil || r.base != addr {
		return fmt.Errorf("protect %s: %w", addr, errUnmapped)
	}
	r.prot = prot
	return nil
}

// Unmap removes the region starting at addr.
func (a *Arena) Unmap(addr Addr) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.regions {
		if r.base == addr {
			a.regions = append(a.regions[:i], a.regions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("unmap %s: %w", addr, errUnmapped)
}

// Bytes returns a copy of n bytes at addr regardless of protection.
func (a *Arena) Bytes(addr Addr, n int) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, off, err := a.span(addr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[off:])
	return out, nil
}

// ReadAt implements Memory.
func (a *Arena) ReadAt(p []byte, addr Addr) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, off, err := a.span(addr, len(p))
	if err != nil {
		return fault("read", addr, len(p), err)
	}
	if r.prot&ProtRead == 0 {
		return fault("read", addr, len(p), errors.New("region not readable"))
	}
	copy(p, r.buf[off:])
	return nil
}

// WriteAt implements Memory.
func (a *Arena) WriteAt(p []byte, addr Addr) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, off, err := a.span(addr, len(p))
	if err != nil {
		return fault("write", addr, len(p), err)
	}
	if r.prot&ProtWrite == 0 {
		return fault("write", addr, len(p), errors.New("region not writable"))
	}
	copy(r.buf[off:], p)
	return nil
}

// span resolves [addr, addr+n) to a single region. Caller holds a.mu.
func (a *Arena) span(addr Addr, n int) (*region, int, error) {
	if addr == Null {
		return nil, 0, errUnmapped
	}
	r := a.regionAt(addr)
	if r == nil {
		return nil, 0, errUnmapped
	}
	if n < 0 || uint64(n) > uint64(r.end()-addr) {
		return nil, 0, fmt.Errorf("access of %d bytes crosses end of region at %s", n, r.base)
	}
	return r, int(addr - r.base), nil
}

func (a *Arena) regionAt(addr Addr) *region {
	i := sort.Search(len(a.regions), func(i int) bool { return a.regions[i].end() > addr })
	if i == len(a.regions) || a.regions[i].base > addr {
		return nil
	}
	return a.regions[i]
}
