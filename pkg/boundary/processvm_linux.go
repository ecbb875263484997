//go:build linux
// +build linux

package boundary

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ProcessVM is the memory of another process, reached with
// process_vm_readv(2) and process_vm_writev(2). The kernel validates every
// transfer against the target's mappings, so bad addresses fault exactly as
// they would for a real syscall argument.
type ProcessVM struct {
	pid int

	mu       sync.Mutex
	mappings [][]byte
}

// NewProcessVM targets the address space of pid.
func NewProcessVM(pid int) (*ProcessVM, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	return &ProcessVM{pid: pid}, nil
}

// PID returns the target process.
func (m *ProcessVM) PID() int { return m.pid }

// Allocate implements Space. It only works when the target is this process:
// each buffer gets its own anonymous mapping, placed flush against an
// inaccessible guard page so running past its end faults.
func (m *ProcessVM) Allocate(n int) (Addr, error) {
	if m.pid != os.Getpid() {
		return Null, fmt.Errorf("allocate in pid %d: only the calling process can host buffers", m.pid)
	}
	if n <= 0 {
		return Null, fmt.Errorf("invalid allocation of %d bytes", n)
	}
	page := os.Getpagesize()
	size := (n + 7) &^ 7
	data := (size + page - 1) / page * page

	mem, err := unix.Mmap(-1, 0, data+page, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return Null, fmt.Errorf("mapping %d bytes: %w", data+page, err)
	}
	if err := unix.Mprotect(mem[data:], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mem)
		return Null, fmt.Errorf("protecting guard page: %w", err)
	}

	m.mu.Lock()
	m.mappings = append(m.mappings, mem)
	m.mu.Unlock()
	return AddrOf(mem[data-size : data]), nil
}

// Close unmaps every buffer handed out by Allocate.
func (m *ProcessVM) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, mem := range m.mappings {
		errs = append(errs, unix.Munmap(mem))
	}
	m.mappings = nil
	return errors.Join(errs...)
}

// ReadAt implements Memory.
func (m *ProcessVM) ReadAt(p []byte, addr Addr) error {
	if len(p) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &p[0]}}
	local[0].SetLen(len(p))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(p)}}
	n, err := unix.ProcessVMReadv(m.pid, local, remote, 0)
	if err != nil {
		return fault("read", addr, len(p), err)
	}
	if n != len(p) {
		return fault("read", addr, len(p), fmt.Errorf("short read of %d bytes", n))
	}
	return nil
}

// WriteAt implements Memory.
func (m *ProcessVM) WriteAt(p []byte, addr Addr) error {
	if len(p) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &p[0]}}
	local[0].SetLen(len(p))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(p)}}
	n, err := unix.ProcessVMWritev(m.pid, local, remote, 0)
	if err != nil {
		return fault("write", addr, len(p), err)
	}
	if n != len(p) {
		return fault("write", addr, len(p), fmt.Errorf("short write of %d bytes", n))
	}
	return nil
}

// AddrOf returns the address of the first element of a heap-allocated
// slice in this process, for use with a ProcessVM that targets os.Getpid().
// The caller must keep the slice alive while the address is in use.
func AddrOf[T any](s []T) Addr {
	if len(s) == 0 {
		return Null
	}
	return Addr(uintptr(unsafe.Pointer(unsafe.SliceData(s))))
}
