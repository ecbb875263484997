//go:build !linux
// +build !linux

package boundary

// ProcessVM is a placeholder on non-Linux platforms.
type ProcessVM struct{}

// NewProcessVM returns an error because process_vm_readv is Linux only.
func NewProcessVM(pid int) (*ProcessVM, error) {
	return nil, ErrUnsupported
}

// PID always returns zero.
func (m *ProcessVM) PID() int { return 0 }

// Allocate always fails on unsupported platforms.
func (m *ProcessVM) Allocate(n int) (Addr, error) { return Null, ErrUnsupported }

// Close is a no-op stub.
func (m *ProcessVM) Close() error { return nil }

// ReadAt always faults on unsupported platforms.
func (m *ProcessVM) ReadAt(p []byte, addr Addr) error {
	return fault("read", addr, len(p), ErrUnsupported)
}

// WriteAt always faults on unsupported platforms.
func (m *ProcessVM) WriteAt(p []byte, addr Addr) error {
	return fault("write", addr, len(p), ErrUnsupported)
}
