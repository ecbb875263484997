//go:build !linux
// +build !linux

package boundary

// MapMemory is a placeholder on non-Linux platforms.
type MapMemory struct{}

// NewMapMemory returns an error because BPF maps are only supported on Linux.
func NewMapMemory(valueSize, entries int) (*MapMemory, error) {
	return nil, ErrUnsupported
}

// Base always returns Null.
func (mm *MapMemory) Base() Addr { return Null }

// Allocate always fails on unsupported platforms.
func (mm *MapMemory) Allocate(n int) (Addr, error) { return Null, ErrUnsupported }

// Close is a no-op stub.
func (mm *MapMemory) Close() error { return nil }

// ReadAt always faults on unsupported platforms.
func (mm *MapMemory) ReadAt(p []byte, addr Addr) error {
	return fault("read", addr, len(p), ErrUnsupported)
}

// WriteAt always faults on unsupported platforms.
func (mm *MapMemory) WriteAt(p []byte, addr Addr) error {
	return fault("write", addr, len(p), ErrUnsupported)
}
