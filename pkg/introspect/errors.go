package introspect

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/srodi/procwalk/pkg/boundary"
)

var (
	// ErrInvalidArgument reports a non-positive capacity.
	ErrInvalidArgument error = unix.EINVAL
	// ErrFault reports a null or inaccessible caller address.
	ErrFault = boundary.ErrFault
)

// PartialWriteError is returned when a fault interrupts an ancestry walk
// after some snapshot slots were already written. Those slots stay in the
// caller's buffer and the filled counter was not updated; Committed says how
// many leading slots are valid.
type PartialWriteError struct {
	Committed int64
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("process_ancestors: %d slots committed before fault: %v", e.Committed, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// Committed returns how many snapshot slots hold valid data after err, and
// whether err carried that information at all.
func Committed(err error) (int64, bool) {
	var pw *PartialWriteError
	if errors.As(err, &pw) {
		return pw.Committed, true
	}
	return 0, false
}

// Errno maps an operation result to the raw call ABI: 0, -EINVAL or -EFAULT.
// Errors that carry no errno are reported as faults.
func Errno(err error) int64 {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return -int64(errno)
	}
	return -int64(unix.EFAULT)
}
