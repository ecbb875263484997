package introspect

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/srodi/procwalk/pkg/boundary"
	"github.com/srodi/procwalk/pkg/graph"
	"github.com/srodi/procwalk/pkg/types"
)

// Service services calls against one caller's memory and one process graph.
type Service struct {
	mem   boundary.Memory
	graph graph.Graph
	log   *logrus.Entry
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for per-step diagnostics.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// New returns a Service. g may be nil for callers that only reduce arrays;
// ProcessAncestors then faults because the caller cannot be resolved.
func New(mem boundary.Memory, g graph.Graph, opts ...Option) *Service {
	s := &Service{
		mem:   mem,
		graph: g,
		log:   logrus.WithField("component", "introspect"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Syscall dispatches a raw call by number with the fixed argument order of
// the call ABI and returns 0 or a negative errno.
func (s *Service) Syscall(nr int64, a0, a1, a2 uint64) int64 {
	switch nr {
	case types.SysArrayStats:
		return Errno(s.ArrayStats(boundary.Addr(a0), boundary.Addr(a1), int64(a2)))
	case types.SysProcessAncestors:
		return Errno(s.ProcessAncestors(boundary.Addr(a0), int64(a1), boundary.Addr(a2)))
	default:
		s.log.WithField("nr", nr).Debug("unknown call number")
		return -int64(unix.ENOSYS)
	}
}
