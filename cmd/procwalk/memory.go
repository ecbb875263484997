package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/srodi/procwalk/pkg/boundary"
	"github.com/srodi/procwalk/pkg/config"
	"github.com/srodi/procwalk/pkg/types"
)

// openSpace opens the caller memory a call runs against, sized for buffers
// of the given byte counts. release frees it.
func openSpace(kind string, sizes ...int) (boundary.Space, func(), error) {
	switch kind {
	case config.MemoryProcessVM:
		vm, err := boundary.NewProcessVM(os.Getpid())
		if err != nil {
			return nil, nil, err
		}
		return vm, closer("processvm", vm.Close), nil
	case config.MemoryBPFMap:
		mm, err := boundary.NewMapMemory(types.ProcessInfoSize, boundary.SlotsFor(types.ProcessInfoSize, sizes...))
		if err != nil {
			return nil, nil, err
		}
		return mm, closer("bpfmap", mm.Close), nil
	default:
		return boundary.NewArena(), func() {}, nil
	}
}

func closer(kind string, release func() error) func() {
	return func() {
		if err := release(); err != nil {
			logrus.WithError(err).WithField("memory", kind).Warn("releasing caller memory")
		}
	}
}
