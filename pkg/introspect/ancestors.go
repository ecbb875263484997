package introspect

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srodi/procwalk/pkg/boundary"
	"github.com/srodi/procwalk/pkg/graph"
	"github.com/srodi/procwalk/pkg/types"
)

// walkEnd is why an ancestry walk stopped.
type walkEnd int

const (
	capacityReached walkEnd = iota
	rootReached
)

func (w walkEnd) String() string {
	if w == rootReached {
		return "root-reached"
	}
	return "capacity-reached"
}

// ProcessAncestors writes a snapshot of the calling process to slot 0 of
// the array at infoAddr, then one for each ancestor in turn, until size
// slots are filled or the root (the process that is its own parent) has
// been recorded. The number of slots filled is then written to filledAddr.
//
// A fault while writing slot k leaves slots 0..k-1 in place and filledAddr
// untouched; the returned *PartialWriteError reports k.
func (s *Service) ProcessAncestors(infoAddr boundary.Addr, size int64, filledAddr boundary.Addr) error {
	log := s.log.WithFields(logrus.Fields{"call": "process_ancestors", "size": size})

	if size <= 0 {
		return fmt.Errorf("process_ancestors: size %d: %w", size, ErrInvalidArgument)
	}
	if infoAddr == boundary.Null || filledAddr == boundary.Null {
		return fmt.Errorf("process_ancestors: null pointer: %w", ErrFault)
	}
	if s.graph == nil {
		return fmt.Errorf("process_ancestors: no process graph: %w", ErrFault)
	}
	cur, ok := s.graph.Current()
	if !ok {
		return fmt.Errorf("process_ancestors: calling process unresolvable: %w", ErrFault)
	}

	var filled int64
	end := capacityReached
	for filled < size {
		info := s.snapshot(log, cur)

		slot, err := boundary.Index(infoAddr, filled, types.ProcessInfoSize)
		if err == nil {
			err = boundary.Write(s.mem, slot, info)
		}
		if err != nil {
			log.WithField("slot", filled).WithError(err).Debug("slot fault")
			if filled == 0 {
				return fmt.Errorf("process_ancestors: slot 0: %w", err)
			}
			return &PartialWriteError{Committed: filled, Err: err}
		}
		filled++

		parent := s.graph.ParentOf(cur)
		if parent.PID == cur.PID {
			end = rootReached
			break
		}
		cur = parent
	}

	if err := boundary.WriteInt64(s.mem, filledAddr, filled); err != nil {
		return &PartialWriteError{Committed: filled, Err: err}
	}
	log.WithFields(logrus.Fields{"filled": filled, "end": end}).Debug("done")
	return nil
}

// snapshot captures t and scans its child and sibling relations to the end.
func (s *Service) snapshot(log *logrus.Entry, t graph.Task) types.ProcessInfo {
	info := types.ProcessInfo{
		PID:    t.PID,
		State:  t.State,
		UID:    types.NoUID,
		NVCSW:  t.NVCSW,
		NIVCSW: t.NIVCSW,
	}
	info.SetName(t.Comm)
	if cred, ok := s.graph.CredentialOf(t); ok {
		info.UID = cred.UID
	}

	debug := log.Logger.IsLevelEnabled(logrus.DebugLevel)
	for child := range s.graph.ChildrenOf(t) {
		if debug {
			log.Debugf("    child pid %d = '%s'", child.PID, child.Comm)
		}
		info.NumChildren++
	}
	for sib := range s.graph.SiblingsOf(t) {
		if debug {
			log.Debugf("    sibling pid %d = '%s'", sib.PID, sib.Comm)
		}
		info.NumSiblings++
	}

	log.WithFields(logrus.Fields{
		"pid":          info.PID,
		"name":         t.Comm,
		"state":        info.State,
		"uid":          info.UID,
		"nvcsw":        info.NVCSW,
		"nivcsw":       info.NIVCSW,
		"num_children": info.NumChildren,
		"num_siblings": info.NumSiblings,
	}).Debug("visit")
	return info
}
