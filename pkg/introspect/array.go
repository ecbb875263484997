package introspect

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srodi/procwalk/pkg/boundary"
	"github.com/srodi/procwalk/pkg/types"
)

// ArrayStats reads size int64 elements starting at dataAddr and writes their
// minimum, maximum and wrapping sum to statsAddr as one record.
//
// Only the first size elements are read, whatever the array's real length.
// Any element fault aborts the call before statsAddr is touched.
func (s *Service) ArrayStats(statsAddr, dataAddr boundary.Addr, size int64) error {
	log := s.log.WithFields(logrus.Fields{"call": "array_stats", "size": size})
	log.Debug("enter")

	if size <= 0 {
		return fmt.Errorf("array_stats: size %d: %w", size, ErrInvalidArgument)
	}
	if statsAddr == boundary.Null || dataAddr == boundary.Null {
		return fmt.Errorf("array_stats: null pointer: %w", ErrFault)
	}

	stats := types.NewArrayStats()
	for i := int64(0); i < size; i++ {
		addr, err := boundary.Index(dataAddr, i, types.Int64Size)
		if err != nil {
			return fmt.Errorf("array_stats: element %d: %w", i, err)
		}
		item, err := boundary.ReadInt64(s.mem, addr)
		if err != nil {
			log.WithField("index", i).WithError(err).Debug("element fault")
			return fmt.Errorf("array_stats: element %d: %w", i, err)
		}
		stats.Fold(item)
	}

	if err := boundary.Write(s.mem, statsAddr, stats); err != nil {
		return fmt.Errorf("array_stats: result: %w", err)
	}
	log.WithFields(logrus.Fields{"min": stats.Min, "max": stats.Max, "sum": stats.Sum}).Debug("done")
	return nil
}
