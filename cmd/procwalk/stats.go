package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/srodi/procwalk/pkg/introspect"
	"github.com/srodi/procwalk/pkg/report"
	"github.com/srodi/procwalk/pkg/types"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	var size int64
	cmd := &cobra.Command{
		Use:   "stats [--size N] VALUE...",
		Short: "Compute min, max and sum of a list of integers",
		Long: "Copies the values into caller memory (see --memory) and runs the array reduction over\n" +
			"the first --size of them (all of them by default). A size past the end faults.\n" +
			"Put negative values after --.",
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make([]int64, 0, len(args))
			for _, arg := range args {
				v, err := strconv.ParseInt(arg, 0, 64)
				if err != nil {
					return fmt.Errorf("invalid value %q: %w", arg, err)
				}
				values = append(values, v)
			}
			if !cmd.Flags().Changed("size") {
				size = int64(len(values))
			}

			space, release, err := openSpace(root.cfg.Memory, len(values)*types.Int64Size, types.ArrayStatsSize)
			if err != nil {
				return err
			}
			defer release()

			stats, err := introspect.ReduceIn(space, values, size, introspect.WithLogger(logEntry("array_stats")))
			if err != nil {
				return fmt.Errorf("array_stats returned %d: %w", introspect.Errno(err), err)
			}
			return report.WriteStats(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().Int64Var(&size, "size", 0, "number of elements to read (default: all values)")
	return cmd
}
