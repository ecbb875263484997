package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srodi/procwalk/pkg/config"
	"github.com/srodi/procwalk/pkg/graph"
	"github.com/srodi/procwalk/pkg/graph/procfs"
	"github.com/srodi/procwalk/pkg/graph/psutil"
	"github.com/srodi/procwalk/pkg/introspect"
	"github.com/srodi/procwalk/pkg/report"
	"github.com/srodi/procwalk/pkg/types"
	"github.com/srodi/procwalk/pkg/ui"
)

type ancestorsOptions struct {
	size       int64
	pid        int64
	backend    string
	procRoot   string
	hideKernel bool
	watch      time.Duration
}

func newAncestorsCmd(root *rootOptions) *cobra.Command {
	opts := &ancestorsOptions{}
	cmd := &cobra.Command{
		Use:   "ancestors",
		Short: "Walk the ancestry of a process up to the root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.merge(cmd, root.cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			g := newGraph(cmd.Context(), cfg, opts.pid)
			filter := report.FilterConfig{HideKernel: cfg.HideKernel}

			if cfg.Watch > 0 {
				return watch(cmd.Context(), cmd.OutOrStdout(), cfg.Watch, func(buf *bytes.Buffer) error {
					buf.WriteString(ui.Banner())
					fmt.Fprintf(buf, "procwalk (press Ctrl+C to exit)\n")
					fmt.Fprintf(buf, "Updated: %s | Interval: %v | Backend: %s | Memory: %s\n\n",
						time.Now().Format(time.RFC3339), cfg.Watch, cfg.Backend, cfg.Memory)
					return printAncestors(buf, g, cfg, filter)
				})
			}
			return printAncestors(cmd.OutOrStdout(), g, cfg, filter)
		},
	}
	cmd.Flags().Int64Var(&opts.size, "size", types.DefaultDepth, "maximum number of snapshots, self included")
	cmd.Flags().Int64Var(&opts.pid, "pid", int64(os.Getpid()), "process to start from")
	cmd.Flags().StringVar(&opts.backend, "backend", config.BackendProcfs, "process graph backend (procfs or psutil)")
	cmd.Flags().StringVar(&opts.procRoot, "proc-root", procfs.DefaultRoot, "procfs mount point for the procfs backend")
	cmd.Flags().BoolVar(&opts.hideKernel, "hide-kernel", false, "hide kernel threads such as kthreadd and swapper")
	cmd.Flags().DurationVar(&opts.watch, "watch", 0, "redraw every interval until interrupted (e.g. 2s)")
	return cmd
}

// merge applies flags the user set on top of the file config. A size given
// on the command line is passed through unclamped.
func (o *ancestorsOptions) merge(cmd *cobra.Command, cfg config.Config) config.Config {
	flags := cmd.Flags()
	if flags.Changed("size") {
		cfg.Size = o.size
	}
	if flags.Changed("backend") {
		cfg.Backend = strings.ToLower(o.backend)
	}
	if flags.Changed("proc-root") {
		cfg.ProcRoot = o.procRoot
	}
	if flags.Changed("hide-kernel") {
		hide := o.hideKernel
		cfg.HideKernel = &hide
	}
	if flags.Changed("watch") {
		cfg.Watch = o.watch
	}
	return cfg
}

func newGraph(ctx context.Context, cfg config.Config, pid int64) graph.Graph {
	if cfg.Backend == config.BackendPsutil {
		return psutil.New(ctx, pid, psutil.WithProcRoot(cfg.ProcRoot))
	}
	return procfs.New(procfs.WithRoot(cfg.ProcRoot), procfs.WithSelf(pid))
}

func printAncestors(w io.Writer, g graph.Graph, cfg config.Config, filter report.FilterConfig) error {
	infoSize, filledSize := introspect.AncestorsBuffers(cfg.Size)
	space, release, err := openSpace(cfg.Memory, infoSize, filledSize)
	if err != nil {
		return err
	}
	defer release()

	infos, err := introspect.AncestorsIn(space, g, cfg.Size, introspect.WithLogger(logEntry("process_ancestors")))
	if err != nil && len(infos) == 0 {
		return fmt.Errorf("process_ancestors returned %d: %w", introspect.Errno(err), err)
	}
	rows := report.FilterRows(report.BuildRows(infos), filter)
	if werr := report.WriteTable(w, rows); werr != nil {
		return werr
	}
	fmt.Fprintf(w, "\n%s\n", report.Summary(rows))
	if err != nil {
		return fmt.Errorf("process_ancestors returned %d after %d snapshots: %w", introspect.Errno(err), len(infos), err)
	}
	return nil
}

func logEntry(call string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"component": "introspect", "cmd": call})
}
