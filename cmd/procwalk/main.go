package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srodi/procwalk/pkg/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
	memory     string
	cfg        config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "procwalk: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "procwalk",
		Short:         "Reduce arrays and walk process ancestry across a caller memory boundary",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = opts.logLevel
			}
			if cmd.Flags().Changed("memory") {
				cfg.Memory = strings.ToLower(opts.memory)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logrus.SetOutput(cmd.ErrOrStderr())
			logrus.SetLevel(level)
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.memory, "memory", config.MemoryArena, "caller memory the calls run against (arena, processvm or bpfmap)")

	cmd.AddCommand(newStatsCmd(opts), newAncestorsCmd(opts))
	return cmd
}
