package main

import (
	"github.com/spf13/cobra"

	"stemd/internal/daemon"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the stem separation daemon",
		Long: "Run watches the incoming directory, queues new audio, and processes\n" +
			"jobs until interrupted. With --once it performs a single scan, drains\n" +
			"the queue, and exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemon.Run(cmd.Context(), cfg, daemon.Options{
				LogLevel: logLevel,
				Once:     once,
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Scan once, drain the queue, and exit")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override configured log level (debug, info, warn, error)")
	return cmd
}
