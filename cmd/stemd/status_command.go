package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"stemd/internal/deps"
	"stemd/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			pid, running := daemonPID(filepath.Join(cfg.Paths.LogDir, "stemd.pid"))
			if running {
				fmt.Fprintf(out, "Daemon: running (pid %d)\n", pid)
			} else {
				fmt.Fprintln(out, "Daemon: not running")
			}
			fmt.Fprintf(out, "Incoming: %s\n", cfg.Paths.IncomingDir)
			fmt.Fprintf(out, "Library: %s\n", cfg.Paths.LibraryDir)
			fmt.Fprintf(out, "Database: %s\n", cfg.DatabasePath())

			for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
				if status.Available {
					fmt.Fprintf(out, "%s: %s\n", status.Name, status.Command)
				} else {
					fmt.Fprintf(out, "%s: unavailable (%s)\n", status.Name, status.Detail)
				}
			}

			return ctx.withStore(func(store *queue.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"queued", strconv.Itoa(health.Queued)},
					{"running", strconv.Itoa(health.Running)},
					{"done", strconv.Itoa(health.Done)},
					{"error", strconv.Itoa(health.Errored)},
				}
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, 2))
				return nil
			})
		},
	}
}

// daemonPID reads the pid file and checks the process is still alive.
func daemonPID(pidPath string) (int, bool) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if unix.Kill(pid, 0) != nil {
		return 0, false
	}
	return pid, true
}
