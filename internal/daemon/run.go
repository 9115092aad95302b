package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"

	"stemd/internal/config"
	"stemd/internal/deps"
	"stemd/internal/logging"
	"stemd/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	Once     bool
}

// Run starts the stemd runtime. In daemon mode it blocks until SIGINT or
// SIGTERM. With Once set it performs a single scan, drains the queue, and
// exits.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("run_id", uuid.NewString()))

	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		logger.Info("dependency",
			logging.String("name", status.Name),
			logging.String("command", status.Command),
			logging.Bool("available", status.Available))
		if !status.Available && !status.Optional {
			logger.Warn("required binary missing, jobs will fail until it is installed",
				logging.String("name", status.Name),
				logging.String("detail", status.Detail))
		}
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	d, err := New(cfg, store, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if opts.Once {
		if err := d.Executor().Recover(signalCtx); err != nil {
			return fmt.Errorf("recover queue: %w", err)
		}
		if err := d.Scanner().ScanOnce(signalCtx); err != nil {
			return fmt.Errorf("scan incoming: %w", err)
		}
		return d.Executor().DrainOnce(signalCtx)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "stemd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("stemd shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
