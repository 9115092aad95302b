package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"stemd/internal/config"
	"stemd/internal/ingest"
	"stemd/internal/logging"
	"stemd/internal/queue"
	"stemd/internal/worker"
)

// Daemon coordinates the ingest scanner, filesystem watcher, and job
// executor, and enforces single-instance execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	scanner  *ingest.Scanner
	executor *worker.Executor

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Queue        queue.HealthSummary
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "stemd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		scanner:  ingest.NewScanner(cfg, store, logging.NewComponentLogger(logger, "ingest")),
		executor: worker.NewExecutor(cfg, store, logging.NewComponentLogger(logger, "worker")),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Scanner exposes the ingest scanner for one-shot invocations.
func (d *Daemon) Scanner() *ingest.Scanner {
	return d.scanner
}

// Executor exposes the job executor for one-shot invocations.
func (d *Daemon) Executor() *worker.Executor {
	return d.executor
}

// Start acquires the instance lock, recovers interrupted jobs, and launches
// the scanner, watcher, and executor loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stemd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.executor.Recover(runCtx); err != nil {
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("recover queue: %w", err)
	}

	if err := d.scanner.ScanOnce(runCtx); err != nil {
		d.logger.Warn("initial scan failed", logging.Error(err))
	}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := d.executor.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("executor loop exited", logging.Error(err))
		}
	}()
	go func() {
		defer d.wg.Done()
		d.rescanLoop(runCtx)
	}()

	if err := d.startWatcher(runCtx); err != nil {
		d.logger.Warn("filesystem watcher unavailable, relying on rescans", logging.Error(err))
	}

	d.running.Store(true)
	d.logger.Info("stemd daemon started",
		logging.String("lock", d.lockPath),
		logging.String("incoming", d.cfg.Paths.IncomingDir))
	return nil
}

// Stop stops background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("stemd daemon stopped")
}

// Close stops the daemon and closes the queue store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	health, err := d.store.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Queue:        health,
		QueueDBPath:  d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}, nil
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// rescanLoop periodically sweeps the incoming directory. It backstops the
// watcher for files that arrived while the daemon was down or whose events
// were missed.
func (d *Daemon) rescanLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.Ingest.RescanIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.scanner.ScanOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("rescan failed", logging.Error(err))
			}
		}
	}
}
