package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"stemd/internal/config"
	"stemd/internal/ingest"
	"stemd/internal/logging"
	"stemd/internal/media/ffmpeg"
	"stemd/internal/queue"
	"stemd/internal/separation"
	"stemd/internal/services/demucs"
	"stemd/internal/sidecar"
)

// AlbumLockName is the named lock serializing album processing across
// workers.
const AlbumLockName = "album_busy"

// ProcessFunc renders one claimed job and returns its output path, manifest
// path, and notes.
type ProcessFunc func(ctx context.Context, job *queue.Job) (output, manifestPath string, notes map[string]any, err error)

// Executor claims queued jobs and processes them one at a time.
type Executor struct {
	cfg     *config.Config
	store   *queue.Store
	tool    *ffmpeg.Tool
	engine  demucs.Client
	logger  *slog.Logger
	holder  string
	process ProcessFunc
	alive   func(pid int) bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithEngine replaces the separation engine.
func WithEngine(engine demucs.Client) Option {
	return func(e *Executor) {
		if engine != nil {
			e.engine = engine
		}
	}
}

// WithTool replaces the ffmpeg wrapper.
func WithTool(tool *ffmpeg.Tool) Option {
	return func(e *Executor) {
		if tool != nil {
			e.tool = tool
		}
	}
}

// WithProcessFunc replaces the whole job pipeline. Tests use this to
// exercise claim, lock, and cleanup behaviour without external tools.
func WithProcessFunc(fn ProcessFunc) Option {
	return func(e *Executor) {
		if fn != nil {
			e.process = fn
		}
	}
}

// NewExecutor constructs an Executor bound to the store.
func NewExecutor(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	tool := ffmpeg.NewTool(cfg.FFmpegBinary(), cfg.FFprobeBinary())
	tool.Timeout = time.Duration(cfg.Worker.ToolTimeoutSec) * time.Second
	e := &Executor{
		cfg:    cfg,
		store:  store,
		tool:   tool,
		logger: logger,
		holder: fmt.Sprintf("%s:%d", hostname, os.Getpid()),
		alive: func(pid int) bool {
			return unix.Kill(pid, 0) == nil
		},
	}
	e.engine = demucs.NewCLI(
		demucs.WithBinary(cfg.SeparatorBinary()),
		demucs.WithDevice(cfg.Separation.Device),
	)
	e.process = e.processJob
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Holder returns this executor's lock holder token.
func (e *Executor) Holder() string {
	return e.holder
}

func (e *Executor) separator(params sidecar.Params) *separation.Separator {
	settings := separation.Settings{
		Model:           params.Model,
		SampleRate:      params.SampleRate,
		ChunkingEnabled: e.cfg.Separation.ChunkingEnabled,
		ChunkMax:        e.cfg.Separation.ChunkMax,
		ChunkOverlapSec: e.cfg.Separation.ChunkOverlapSec,
		CrossfadeMS:     e.cfg.Separation.CrossfadeMS,
		RetryBackoff:    time.Duration(e.cfg.Separation.RetryBackoffSec) * time.Second,
		ChunkTimeout:    time.Duration(e.cfg.Separation.ChunkTimeoutSec) * time.Second,
		ChunkMaxRetries: e.cfg.Separation.ChunkMaxRetries,
	}
	return separation.NewSeparator(e.engine, e.tool, settings, e.logger)
}

// Recover returns jobs left running by a previous process to the queue and
// clears an album lock whose holder is dead. Call once at startup before
// the poll loop.
func (e *Executor) Recover(ctx context.Context) error {
	requeued, err := e.store.RequeueRunning(ctx)
	if err != nil {
		return err
	}
	if requeued > 0 {
		e.logger.Info("requeued interrupted jobs", logging.Int64("count", requeued))
	}
	e.reclaimStaleAlbumLock(ctx)
	return nil
}

// reclaimStaleAlbumLock force-releases the album lock when its recorded
// holder is a dead process on this host.
func (e *Executor) reclaimStaleAlbumLock(ctx context.Context) {
	holder, err := e.store.LockHolder(ctx, AlbumLockName)
	if err != nil || holder == "" {
		return
	}
	host, pidText, ok := strings.Cut(holder, ":")
	if !ok {
		return
	}
	myHost, _, _ := strings.Cut(e.holder, ":")
	if host != myHost {
		return
	}
	pid, err := strconv.Atoi(pidText)
	if err != nil {
		return
	}
	if pid != os.Getpid() && e.alive(pid) {
		return
	}
	if err := e.store.ForceReleaseLock(ctx, AlbumLockName); err != nil {
		e.logger.Warn("stale album lock release failed", logging.Error(err))
		return
	}
	e.logger.Info("reclaimed stale album lock", logging.String("holder", holder))
}

// Run polls for queued jobs until the context is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	poll := time.Duration(e.cfg.Worker.PollIntervalSec) * time.Second
	if poll <= 0 {
		poll = time.Second
	}
	backoff := time.Duration(e.cfg.Worker.ErrorBackoffSec) * time.Second

	for {
		processed, err := e.ProcessNext(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case err != nil:
			e.logger.Error("job processing cycle failed", logging.Error(err))
			if sleepErr := sleepContext(ctx, backoff); sleepErr != nil {
				return sleepErr
			}
		case !processed:
			if sleepErr := sleepContext(ctx, poll); sleepErr != nil {
				return sleepErr
			}
		}
	}
}

// DrainOnce processes queued jobs until the queue is empty, then returns.
func (e *Executor) DrainOnce(ctx context.Context) error {
	for {
		processed, err := e.ProcessNext(ctx)
		if err != nil {
			return err
		}
		if !processed {
			return nil
		}
	}
}

// ProcessNext claims and fully handles one queued job. It reports whether a
// job was handled. Album jobs require the album lock; on contention the job
// goes back to the queue untouched.
func (e *Executor) ProcessNext(ctx context.Context) (bool, error) {
	job, err := e.store.NextQueued(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	if err := e.store.MarkRunning(ctx, job.ID); err != nil {
		return false, err
	}

	lockHeld := false
	if job.Kind == queue.KindAlbum {
		acquired, err := e.acquireAlbumLock(ctx)
		if err != nil {
			return false, err
		}
		if !acquired {
			e.logger.Info("album lock busy, requeueing job", logging.Int64("job", job.ID))
			if requeueErr := e.store.Requeue(ctx, job.ID); requeueErr != nil {
				return false, requeueErr
			}
			_ = sleepContext(ctx, time.Duration(e.cfg.Worker.LockRetrySec)*time.Second)
			return false, nil
		}
		lockHeld = true
	}

	defer e.cleanupJob(ctx, job, lockHeld)

	e.logger.Info("processing job",
		logging.Int64("job", job.ID),
		logging.String("kind", string(job.Kind)),
		logging.String("input", job.InputPath))

	output, manifestPath, notes, processErr := e.process(ctx, job)
	if processErr != nil {
		e.logger.Error("job failed",
			logging.Int64("job", job.ID),
			logging.Error(processErr))
		if markErr := e.store.MarkError(ctx, job.ID, processErr.Error(), notes); markErr != nil {
			return true, markErr
		}
		return true, nil
	}

	if markErr := e.store.MarkDone(ctx, job.ID, output, manifestPath, notes); markErr != nil {
		return true, markErr
	}
	e.logger.Info("job done",
		logging.Int64("job", job.ID),
		logging.String("output", output))
	return true, nil
}

// acquireAlbumLock tries to take the album lock, reclaiming it first when
// the recorded holder is dead.
func (e *Executor) acquireAlbumLock(ctx context.Context) (bool, error) {
	acquired, err := e.store.AcquireLock(ctx, AlbumLockName, e.holder)
	if err != nil || acquired {
		return acquired, err
	}
	e.reclaimStaleAlbumLock(ctx)
	return e.store.AcquireLock(ctx, AlbumLockName, e.holder)
}

// cleanupJob releases the album lock and removes on-disk queue markers.
// Runs on every outcome so no lock or marker outlives its job.
func (e *Executor) cleanupJob(ctx context.Context, job *queue.Job, lockHeld bool) {
	if lockHeld {
		if err := e.store.ReleaseLock(ctx, AlbumLockName, e.holder); err != nil {
			e.logger.Warn("album lock release failed", logging.Error(err))
		}
	}
	if info, err := os.Stat(job.InputPath); err == nil && info.IsDir() {
		ingest.RemoveAlbumLockedMarker(job.InputPath)
	} else {
		ingest.RemoveQueuedMarker(e.cfg.Paths.IncomingDir, job.InputPath)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
