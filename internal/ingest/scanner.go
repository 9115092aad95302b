package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"stemd/internal/config"
	"stemd/internal/fileutil"
	"stemd/internal/logging"
	"stemd/internal/media/ffprobe"
	"stemd/internal/queue"
	"stemd/internal/sidecar"
)

// ProbeFunc validates that a file is readable audio before it is enqueued.
type ProbeFunc func(ctx context.Context, path string) error

// Scanner turns settled files under the incoming root into queued jobs.
type Scanner struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	probe  ProbeFunc
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithProbe replaces the input probe. Tests use this to avoid shelling out.
func WithProbe(probe ProbeFunc) Option {
	return func(s *Scanner) {
		if probe != nil {
			s.probe = probe
		}
	}
}

// NewScanner constructs a Scanner over the configured incoming root.
func NewScanner(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scanner{cfg: cfg, store: store, logger: logger}
	s.probe = func(ctx context.Context, path string) error {
		result, err := ffprobe.Inspect(ctx, cfg.FFprobeBinary(), path)
		if err != nil {
			return err
		}
		if result.AudioStreamCount() == 0 {
			return fmt.Errorf("no audio streams in %s", path)
		}
		return nil
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanOnce sweeps the whole incoming tree: album directories first so their
// tracks are claimed before individual file handling, then loose files.
// Failures on one entry never stop the sweep.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	incoming := filepath.Clean(s.cfg.Paths.IncomingDir)

	if s.cfg.Ingest.AlbumsEnabled {
		entries, err := os.ReadDir(incoming)
		if err != nil {
			return fmt.Errorf("read incoming dir: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() || entry.Name() == LockDirName {
				continue
			}
			if err := s.HandleNewAlbum(ctx, filepath.Join(incoming, entry.Name())); err != nil {
				s.logger.Warn("album ingest failed",
					logging.String("album", entry.Name()),
					logging.Error(err))
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	walkErr := filepath.WalkDir(incoming, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if entry.Name() == LockDirName {
				return fs.SkipDir
			}
			return nil
		}
		if s.underStaging(path) {
			return nil
		}
		if err := s.HandleNewFile(ctx, path); err != nil && !errors.Is(err, ErrLocked) {
			s.logger.Warn("file ingest failed",
				logging.String("file", path),
				logging.Error(err))
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		return walkErr
	}
	return ctx.Err()
}

// HandleNewFile runs one file through the full admission pipeline: marker
// and album checks, size and stability gates, occurrence dedup policy,
// corruption probe, and finally hashing plus conditional enqueue.
func (s *Scanner) HandleNewFile(ctx context.Context, path string) error {
	incoming := filepath.Clean(s.cfg.Paths.IncomingDir)

	if HasQueuedMarker(incoming, path) {
		return nil
	}
	if s.cfg.Ingest.AlbumsEnabled && ParentHasAlbumMarker(filepath.Dir(path), incoming) {
		return nil
	}
	if !s.isAudioFile(path) {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		// Vanished between listing and handling.
		return nil
	}
	if info.Size() < s.cfg.Ingest.MinInputBytes {
		return nil
	}
	if !WaitUntilStable(ctx, path, s.cfg.Ingest.StabilityPasses, s.stabilityDelay()) {
		return nil
	}

	incrementedPreEnqueue := false
	if s.cfg.Ingest.DedupeByFilename {
		proceed, renamedPath, incremented, err := s.applyOccurrencePolicy(ctx, path)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
		path = renamedPath
		incrementedPreEnqueue = incremented
	}

	release, err := acquireAdvisoryLock(incoming, path)
	if err != nil {
		return err
	}
	defer release()

	if probeErr := s.probe(ctx, path); probeErr != nil {
		return s.quarantine(path, probeErr)
	}

	hash, err := fileutil.HashFile(path)
	if err != nil {
		return fmt.Errorf("hash input: %w", err)
	}
	params, err := sidecar.ParamsFor(s.cfg, path)
	if err != nil {
		return err
	}

	if s.cfg.Ingest.StagingEnabled {
		staged, stageErr := s.stageFile(path)
		if stageErr != nil {
			return stageErr
		}
		path = staged
	}

	job, inserted, err := s.store.EnqueueIfNew(ctx, queue.Spec{
		InputPath:   path,
		Fingerprint: hash,
		Model:       params.Model,
		StemSet:     params.StemSet,
		SampleRate:  params.SampleRate,
		BitDepth:    params.BitDepth,
		Codec:       params.Codec,
		Kind:        queue.KindSingle,
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.Debug("duplicate content ignored", logging.String("file", filepath.Base(path)))
		return nil
	}

	if err := CreateQueuedMarker(incoming, path); err != nil {
		s.logger.Warn("queued marker write failed",
			logging.String("file", path),
			logging.Error(err))
	}
	if s.cfg.Ingest.DedupeByFilename && !incrementedPreEnqueue {
		base := CanonicalBasename(filepath.Base(path))
		if _, err := s.store.IncrementFilenameCount(ctx, base); err != nil {
			s.logger.Warn("filename count update failed",
				logging.String("basename", base),
				logging.Error(err))
		}
	}
	s.logger.Info("enqueued file",
		logging.Int64("job", job.ID),
		logging.String("file", filepath.Base(path)),
		logging.String("sha", hash[:10]),
		logging.String("stems", params.StemSet),
		logging.String("model", params.Model))
	return nil
}

// applyOccurrencePolicy implements the filename dedup ladder. First
// occurrence passes straight through. The second is renamed with a " (2)"
// suffix when configured. The third and beyond are archived, purged, or left
// alone per policy, always bumping the occurrence counter so the policy
// stays in the >=3rd branch. Any occurrence is deferred untouched while a
// job with the same basename is still queued or running.
func (s *Scanner) applyOccurrencePolicy(ctx context.Context, path string) (proceed bool, outPath string, incremented bool, err error) {
	basename := filepath.Base(path)
	count, err := s.store.FilenameCount(ctx, basename)
	if err != nil {
		return false, "", false, err
	}
	active, err := s.store.BasenameActive(ctx, basename)
	if err != nil {
		return false, "", false, err
	}

	switch {
	case count >= 2:
		if active {
			s.logger.Info("duplicate deferred until active job completes",
				logging.String("file", basename))
			return false, "", false, nil
		}
		if _, err := s.store.IncrementFilenameCount(ctx, basename); err != nil {
			s.logger.Warn("filename count update failed", logging.Error(err))
		}
		return false, "", false, s.cleanupDuplicate(path)

	case count == 1 && s.cfg.Ingest.DedupeRenameSecond:
		if active {
			s.logger.Info("second occurrence deferred until active job completes",
				logging.String("file", basename))
			return false, "", false, nil
		}
		firstPath, err := s.store.FirstJobPath(ctx, basename)
		if err != nil {
			return false, "", false, err
		}
		if firstPath != path {
			renamed := fileutil.UniquePath(strings.TrimSuffix(path, filepath.Ext(path)) + " (2)" + filepath.Ext(path))
			if renameErr := os.Rename(path, renamed); renameErr != nil {
				return false, "", false, fmt.Errorf("rename duplicate: %w", renameErr)
			}
			s.logger.Info("renamed duplicate",
				logging.String("from", basename),
				logging.String("to", filepath.Base(renamed)))
			path = renamed
		}
		if _, err := s.store.IncrementFilenameCount(ctx, basename); err != nil {
			s.logger.Warn("filename count update failed", logging.Error(err))
		}
		return true, path, true, nil
	}

	return true, path, false, nil
}

// cleanupDuplicate disposes of a >=3rd occurrence per configured policy.
func (s *Scanner) cleanupDuplicate(path string) error {
	basename := filepath.Base(path)
	switch s.cfg.Ingest.DedupeCleanup {
	case "archive":
		dest := filepath.Join(s.cfg.Paths.ArchiveDir, s.relativeToIncoming(path))
		dest = fileutil.UniquePath(dest)
		if err := fileutil.MoveFile(path, dest); err != nil {
			return fmt.Errorf("archive duplicate: %w", err)
		}
		s.logger.Info("archived duplicate",
			logging.String("file", basename),
			logging.String("dest", dest))
	case "purge":
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("purge duplicate: %w", err)
		}
		s.logger.Info("purged duplicate", logging.String("file", basename))
	default:
		s.logger.Info("duplicate left in place", logging.String("file", basename))
	}
	return nil
}

// quarantine relocates an unreadable input so the scan can continue. The
// file is moved, never deleted.
func (s *Scanner) quarantine(path string, cause error) error {
	destRoot := filepath.Join(s.cfg.Paths.ArchiveDir, "rejects")
	if s.cfg.Ingest.CorruptDest == "quarantine" {
		destRoot = s.cfg.Paths.QuarantineDir
	}
	dest := fileutil.UniquePath(filepath.Join(destRoot, filepath.Base(path)))
	if err := fileutil.MoveFile(path, dest); err != nil {
		return fmt.Errorf("quarantine corrupt input %s: %w", path, err)
	}
	s.logger.Warn("corrupt input quarantined",
		logging.String("file", path),
		logging.String("dest", dest),
		logging.Error(cause))
	return nil
}

// stageFile moves an admitted file into staging, preserving its relative
// path under the incoming root.
func (s *Scanner) stageFile(path string) (string, error) {
	dest := filepath.Join(s.cfg.Paths.StagingDir, s.relativeToIncoming(path))
	if err := fileutil.MoveFile(path, dest); err != nil {
		return "", fmt.Errorf("stage file %s: %w", path, err)
	}
	return dest, nil
}

func (s *Scanner) relativeToIncoming(path string) string {
	rel, err := filepath.Rel(filepath.Clean(s.cfg.Paths.IncomingDir), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return rel
}

func (s *Scanner) underStaging(path string) bool {
	if !s.cfg.Ingest.StagingEnabled {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(s.cfg.Paths.StagingDir), path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func (s *Scanner) isAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range s.cfg.Ingest.AudioExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (s *Scanner) stabilityDelay() time.Duration {
	if s.cfg.Ingest.FastStability {
		return 0
	}
	return time.Duration(s.cfg.Ingest.StabilityDelaySec) * time.Second
}

var duplicateSuffix = regexp.MustCompile(`^(.*) \(\d+\)(\.[^.]+)?$`)

// CanonicalBasename strips a " (n)" duplicate suffix so occurrence counts
// key on the original filename.
func CanonicalBasename(basename string) string {
	m := duplicateSuffix.FindStringSubmatch(basename)
	if m == nil {
		return basename
	}
	return m[1] + m[2]
}
