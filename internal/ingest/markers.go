package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"stemd/internal/fileutil"
)

const (
	// LockDirName is the marker directory kept inside the incoming root.
	LockDirName = ".locks"
	// AlbumMarker marks a directory the operator wants treated as one album job.
	AlbumMarker = ".album_job"
	// AlbumLockedMarker is written once an album directory has been enqueued.
	AlbumLockedMarker = ".album_locked"
)

// ErrLocked reports that another scan pass is already handling the file.
var ErrLocked = errors.New("ingest: path is locked")

// PathLockID derives the stable marker name for a path.
func PathLockID(path string) string {
	return fileutil.HashString(path)[:16]
}

func lockRoot(incomingDir string) string {
	return filepath.Join(incomingDir, LockDirName)
}

// QueuedMarkerPath returns the persistent marker recording that inputPath
// has been enqueued. The worker removes it when the job finishes.
func QueuedMarkerPath(incomingDir, inputPath string) string {
	return filepath.Join(lockRoot(incomingDir), PathLockID(inputPath)+".queued")
}

// HasQueuedMarker reports whether inputPath already carries a queued marker.
func HasQueuedMarker(incomingDir, inputPath string) bool {
	_, err := os.Stat(QueuedMarkerPath(incomingDir, inputPath))
	return err == nil
}

// CreateQueuedMarker persists the enqueued state of inputPath on disk.
func CreateQueuedMarker(incomingDir, inputPath string) error {
	path := QueuedMarkerPath(incomingDir, inputPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(inputPath), 0o644); err != nil {
		return fmt.Errorf("write queued marker: %w", err)
	}
	return nil
}

// RemoveQueuedMarker drops the persistent marker for inputPath.
func RemoveQueuedMarker(incomingDir, inputPath string) {
	_ = os.Remove(QueuedMarkerPath(incomingDir, inputPath))
}

// RemoveAlbumLockedMarker drops the enqueued marker inside an album dir.
func RemoveAlbumLockedMarker(albumDir string) {
	_ = os.Remove(filepath.Join(albumDir, AlbumLockedMarker))
}

// acquireAdvisoryLock takes a short-lived per-basename lock for the duration
// of hashing and enqueueing. It is non-blocking: a held lock returns
// ErrLocked and the file is retried on a later pass.
func acquireAdvisoryLock(incomingDir, path string) (release func(), err error) {
	root := lockRoot(incomingDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lockPath := filepath.Join(root, filepath.Base(path)+".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("create advisory lock: %w", err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	_ = f.Close()
	return func() {
		_ = os.Remove(lockPath)
	}, nil
}

// ParentHasAlbumMarker reports whether path or any parent up to stopRoot
// carries an album marker, meaning the file belongs to an album job and must
// not be enqueued individually.
func ParentHasAlbumMarker(path, stopRoot string) bool {
	current := path
	for {
		for _, marker := range []string{AlbumMarker, AlbumLockedMarker} {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return true
			}
		}
		if current == stopRoot {
			return false
		}
		parent := filepath.Dir(current)
		if parent == current {
			return false
		}
		current = parent
	}
}
