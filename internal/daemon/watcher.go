package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"stemd/internal/ingest"
	"stemd/internal/logging"
)

// startWatcher subscribes to filesystem events on the incoming directory.
// Watching is non-recursive: new top-level files and album directories are
// dispatched directly, anything deeper is picked up by the periodic rescan.
func (d *Daemon) startWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(d.cfg.Paths.IncomingDir); err != nil {
		watcher.Close()
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer watcher.Close()
		d.watchLoop(ctx, watcher)
	}()
	return nil
}

func (d *Daemon) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			d.dispatchEvent(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("watcher error", logging.Error(err))
		}
	}
}

// dispatchEvent routes one new path to the scanner. Scanner-level markers
// and locks make duplicate delivery harmless.
func (d *Daemon) dispatchEvent(ctx context.Context, path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		// Renamed-away or already moved by a concurrent scan.
		return
	}

	if info.IsDir() {
		err = d.scanner.HandleNewAlbum(ctx, path)
	} else {
		err = d.scanner.HandleNewFile(ctx, path)
	}
	switch {
	case err == nil, errors.Is(err, ingest.ErrLocked), errors.Is(err, context.Canceled):
	default:
		d.logger.Warn("event handling failed",
			logging.String("path", path),
			logging.Error(err))
	}
}
