package ingest

import (
	"context"
	"os"
	"time"
)

// WaitUntilStable polls the file until two consecutive reads agree on both
// size and modification time, giving up after the configured number of
// passes. Files still being copied in keep changing between reads and are
// retried on a later scan.
func WaitUntilStable(ctx context.Context, path string, passes int, delay time.Duration) bool {
	if passes < 1 {
		passes = 1
	}
	var (
		prevSize  = int64(-1)
		prevMtime time.Time
	)
	for i := 0; i < passes; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == prevSize && info.ModTime().Equal(prevMtime) {
			return true
		}
		prevSize = info.Size()
		prevMtime = info.ModTime()
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false
			case <-timer.C:
			}
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() == prevSize && info.ModTime().Equal(prevMtime)
}
