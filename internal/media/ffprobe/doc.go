// Package ffprobe wraps the ffprobe binary for audio container inspection.
package ffprobe
