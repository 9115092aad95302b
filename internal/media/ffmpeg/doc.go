// Package ffmpeg wraps the ffmpeg binary for chunk extraction, crossfade
// stitching, stem mixing, loudness normalization, and final encoding.
package ffmpeg
