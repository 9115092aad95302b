package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stemd/internal/fileutil"
	"stemd/internal/media/ffprobe"
)

var commandContext = exec.CommandContext

// Tool invokes ffmpeg and ffprobe with configured binary names. A non-zero
// Timeout bounds every invocation.
type Tool struct {
	Binary      string
	ProbeBinary string
	Timeout     time.Duration
}

// NewTool returns a Tool, defaulting empty binary names.
func NewTool(binary, probeBinary string) *Tool {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if strings.TrimSpace(probeBinary) == "" {
		probeBinary = "ffprobe"
	}
	return &Tool{Binary: binary, ProbeBinary: probeBinary}
}

// execContext caps ctx with the tool timeout when one is configured.
func (t *Tool) execContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.Timeout > 0 {
		return context.WithTimeout(ctx, t.Timeout)
	}
	return context.WithCancel(ctx)
}

func (t *Tool) run(ctx context.Context, args ...string) error {
	runCtx, cancel := t.execContext(ctx)
	defer cancel()
	cmd := commandContext(runCtx, t.Binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", args[len(args)-1], err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Duration returns the duration in seconds of the audio file at path.
func (t *Tool) Duration(ctx context.Context, path string) (float64, error) {
	probeCtx, cancel := t.execContext(ctx)
	defer cancel()
	return ffprobe.Duration(probeCtx, t.ProbeBinary, path)
}

// ExtractChunk decodes a time window of src into a PCM wav at dst.
func (t *Tool) ExtractChunk(ctx context.Context, src, dst string, start, duration float64, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir chunk dir: %w", err)
	}
	return t.run(ctx,
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", src,
		"-c:a", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		dst,
	)
}

// CopyAudio remuxes src to dst without re-encoding.
func (t *Tool) CopyAudio(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}
	return t.run(ctx, "-y", "-i", src, "-c", "copy", dst)
}

// TrimEdges removes head and tail seconds from src. With zero trims the
// stream is copied through unchanged.
func (t *Tool) TrimEdges(ctx context.Context, src, dst string, head, tail float64) error {
	if head == 0 && tail == 0 {
		return t.CopyAudio(ctx, src, dst)
	}
	duration, err := t.Duration(ctx, src)
	if err != nil {
		return err
	}
	length := duration - head - tail
	if length < 0.001 {
		length = 0.001
	}
	return t.run(ctx,
		"-y",
		"-ss", formatSeconds(head),
		"-t", formatSeconds(length),
		"-i", src,
		"-c", "copy",
		dst,
	)
}

// CrossfadePair blends the tail of a into the head of b over crossfade seconds.
func (t *Tool) CrossfadePair(ctx context.Context, a, b, dst string, crossfadeSec float64) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir crossfade dir: %w", err)
	}
	return t.run(ctx,
		"-y",
		"-i", a,
		"-i", b,
		"-filter_complex", fmt.Sprintf("acrossfade=d=%s", formatSeconds(crossfadeSec)),
		dst,
	)
}

// ConcatWithCrossfades joins ordered parts into dst, crossfading each seam.
// A single part is copied through.
func (t *Tool) ConcatWithCrossfades(ctx context.Context, parts []string, dst string, crossfadeMS int) error {
	if len(parts) == 0 {
		return errors.New("ffmpeg concat: no parts")
	}
	if len(parts) == 1 {
		return t.CopyAudio(ctx, parts[0], dst)
	}

	crossfadeSec := float64(crossfadeMS) / 1000.0
	current := parts[0]
	for i := 1; i < len(parts); i++ {
		seam := filepath.Join(filepath.Dir(dst), fmt.Sprintf("_xf_%d.wav", i))
		if err := t.CrossfadePair(ctx, current, parts[i], seam, crossfadeSec); err != nil {
			return err
		}
		current = seam
	}
	return fileutil.MoveFile(current, dst)
}

// MixStems sums the given stem files into a single PCM wav without
// per-input normalization.
func (t *Tool) MixStems(ctx context.Context, stems []string, dst string) error {
	if len(stems) == 0 {
		return errors.New("ffmpeg mix: no stems")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir mix dir: %w", err)
	}
	args := []string{"-y"}
	for _, stem := range stems {
		args = append(args, "-i", stem)
	}
	args = append(args,
		"-filter_complex", fmt.Sprintf("amix=inputs=%d:normalize=0", len(stems)),
		"-c:a", "pcm_s16le",
		dst,
	)
	return t.run(ctx, args...)
}

// ExtractEmbeddedArt pulls the first attached picture out of src into dstImg.
// It returns "" without error when no art is embedded.
func (t *Tool) ExtractEmbeddedArt(ctx context.Context, src, dstImg string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dstImg), 0o755); err != nil {
		return "", fmt.Errorf("mkdir art dir: %w", err)
	}
	err := t.run(ctx, "-y", "-i", src, "-an", "-vcodec", "copy", "-map", "0:v:0", dstImg)
	if err != nil {
		_ = os.Remove(dstImg)
		return "", nil
	}
	info, statErr := os.Stat(dstImg)
	if statErr != nil || info.Size() == 0 {
		_ = os.Remove(dstImg)
		return "", nil
	}
	return dstImg, nil
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
