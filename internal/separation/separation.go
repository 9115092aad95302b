package separation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"stemd/internal/logging"
	"stemd/internal/services/demucs"
	"stemd/internal/stems"
)

// AudioTool is the subset of ffmpeg operations the pipeline needs.
type AudioTool interface {
	Duration(ctx context.Context, path string) (float64, error)
	ExtractChunk(ctx context.Context, src, dst string, start, duration float64, sampleRate int) error
	TrimEdges(ctx context.Context, src, dst string, head, tail float64) error
	ConcatWithCrossfades(ctx context.Context, parts []string, dst string, crossfadeMS int) error
}

// Settings holds the chunking escalation knobs.
type Settings struct {
	Model           string
	SampleRate      int
	ChunkingEnabled bool
	ChunkMax        int
	ChunkOverlapSec float64
	CrossfadeMS     int
	RetryBackoff    time.Duration
	ChunkTimeout    time.Duration
	ChunkMaxRetries int
}

// ErrOOMPersisted reports that memory exhaustion survived every chunk
// escalation step up to the configured ceiling.
var ErrOOMPersisted = errors.New("separation: memory exhaustion persisted")

// Result reports where the separated stems landed and how they got there.
type Result struct {
	StemDir      string
	Chunks       int
	OOMRecovered bool
}

// Separator runs the separation engine with adaptive chunk escalation.
type Separator struct {
	engine demucs.Client
	tool   AudioTool
	set    Settings
	logger *slog.Logger
}

// NewSeparator constructs a Separator. A nil logger is replaced with a
// no-op logger.
func NewSeparator(engine demucs.Client, tool AudioTool, set Settings, logger *slog.Logger) *Separator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Separator{engine: engine, tool: tool, set: set, logger: logger}
}

// Run separates inputPath into stem wav files under workDir. The whole file
// is tried first; on memory exhaustion the input is split into 2 chunks,
// then 4, doubling until ChunkMax. Each escalation produces fresh chunk
// extractions, per-chunk separations, overlap trims, and crossfaded
// stitching so chunk boundaries stay inaudible.
func (s *Separator) Run(ctx context.Context, inputPath, workDir string) (Result, error) {
	stemDir, err := s.separateChunk(ctx, inputPath, filepath.Join(workDir, "full"))
	if err == nil {
		return Result{StemDir: stemDir, Chunks: 1}, nil
	}
	if !errors.Is(err, demucs.ErrOOM) {
		return Result{}, err
	}
	if !s.set.ChunkingEnabled {
		return Result{}, err
	}
	s.logger.Warn("separation hit memory limit, escalating to chunked mode",
		logging.String("input", inputPath))

	duration, err := s.tool.Duration(ctx, inputPath)
	if err != nil {
		return Result{}, fmt.Errorf("probe duration: %w", err)
	}

	for n := 2; n <= s.set.ChunkMax; n *= 2 {
		stemDir, err := s.runChunked(ctx, inputPath, workDir, duration, n)
		if err == nil {
			return Result{StemDir: stemDir, Chunks: n, OOMRecovered: true}, nil
		}
		if !errors.Is(err, demucs.ErrOOM) {
			return Result{}, err
		}
		s.logger.Warn("chunked separation still exhausting memory",
			logging.Int("chunks", n),
			logging.String("input", inputPath))
		if n*2 <= s.set.ChunkMax {
			if err := sleepContext(ctx, s.set.RetryBackoff); err != nil {
				return Result{}, err
			}
		}
	}
	return Result{}, fmt.Errorf("%w up to %d chunks", ErrOOMPersisted, s.set.ChunkMax)
}

func (s *Separator) runChunked(ctx context.Context, inputPath, workDir string, duration float64, n int) (string, error) {
	chunkDir := filepath.Join(workDir, fmt.Sprintf("chunks_%d", n))
	plan := Plan(duration, n, s.set.ChunkOverlapSec)

	chunkPaths := make([]string, len(plan))
	for i, span := range plan {
		chunkPath := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d.wav", i))
		if err := s.tool.ExtractChunk(ctx, inputPath, chunkPath, span.Start, span.Duration, s.set.SampleRate); err != nil {
			return "", fmt.Errorf("extract chunk %d/%d: %w", i+1, n, err)
		}
		chunkPaths[i] = chunkPath
	}

	collected := make(map[stems.Stem][]stitchPart)
	for i, chunkPath := range chunkPaths {
		stemRoot, err := s.separateChunk(ctx, chunkPath, filepath.Join(chunkDir, fmt.Sprintf("demucs_%d", i)))
		if err != nil {
			return "", err
		}
		for _, stem := range stems.All() {
			stemFile := filepath.Join(stemRoot, stem.Name()+".wav")
			if _, statErr := os.Stat(stemFile); statErr != nil {
				continue
			}
			collected[stem] = append(collected[stem], stitchPart{path: stemFile, span: plan[i]})
		}
	}

	stitchDir := filepath.Join(workDir, fmt.Sprintf("stitched_%d", n))
	if err := os.MkdirAll(stitchDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir stitch dir: %w", err)
	}
	stitchedAny := false
	for _, stem := range stems.All() {
		parts := collected[stem]
		if len(parts) == 0 {
			continue
		}
		trimmed := make([]string, len(parts))
		for i, part := range parts {
			trimPath := filepath.Join(stitchDir, fmt.Sprintf("%s_trim_%d.wav", stem.Name(), i))
			if err := s.tool.TrimEdges(ctx, part.path, trimPath, part.span.HeadTrim, part.span.TailTrim); err != nil {
				return "", fmt.Errorf("trim %s chunk %d: %w", stem.Name(), i, err)
			}
			trimmed[i] = trimPath
		}
		finalPath := filepath.Join(stitchDir, stem.Name()+".wav")
		if err := s.tool.ConcatWithCrossfades(ctx, trimmed, finalPath, s.set.CrossfadeMS); err != nil {
			return "", fmt.Errorf("stitch %s: %w", stem.Name(), err)
		}
		stitchedAny = true
	}
	if !stitchedAny {
		return "", errors.New("no stems stitched")
	}
	return stitchDir, nil
}

type stitchPart struct {
	path string
	span ChunkSpan
}

// separateChunk runs the engine once with the per-chunk timeout, retrying
// transient failures. Memory exhaustion is never retried here; it escalates
// the chunk count instead.
func (s *Separator) separateChunk(ctx context.Context, inputPath, outDir string) (string, error) {
	attempts := 1 + s.set.ChunkMaxRetries
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		runCtx := ctx
		cancel := context.CancelFunc(func() {})
		if s.set.ChunkTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, s.set.ChunkTimeout)
		}
		stemDir, err := s.engine.Separate(runCtx, inputPath, outDir, s.set.Model)
		cancel()
		if err == nil {
			return stemDir, nil
		}
		if errors.Is(err, demucs.ErrOOM) || ctx.Err() != nil {
			return "", err
		}
		lastErr = err
		if attempt+1 < attempts {
			s.logger.Warn("separation attempt failed, retrying",
				logging.Int("attempt", attempt+1),
				logging.Error(err))
			if sleepErr := sleepContext(ctx, s.set.RetryBackoff); sleepErr != nil {
				return "", sleepErr
			}
		}
	}
	return "", lastErr
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
