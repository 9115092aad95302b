package demucs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"stemd/internal/stems"
)

var commandContext = exec.CommandContext

// ErrOOM marks a separation run killed for memory exhaustion. Callers react
// by splitting the input into more chunks rather than failing the job.
var ErrOOM = errors.New("demucs: out of memory")

// Client defines stem separation behaviour.
type Client interface {
	// Separate runs the model over inputPath, writing stem wavs under
	// outDir. It returns the directory containing the per-stem files.
	Separate(ctx context.Context, inputPath, outDir, model string) (string, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithDevice selects the compute device passed to demucs.
func WithDevice(device string) Option {
	return func(c *CLI) {
		c.device = device
	}
}

// CLI wraps the demucs command-line separator.
type CLI struct {
	binary string
	device string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "demucs"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Separate launches demucs and locates the produced stem directory.
func (c *CLI) Separate(ctx context.Context, inputPath, outDir, model string) (string, error) {
	if inputPath == "" {
		return "", errors.New("input path required")
	}
	if outDir == "" {
		return "", errors.New("output directory required")
	}
	if model == "" {
		return "", errors.New("model required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir demucs out dir: %w", err)
	}

	args := []string{"-n", model, "-o", outDir}
	if c.device != "" {
		args = append(args, "-d", c.device)
	}
	args = append(args, inputPath)

	cmd := commandContext(ctx, c.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if IsOOM(exitCode, string(output)) {
			return "", fmt.Errorf("%w: %s", ErrOOM, strings.TrimSpace(string(output)))
		}
		return "", fmt.Errorf("demucs failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	return LocateStemRoot(outDir, model, inputPath)
}

// IsOOM classifies a demucs failure as memory exhaustion. Exit codes 137 and
// 9 indicate a SIGKILL, typically from the kernel OOM killer; otherwise the
// process output is searched for known memory failure markers.
func IsOOM(exitCode int, output string) bool {
	if exitCode == 137 || exitCode == 9 {
		return true
	}
	lowered := strings.ToLower(output)
	for _, marker := range []string{"out of memory", "cuda out of memory", "killed", "oom"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// LocateStemRoot finds the directory demucs populated with per-stem wav
// files, normally outDir/model/<input basename>. Layout drift across demucs
// versions is tolerated by falling back to a recursive search.
func LocateStemRoot(outDir, model, inputPath string) (string, error) {
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	modelDir := filepath.Join(outDir, model)
	candidates := []string{filepath.Join(modelDir, base)}
	if entries, err := os.ReadDir(modelDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				candidates = append(candidates, filepath.Join(modelDir, entry.Name()))
			}
		}
	}
	for _, candidate := range candidates {
		if hasStemFiles(candidate) {
			return candidate, nil
		}
	}

	var found string
	_ = filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found != "" {
			return fs.SkipAll
		}
		if !d.IsDir() && d.Name() == stems.Vocals.Name()+".wav" {
			found = filepath.Dir(path)
			return fs.SkipAll
		}
		return nil
	})
	if found != "" {
		return found, nil
	}
	return "", fmt.Errorf("demucs: no stem outputs under %s", outDir)
}

func hasStemFiles(dir string) bool {
	for _, stem := range []stems.Stem{stems.Vocals, stems.Drums} {
		if info, err := os.Stat(filepath.Join(dir, stem.Name()+".wav")); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

var _ Client = (*CLI)(nil)
