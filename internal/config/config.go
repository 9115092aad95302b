package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	IncomingDir   string `toml:"incoming_dir"`
	StagingDir    string `toml:"staging_dir"`
	WorkDir       string `toml:"work_dir"`
	LibraryDir    string `toml:"library_dir"`
	ArchiveDir    string `toml:"archive_dir"`
	QuarantineDir string `toml:"quarantine_dir"`
	LogDir        string `toml:"log_dir"`
}

// Separation contains configuration for the stem separation engine.
type Separation struct {
	Model           string  `toml:"model"`
	Device          string  `toml:"device"`
	ChunkingEnabled bool    `toml:"chunking_enabled"`
	ChunkMax        int     `toml:"chunk_max"`
	ChunkOverlapSec float64 `toml:"chunk_overlap_sec"`
	CrossfadeMS     int     `toml:"crossfade_ms"`
	RetryBackoffSec int     `toml:"retry_backoff_sec"`
	ChunkTimeoutSec int     `toml:"chunk_timeout_sec"`
	ChunkMaxRetries int     `toml:"chunk_max_retries"`
}

// Output contains configuration for the rendered mix.
type Output struct {
	KeepStems         []string `toml:"keep_stems"`
	SampleRate        int      `toml:"sample_rate"`
	BitDepth          int      `toml:"bit_depth"`
	Codec             string   `toml:"codec"`
	StructuredSingles bool     `toml:"structured_singles"`
}

// Mix contains loudness normalization targets.
type Mix struct {
	TargetLUFS       float64 `toml:"target_lufs"`
	TruePeak         float64 `toml:"true_peak"`
	DualPassLoudnorm bool    `toml:"dual_pass_loudnorm"`
}

// Ingest contains configuration for the watch-root scanner and dedup policy.
type Ingest struct {
	StabilityPasses    int      `toml:"stability_passes"`
	StabilityDelaySec  int      `toml:"stability_delay_sec"`
	FastStability      bool     `toml:"fast_stability"`
	MinInputBytes      int64    `toml:"min_input_bytes"`
	AudioExtensions    []string `toml:"audio_extensions"`
	SidecarEnabled     bool     `toml:"sidecar_enabled"`
	DedupeByFilename   bool     `toml:"dedupe_by_filename"`
	DedupeRenameSecond bool     `toml:"dedupe_rename_second"`
	DedupeCleanup      string   `toml:"dedupe_cleanup"`
	AlbumsEnabled      bool     `toml:"albums_enabled"`
	StagingEnabled     bool     `toml:"staging_enabled"`
	CorruptDest        string   `toml:"corrupt_dest"`
	RescanIntervalSec  int      `toml:"rescan_interval_sec"`
}

// Worker contains polling intervals for the job executor loop.
type Worker struct {
	PollIntervalSec int `toml:"poll_interval_sec"`
	ErrorBackoffSec int `toml:"error_backoff_sec"`
	LockRetrySec    int `toml:"lock_retry_sec"`
	ToolTimeoutSec  int `toml:"tool_timeout_sec"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for stemd.
//
// Sections by subsystem:
//   - Paths: watch root, staging, scratch, library, archive, quarantine, logs
//   - Separation: engine model/device and OOM chunking escalation knobs
//   - Output: kept stems and rendered codec parameters
//   - Mix: loudness normalization targets
//   - Ingest: stability scanning, dedup policy, albums, staging
//   - Worker: executor polling and timeouts
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Separation Separation `toml:"separation"`
	Output     Output     `toml:"output"`
	Mix        Mix        `toml:"mix"`
	Ingest     Ingest     `toml:"ingest"`
	Worker     Worker     `toml:"worker"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/stemd/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. When no file exists at the
// resolved location the defaults are returned and exists is false.
func Load(path string) (cfg *Config, resolvedPath string, exists bool, err error) {
	value := Default()

	resolvedPath, exists, err = resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, openErr := os.Open(resolvedPath)
		if openErr != nil {
			return nil, "", false, fmt.Errorf("open config: %w", openErr)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if decodeErr := decoder.Decode(&value); decodeErr != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", decodeErr)
		}
	}

	if err := value.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := value.Validate(); err != nil {
		return nil, "", false, err
	}

	return &value, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, statErr := os.Stat(defaultPath); statErr == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.IncomingDir, c.Paths.StagingDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// DatabasePath returns the location of the job store database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.LogDir, "jobs.db")
}

// SeparatorBinary returns the stem separation executable name.
func (c *Config) SeparatorBinary() string {
	return "demucs"
}

// FFmpegBinary returns the ffmpeg executable name used for audio processing.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// WriteTOML renders the effective configuration as a TOML document.
func (c *Config) WriteTOML(w io.Writer) error {
	encoder := toml.NewEncoder(w)
	encoder.SetIndentTables(true)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if strings.HasPrefix(pathValue, "~/") {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	abs, err := filepath.Abs(pathValue)
	if err != nil {
		return "", fmt.Errorf("absolute path for %q: %w", pathValue, err)
	}
	return abs, nil
}
