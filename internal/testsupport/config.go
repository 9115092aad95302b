package testsupport

import (
	"path/filepath"
	"testing"

	"stemd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.IncomingDir = filepath.Join(base, "incoming")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfgVal.Paths.QuarantineDir = filepath.Join(base, "quarantine")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Ingest.FastStability = true
	cfgVal.Ingest.StabilityDelaySec = 0
	cfgVal.Worker.PollIntervalSec = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithModel overrides the separation model on the test config.
func WithModel(model string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Separation.Model = model
	}
}

// WithKeepStems overrides the kept stem codes on the test config.
func WithKeepStems(codes ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.KeepStems = codes
	}
}

// WithAlbums toggles album directory handling on the test config.
func WithAlbums(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.AlbumsEnabled = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
