package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stemd/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("exists should be false for a missing file")
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Separation.Model != "htdemucs" {
		t.Errorf("default model = %q", cfg.Separation.Model)
	}
	if cfg.Output.Codec != "mp3" || cfg.Output.SampleRate != 44100 || cfg.Output.BitDepth != 16 {
		t.Errorf("default output = %+v", cfg.Output)
	}
	if cfg.Ingest.DedupeCleanup != "none" || cfg.Ingest.CorruptDest != "archive" {
		t.Errorf("default ingest policies = %+v", cfg.Ingest)
	}
}

func TestLoadAppliesOverridesAndNormalizes(t *testing.T) {
	path := writeConfig(t, `
[separation]
model = "  htdemucs_ft  "
device = "CUDA"

[output]
keep_stems = ["d", " b ", "o"]
codec = "FLAC"
bit_depth = 24

[ingest]
audio_extensions = ["FLAC", ".mp3"]
dedupe_cleanup = "Archive"
`)
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("config file should be detected")
	}
	if cfg.Separation.Model != "htdemucs_ft" {
		t.Errorf("model = %q", cfg.Separation.Model)
	}
	if cfg.Separation.Device != "cuda" {
		t.Errorf("device = %q", cfg.Separation.Device)
	}
	if got := strings.Join(cfg.Output.KeepStems, ""); got != "DBO" {
		t.Errorf("keep_stems = %q", got)
	}
	if cfg.Output.Codec != "flac" || cfg.Output.BitDepth != 24 {
		t.Errorf("output = %+v", cfg.Output)
	}
	if got := strings.Join(cfg.Ingest.AudioExtensions, ","); got != ".flac,.mp3" {
		t.Errorf("audio_extensions = %q", got)
	}
	if cfg.Ingest.DedupeCleanup != "archive" {
		t.Errorf("dedupe_cleanup = %q", cfg.Ingest.DedupeCleanup)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantSub string
	}{
		{
			name:    "bad device",
			content: "[separation]\ndevice = \"tpu\"\n",
			wantSub: "separation.device",
		},
		{
			name:    "bad codec",
			content: "[output]\ncodec = \"aiff\"\n",
			wantSub: "output.codec",
		},
		{
			name:    "bad bit depth",
			content: "[output]\nbit_depth = 12\n",
			wantSub: "output.bit_depth",
		},
		{
			name:    "unknown stem code",
			content: "[output]\nkeep_stems = [\"X\"]\n",
			wantSub: "output.keep_stems",
		},
		{
			name:    "bad cleanup policy",
			content: "[ingest]\ndedupe_cleanup = \"shred\"\n",
			wantSub: "ingest.dedupe_cleanup",
		},
		{
			name:    "bad corrupt destination",
			content: "[ingest]\ncorrupt_dest = \"trash\"\n",
			wantSub: "ingest.corrupt_dest",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestFastStabilityCollapsesWaits(t *testing.T) {
	path := writeConfig(t, `
[ingest]
fast_stability = true
stability_passes = 5
stability_delay_sec = 10
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingest.StabilityPasses != 1 || cfg.Ingest.StabilityDelaySec != 0 {
		t.Fatalf("fast stability should collapse waits: %+v", cfg.Ingest)
	}
}

func TestEnsureDirectoriesCreatesRuntimeDirs(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
incoming_dir = "`+filepath.Join(base, "in")+`"
staging_dir = "`+filepath.Join(base, "staging")+`"
work_dir = "`+filepath.Join(base, "work")+`"
library_dir = "`+filepath.Join(base, "library")+`"
archive_dir = "`+filepath.Join(base, "archive")+`"
quarantine_dir = "`+filepath.Join(base, "quarantine")+`"
log_dir = "`+filepath.Join(base, "logs")+`"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.IncomingDir, cfg.Paths.StagingDir, cfg.Paths.WorkDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("directory %s missing: %v", dir, err)
		}
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := writeConfig(t, config.SampleConfig())
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
}
