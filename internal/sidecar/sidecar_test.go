package sidecar_test

import (
	"path/filepath"
	"testing"

	"stemd/internal/sidecar"
	"stemd/internal/testsupport"
)

func TestPathFor(t *testing.T) {
	got := sidecar.PathFor("/incoming/Song.mp3")
	want := "/incoming/Song.stems.yml"
	if got != want {
		t.Fatalf("PathFor = %q, want %q", got, want)
	}
}

func TestLoadMissingSidecar(t *testing.T) {
	overrides, err := sidecar.Load(filepath.Join(t.TempDir(), "track.flac"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if overrides != nil {
		t.Fatalf("expected nil overrides, got %+v", overrides)
	}
}

func TestLoadMalformedSidecarFails(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "track.flac")
	testsupport.WriteFileContent(t, sidecar.PathFor(audio), "model: [unclosed")

	if _, err := sidecar.Load(audio); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParamsForMergesOverrides(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ingest.SidecarEnabled = true
	cfg.Separation.Model = "htdemucs"
	cfg.Output.KeepStems = []string{"D", "B", "O"}
	cfg.Output.SampleRate = 44100
	cfg.Output.BitDepth = 16
	cfg.Output.Codec = "mp3"
	cfg.Mix.TargetLUFS = -14
	cfg.Mix.TruePeak = -1.0
	cfg.Mix.DualPassLoudnorm = true

	audio := filepath.Join(t.TempDir(), "track.flac")
	testsupport.WriteFileContent(t, sidecar.PathFor(audio), `
model: htdemucs_6s
keep_stems: [V, O]
codec: FLAC
mix:
  target_lufs: -16
  dual_pass_loudnorm: false
`)

	params, err := sidecar.ParamsFor(cfg, audio)
	if err != nil {
		t.Fatalf("ParamsFor: %v", err)
	}
	if params.Model != "htdemucs_6s" {
		t.Fatalf("model = %q", params.Model)
	}
	if params.StemSet != "VO" {
		t.Fatalf("stem set = %q", params.StemSet)
	}
	if params.Codec != "flac" {
		t.Fatalf("codec = %q", params.Codec)
	}
	if params.TargetLUFS != -16 {
		t.Fatalf("target lufs = %v", params.TargetLUFS)
	}
	if params.TruePeak != -1.0 {
		t.Fatalf("true peak changed unexpectedly: %v", params.TruePeak)
	}
	if params.DualPass {
		t.Fatal("expected dual pass disabled by sidecar")
	}
	// Untouched fields keep their configured defaults.
	if params.SampleRate != 44100 || params.BitDepth != 16 {
		t.Fatalf("params = %+v", params)
	}
}

func TestParamsForDisabledSidecars(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ingest.SidecarEnabled = false
	cfg.Separation.Model = "htdemucs"

	audio := filepath.Join(t.TempDir(), "track.flac")
	testsupport.WriteFileContent(t, sidecar.PathFor(audio), "model: htdemucs_6s\n")

	params, err := sidecar.ParamsFor(cfg, audio)
	if err != nil {
		t.Fatalf("ParamsFor: %v", err)
	}
	if params.Model != "htdemucs" {
		t.Fatalf("model = %q, want configured default", params.Model)
	}
}

func TestApplyRejectsUnknownStemCodes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	params, err := sidecar.ParamsFromConfig(cfg)
	if err != nil {
		t.Fatalf("ParamsFromConfig: %v", err)
	}
	if _, err := params.Apply(&sidecar.Overrides{KeepStems: []string{"X"}}); err == nil {
		t.Fatal("expected error for unknown stem code")
	}
}
