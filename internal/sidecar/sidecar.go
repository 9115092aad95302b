// Package sidecar reads per-file YAML overrides placed next to audio inputs.
package sidecar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"stemd/internal/config"
	"stemd/internal/stems"
)

// Suffix is appended to the extension-stripped audio filename to locate its
// sidecar, e.g. "Song.mp3" pairs with "Song.stems.yml".
const Suffix = ".stems.yml"

// Overrides holds the per-file knobs a sidecar may set. Nil pointers mean
// the field was absent and the configured default applies.
type Overrides struct {
	Model      *string       `yaml:"model"`
	KeepStems  []string      `yaml:"keep_stems"`
	SampleRate *int          `yaml:"sample_rate"`
	BitDepth   *int          `yaml:"bit_depth"`
	Codec      *string       `yaml:"codec"`
	Mix        *MixOverrides `yaml:"mix"`
}

// MixOverrides holds loudness overrides from the sidecar mix block.
type MixOverrides struct {
	TargetLUFS       *float64 `yaml:"target_lufs"`
	TruePeak         *float64 `yaml:"true_peak"`
	DualPassLoudnorm *bool    `yaml:"dual_pass_loudnorm"`
}

// PathFor returns the sidecar location paired with an audio file.
func PathFor(audioPath string) string {
	base := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	return base + Suffix
}

// Load reads the sidecar for an audio file. A missing sidecar returns
// (nil, nil); a present but malformed one returns an error so bad overrides
// are never silently ignored.
func Load(audioPath string) (*Overrides, error) {
	path := PathFor(audioPath)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sidecar %s: %w", path, err)
	}

	var overrides Overrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse sidecar %s: %w", path, err)
	}
	return &overrides, nil
}

// Params are the effective per-job processing parameters after merging
// configured defaults with any sidecar overrides.
type Params struct {
	Model      string
	StemSet    string
	SampleRate int
	BitDepth   int
	Codec      string
	TargetLUFS float64
	TruePeak   float64
	DualPass   bool
}

// ParamsFromConfig seeds job parameters from the daemon configuration.
func ParamsFromConfig(cfg *config.Config) (Params, error) {
	set, err := stems.ParseCodes(cfg.Output.KeepStems)
	if err != nil {
		return Params{}, fmt.Errorf("configured keep_stems: %w", err)
	}
	return Params{
		Model:      cfg.Separation.Model,
		StemSet:    set.Compact(),
		SampleRate: cfg.Output.SampleRate,
		BitDepth:   cfg.Output.BitDepth,
		Codec:      strings.ToLower(cfg.Output.Codec),
		TargetLUFS: cfg.Mix.TargetLUFS,
		TruePeak:   cfg.Mix.TruePeak,
		DualPass:   cfg.Mix.DualPassLoudnorm,
	}, nil
}

// Apply merges sidecar overrides field by field onto the parameters.
func (p Params) Apply(overrides *Overrides) (Params, error) {
	if overrides == nil {
		return p, nil
	}
	merged := p
	if overrides.Model != nil {
		merged.Model = strings.TrimSpace(*overrides.Model)
	}
	if len(overrides.KeepStems) > 0 {
		set, err := stems.ParseCodes(overrides.KeepStems)
		if err != nil {
			return Params{}, fmt.Errorf("sidecar keep_stems: %w", err)
		}
		merged.StemSet = set.Compact()
	}
	if overrides.SampleRate != nil {
		merged.SampleRate = *overrides.SampleRate
	}
	if overrides.BitDepth != nil {
		merged.BitDepth = *overrides.BitDepth
	}
	if overrides.Codec != nil {
		merged.Codec = strings.ToLower(strings.TrimSpace(*overrides.Codec))
	}
	if overrides.Mix != nil {
		if overrides.Mix.TargetLUFS != nil {
			merged.TargetLUFS = *overrides.Mix.TargetLUFS
		}
		if overrides.Mix.TruePeak != nil {
			merged.TruePeak = *overrides.Mix.TruePeak
		}
		if overrides.Mix.DualPassLoudnorm != nil {
			merged.DualPass = *overrides.Mix.DualPassLoudnorm
		}
	}
	return merged, nil
}

// ParamsFor loads and applies the sidecar for an audio file in one step.
// When sidecars are disabled in configuration the defaults are returned
// untouched.
func ParamsFor(cfg *config.Config, audioPath string) (Params, error) {
	params, err := ParamsFromConfig(cfg)
	if err != nil {
		return Params{}, err
	}
	if !cfg.Ingest.SidecarEnabled {
		return params, nil
	}
	overrides, err := Load(audioPath)
	if err != nil {
		return Params{}, err
	}
	return params.Apply(overrides)
}
