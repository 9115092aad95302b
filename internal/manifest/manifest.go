// Package manifest writes JSON descriptions of rendered outputs next to
// the work artifacts so downstream sync tooling can route them.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Filename is the manifest name inside a job work directory.
const Filename = "manifest.json"

// TrackEntry records one processed track.
type TrackEntry struct {
	Input  string            `json:"input"`
	Output string            `json:"output"`
	Tags   map[string]string `json:"tags,omitempty"`
	Notes  map[string]any    `json:"notes,omitempty"`
}

// Single describes a completed single-file job.
type Single struct {
	Input      string         `json:"input"`
	Output     string         `json:"output"`
	Model      string         `json:"model"`
	StemSet    string         `json:"stem_set"`
	SampleRate int            `json:"sample_rate"`
	BitDepth   int            `json:"bit_depth"`
	Codec      string         `json:"codec"`
	Notes      map[string]any `json:"notes,omitempty"`
	Timestamps Timestamps     `json:"timestamps"`
}

// Timestamps marks completion time.
type Timestamps struct {
	Finished time.Time `json:"finished"`
}

// Album describes an album job. Tracks grows as each one finishes; the
// manifest is rewritten after every track so a crash mid-album leaves a
// usable record of what completed.
type Album struct {
	AlbumDir   string         `json:"album_dir"`
	Model      string         `json:"model"`
	StemSet    string         `json:"stem_set"`
	SampleRate int            `json:"sample_rate"`
	BitDepth   int            `json:"bit_depth"`
	Codec      string         `json:"codec"`
	Cover      string         `json:"album_cover,omitempty"`
	Tracks     []TrackEntry   `json:"tracks"`
	Notes      map[string]any `json:"notes,omitempty"`
}

// PathIn returns the manifest location for a work directory.
func PathIn(workDir string) string {
	return filepath.Join(workDir, Filename)
}

// Write serializes v as indented JSON at path, creating parent directories.
// The file is written to a temp name and renamed into place.
func Write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir manifest dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// Read loads a manifest back into v.
func Read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	return nil
}
