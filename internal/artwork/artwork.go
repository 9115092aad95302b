// Package artwork locates cover art for album renders.
package artwork

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"stemd/internal/media/ffmpeg"
)

// Well-known cover filenames, checked in order before falling back to any
// image in the directory.
var coverCandidates = []string{
	"cover.jpg", "cover.jpeg", "cover.png",
	"folder.jpg", "folder.png",
	"front.jpg", "front.png",
	"album.jpg", "album.png",
}

// FindInDir returns the path of a cover image in the album directory, or ""
// when none exists.
func FindInDir(dir string) string {
	for _, name := range coverCandidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			return filepath.Join(dir, entry.Name())
		}
	}
	return ""
}

// ExtractEmbedded pulls embedded art from the first track that carries any.
// It returns "" when no track has embedded art.
func ExtractEmbedded(ctx context.Context, tool *ffmpeg.Tool, tracks []string, dstImg string) string {
	for _, track := range tracks {
		if extracted, err := tool.ExtractEmbeddedArt(ctx, track, dstImg); err == nil && extracted != "" {
			return extracted
		}
	}
	return ""
}

// ForAlbum resolves the cover for an album directory: a folder image wins,
// otherwise embedded art is extracted from the tracks.
func ForAlbum(ctx context.Context, tool *ffmpeg.Tool, dir string, tracks []string, workDir string) string {
	if cover := FindInDir(dir); cover != "" {
		return cover
	}
	return ExtractEmbedded(ctx, tool, tracks, filepath.Join(workDir, "album_cover.jpg"))
}
