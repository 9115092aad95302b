package worker

import (
	"fmt"
	"path/filepath"
	"strings"

	"stemd/internal/config"
	"stemd/internal/fileutil"
)

// Tags carries the metadata used for output naming and placement.
type Tags struct {
	Artist string
	Title  string
	Album  string
}

// ComposeOutputName builds the rendered filename. The bracketed suffix
// encodes the processing parameters so different renders of the same source
// never collide:
//
//	Artist - Title [INST_DBO__model-htdemucs__sr-44100__bit-16].mp3
func ComposeOutputName(tags Tags, stemSet, model string, sampleRate, bitDepth int, codec, srcPath string) string {
	title := strings.TrimSpace(tags.Title)
	if title == "" {
		base := filepath.Base(srcPath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	artist := strings.TrimSpace(tags.Artist)
	if artist != "" {
		artist = fileutil.SanitizeFilename(artist)
	}
	title = fileutil.SanitizeFilename(title)

	base := strings.Trim(fmt.Sprintf("%s - %s", artist, title), " -")
	suffix := fmt.Sprintf("[INST_%s__model-%s__sr-%d__bit-%d].%s", stemSet, model, sampleRate, bitDepth, codec)
	return base + " " + suffix
}

// OutputPath decides where a rendered file lands. With structured placement
// the file is filed under LibraryDir/Artist/Album/, falling back to
// "Unknown" for missing tags; otherwise it goes to the library root.
func OutputPath(cfg *config.Config, tags Tags, filename string, structured bool) string {
	if !structured {
		return filepath.Join(cfg.Paths.LibraryDir, filename)
	}
	artist := strings.TrimSpace(tags.Artist)
	if artist == "" {
		artist = "Unknown"
	} else {
		artist = fileutil.SanitizeFilename(artist)
	}
	album := strings.TrimSpace(tags.Album)
	if album == "" {
		album = "Unknown"
	} else {
		album = fileutil.SanitizeFilename(album)
	}
	return filepath.Join(cfg.Paths.LibraryDir, artist, album, filename)
}
