package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// EncodeRequest describes a final render: the normalized wav, the original
// input whose tags are carried over, optional cover art, and the codec
// parameters for the output file.
type EncodeRequest struct {
	RenderedWAV string
	TagSource   string
	CoverArt    string
	Output      string
	Codec       string
	SampleRate  int
	BitDepth    int
}

// Encode produces the tagged output file. Tags are mapped from the original
// input; when that mapping is rejected (untagged sources) the encode is
// retried without metadata so synthetic inputs still produce output.
func (t *Tool) Encode(ctx context.Context, req EncodeRequest) error {
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}

	args := []string{"-y", "-i", req.RenderedWAV, "-i", req.TagSource}
	mapArgs := []string{"-map", "0:a:0", "-map_metadata", "1:0"}
	if req.CoverArt != "" {
		if _, err := os.Stat(req.CoverArt); err == nil {
			args = append(args, "-i", req.CoverArt)
			mapArgs = append(mapArgs,
				"-map", "2:0",
				"-id3v2_version", "3",
				"-metadata:s:v", "title=Album cover",
				"-metadata:s:v", "comment=Cover (front)",
			)
		}
	}
	args = append(args, mapArgs...)

	codecArgs, err := codecArguments(req.Codec, req.SampleRate, req.BitDepth)
	if err != nil {
		return err
	}
	args = append(args, codecArgs...)
	args = append(args, req.Output)

	runCtx, cancel := t.execContext(ctx)
	defer cancel()
	cmd := commandContext(runCtx, t.Binary, args...)
	output, runErr := cmd.CombinedOutput()
	if runErr == nil {
		return nil
	}
	if !strings.Contains(string(output), "Invalid metadata") {
		return fmt.Errorf("ffmpeg encode: %w: %s", runErr, strings.TrimSpace(string(output)))
	}

	// Tag mapping failed; retry without it.
	retryArgs := stripMetadataMapping(args)
	retryCtx, retryCancel := t.execContext(ctx)
	defer retryCancel()
	cmd = commandContext(retryCtx, t.Binary, retryArgs...)
	output, runErr = cmd.CombinedOutput()
	if runErr != nil {
		return fmt.Errorf("ffmpeg encode without tags: %w: %s", runErr, strings.TrimSpace(string(output)))
	}
	return nil
}

func codecArguments(codec string, sampleRate, bitDepth int) ([]string, error) {
	switch strings.ToLower(codec) {
	case "flac":
		return []string{"-c:a", "flac", "-sample_fmt", fmt.Sprintf("s%d", bitDepth), "-ar", strconv.Itoa(sampleRate)}, nil
	case "wav":
		return []string{"-c:a", "pcm_s16le", "-ar", strconv.Itoa(sampleRate)}, nil
	case "mp3":
		return []string{"-c:a", "libmp3lame", "-q:a", "2"}, nil
	case "opus", "ogg":
		return []string{"-c:a", "libopus", "-b:a", "160k"}, nil
	case "m4a", "alac":
		return []string{"-c:a", "alac"}, nil
	default:
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}
}

func stripMetadataMapping(args []string) []string {
	out := make([]string, 0, len(args))
	skip := false
	for _, arg := range args {
		if skip {
			skip = false
			continue
		}
		if arg == "-map_metadata" {
			skip = true
			continue
		}
		out = append(out, arg)
	}
	return out
}
