package ffmpeg

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// fakeCommand makes every invocation echo its arguments and succeed.
func fakeCommand(t *testing.T, captured *[][]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			call := append([]string{name}, args...)
			*captured = append(*captured, call)
		}
		return exec.CommandContext(ctx, "true")
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestMixStemsBuildsAmixFilter(t *testing.T) {
	var calls [][]string
	fakeCommand(t, &calls)

	tool := NewTool("ffmpeg", "ffprobe")
	dst := t.TempDir() + "/mix.wav"
	if err := tool.MixStems(context.Background(), []string{"a.wav", "b.wav", "c.wav"}, dst); err != nil {
		t.Fatalf("MixStems: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(calls))
	}
	joined := strings.Join(calls[0], " ")
	if !strings.Contains(joined, "amix=inputs=3:normalize=0") {
		t.Fatalf("missing amix filter in %q", joined)
	}
}

func TestToolTimeoutBoundsInvocations(t *testing.T) {
	var deadlines []bool
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		_, ok := ctx.Deadline()
		deadlines = append(deadlines, ok)
		return exec.CommandContext(ctx, "true")
	}
	t.Cleanup(func() {
		commandContext = original
	})

	dir := t.TempDir()

	tool := NewTool("ffmpeg", "ffprobe")
	if err := tool.MixStems(context.Background(), []string{"a.wav"}, dir+"/unbounded.wav"); err != nil {
		t.Fatalf("MixStems: %v", err)
	}

	tool.Timeout = time.Minute
	if err := tool.MixStems(context.Background(), []string{"a.wav"}, dir+"/bounded.wav"); err != nil {
		t.Fatalf("MixStems with timeout: %v", err)
	}
	if err := tool.Encode(context.Background(), EncodeRequest{
		RenderedWAV: "in.wav",
		TagSource:   "src.flac",
		Output:      dir + "/out.mp3",
		Codec:       "mp3",
	}); err != nil {
		t.Fatalf("Encode with timeout: %v", err)
	}

	want := []bool{false, true, true}
	if len(deadlines) != len(want) {
		t.Fatalf("got %d invocations, want %d", len(deadlines), len(want))
	}
	for i, ok := range deadlines {
		if ok != want[i] {
			t.Fatalf("invocation %d deadline = %v, want %v", i, ok, want[i])
		}
	}
}

func TestMixStemsRejectsEmpty(t *testing.T) {
	tool := NewTool("", "")
	if err := tool.MixStems(context.Background(), nil, t.TempDir()+"/mix.wav"); err == nil {
		t.Fatal("expected error for empty stem list")
	}
}

func TestExtractChunkFormatsWindow(t *testing.T) {
	var calls [][]string
	fakeCommand(t, &calls)

	tool := NewTool("ffmpeg", "ffprobe")
	dst := t.TempDir() + "/chunk_0.wav"
	if err := tool.ExtractChunk(context.Background(), "in.flac", dst, 12.5, 30.25, 44100); err != nil {
		t.Fatalf("ExtractChunk: %v", err)
	}
	joined := strings.Join(calls[0], " ")
	for _, want := range []string{"-ss 12.500", "-t 30.250", "-ar 44100", "pcm_s16le"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %q", want, joined)
		}
	}
}

func TestTrimEdgesZeroCopiesThrough(t *testing.T) {
	var calls [][]string
	fakeCommand(t, &calls)

	tool := NewTool("ffmpeg", "ffprobe")
	if err := tool.TrimEdges(context.Background(), "in.wav", t.TempDir()+"/out.wav", 0, 0); err != nil {
		t.Fatalf("TrimEdges: %v", err)
	}
	joined := strings.Join(calls[0], " ")
	if !strings.Contains(joined, "-c copy") {
		t.Fatalf("expected stream copy, got %q", joined)
	}
	if strings.Contains(joined, "-ss") {
		t.Fatalf("unexpected seek for zero trims: %q", joined)
	}
}

func TestParseLoudnormStats(t *testing.T) {
	output := `[Parsed_loudnorm_0 @ 0x55] noise chatter {"ignored": "first"}
more chatter
{
  "input_i": "-19.60",
  "measured_I": "-19.60",
  "measured_LRA": "6.30",
  "measured_TP": "-3.10",
  "measured_thresh": "-29.70",
  "offset": "0.50"
}`
	stats := parseLoudnormStats(output)
	if !stats.complete() {
		t.Fatalf("expected complete stats, got %+v", stats)
	}
	if stats.MeasuredI != "-19.60" || stats.Offset != "0.50" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestParseLoudnormStatsMalformed(t *testing.T) {
	for _, output := range []string{
		"",
		"no json here",
		"truncated { \"measured_I\": \"-19",
		`{"measured_I": "-19.60"}`,
	} {
		stats := parseLoudnormStats(output)
		if stats.complete() {
			t.Fatalf("expected incomplete stats for %q", output)
		}
	}
}

func TestCodecArguments(t *testing.T) {
	tests := []struct {
		codec string
		want  string
		ok    bool
	}{
		{codec: "mp3", want: "libmp3lame", ok: true},
		{codec: "FLAC", want: "flac", ok: true},
		{codec: "opus", want: "libopus", ok: true},
		{codec: "alac", want: "alac", ok: true},
		{codec: "wav", want: "pcm_s16le", ok: true},
		{codec: "aiff", ok: false},
	}
	for _, tc := range tests {
		args, err := codecArguments(tc.codec, 44100, 16)
		if tc.ok != (err == nil) {
			t.Fatalf("codec %s: err=%v", tc.codec, err)
		}
		if !tc.ok {
			continue
		}
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, tc.want) {
			t.Fatalf("codec %s: missing %q in %q", tc.codec, tc.want, joined)
		}
	}
}

func TestStripMetadataMapping(t *testing.T) {
	args := []string{"-y", "-i", "a.wav", "-map_metadata", "1:0", "-map", "0:a:0", "out.mp3"}
	stripped := stripMetadataMapping(args)
	joined := strings.Join(stripped, " ")
	if strings.Contains(joined, "map_metadata") || strings.Contains(joined, "1:0") {
		t.Fatalf("metadata mapping survived: %q", joined)
	}
	if !strings.Contains(joined, "-map 0:a:0") {
		t.Fatalf("stream mapping dropped: %q", joined)
	}
}
