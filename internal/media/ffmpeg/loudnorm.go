package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LoudnormTargets carries the desired integrated loudness and true peak.
type LoudnormTargets struct {
	IntegratedLUFS float64
	TruePeakDB     float64
}

// loudnormStats holds the measured values from the analysis pass. ffmpeg
// emits them as JSON strings.
type loudnormStats struct {
	InputI      string `json:"input_i"`
	MeasuredI   string `json:"measured_I"`
	MeasuredLRA string `json:"measured_LRA"`
	MeasuredTP  string `json:"measured_TP"`
	Thresh      string `json:"measured_thresh"`
	Offset      string `json:"offset"`
}

func (s loudnormStats) complete() bool {
	return s.MeasuredI != "" && s.MeasuredLRA != "" && s.MeasuredTP != "" && s.Thresh != "" && s.Offset != ""
}

// Normalize renders src to dst at the target loudness. With dualPass the
// loudnorm filter runs in linear two-pass mode using measured values from an
// analysis run; if the measurement cannot be parsed it degrades to a single
// dynamic pass rather than failing the job.
func (t *Tool) Normalize(ctx context.Context, src, dst string, targets LoudnormTargets, sampleRate int, dualPass bool) error {
	filter := fmt.Sprintf("loudnorm=I=%s:TP=%s:LRA=11:print_format=summary",
		formatTarget(targets.IntegratedLUFS), formatTarget(targets.TruePeakDB))

	if dualPass {
		stats, err := t.measureLoudness(ctx, src, targets)
		if err != nil {
			return err
		}
		if stats.complete() {
			filter = fmt.Sprintf(
				"loudnorm=I=%s:TP=%s:LRA=11:measured_I=%s:measured_LRA=%s:measured_TP=%s:measured_thresh=%s:offset=%s:linear=true:print_format=summary",
				formatTarget(targets.IntegratedLUFS),
				formatTarget(targets.TruePeakDB),
				stats.MeasuredI,
				stats.MeasuredLRA,
				stats.MeasuredTP,
				stats.Thresh,
				stats.Offset,
			)
		}
	}

	return t.run(ctx,
		"-y",
		"-i", src,
		"-filter_complex", filter,
		"-c:a", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		dst,
	)
}

func (t *Tool) measureLoudness(ctx context.Context, src string, targets LoudnormTargets) (loudnormStats, error) {
	filter := fmt.Sprintf("loudnorm=I=%s:TP=%s:LRA=11:print_format=json",
		formatTarget(targets.IntegratedLUFS), formatTarget(targets.TruePeakDB))

	runCtx, cancel := t.execContext(ctx)
	defer cancel()
	cmd := commandContext(runCtx, t.Binary,
		"-y",
		"-i", src,
		"-filter_complex", filter,
		"-f", "null", "-",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return loudnormStats{}, fmt.Errorf("loudnorm measure: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return parseLoudnormStats(string(output)), nil
}

// parseLoudnormStats extracts the last brace-balanced JSON object from
// ffmpeg's mixed text output. Unparseable output yields empty stats, which
// callers treat as a fallback to single-pass.
func parseLoudnormStats(output string) loudnormStats {
	start := strings.LastIndexByte(output, '{')
	if start == -1 {
		return loudnormStats{}
	}
	depth := 0
	for i := start; i < len(output); i++ {
		switch output[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var stats loudnormStats
				if err := json.Unmarshal([]byte(output[start:i+1]), &stats); err != nil {
					return loudnormStats{}
				}
				return stats
			}
		}
	}
	return loudnormStats{}
}

func formatTarget(value float64) string {
	return strconv.FormatFloat(value, 'f', 1, 64)
}
