package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stemd/internal/artwork"
	"stemd/internal/logging"
	"stemd/internal/manifest"
	"stemd/internal/media/ffmpeg"
	"stemd/internal/media/ffprobe"
	"stemd/internal/queue"
	"stemd/internal/sidecar"
	"stemd/internal/stems"
)

// jobParams are the effective processing parameters for one job: the
// dedup-keyed fields from the job row, loudness targets from config, with
// any sidecar re-applied at process time so edits after enqueue still win.
func (e *Executor) jobParams(job *queue.Job) (sidecar.Params, error) {
	params := sidecar.Params{
		Model:      job.Model,
		StemSet:    job.StemSet,
		SampleRate: job.SampleRate,
		BitDepth:   job.BitDepth,
		Codec:      job.Codec,
		TargetLUFS: e.cfg.Mix.TargetLUFS,
		TruePeak:   e.cfg.Mix.TruePeak,
		DualPass:   e.cfg.Mix.DualPassLoudnorm,
	}
	if !e.cfg.Ingest.SidecarEnabled {
		return params, nil
	}
	overrides, err := sidecar.Load(job.InputPath)
	if err != nil {
		return sidecar.Params{}, err
	}
	return params.Apply(overrides)
}

// processJob renders a job end to end and returns the final output path,
// the manifest path, and notes for the job record.
func (e *Executor) processJob(ctx context.Context, job *queue.Job) (string, string, map[string]any, error) {
	params, err := e.jobParams(job)
	if err != nil {
		return "", "", nil, err
	}

	workDir := filepath.Join(e.cfg.Paths.WorkDir, fmt.Sprintf("job_%d", job.ID))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", "", nil, fmt.Errorf("create work dir: %w", err)
	}

	info, err := os.Stat(job.InputPath)
	if err != nil {
		return "", "", nil, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return e.processAlbum(ctx, job, params, workDir)
	}

	output, entry, err := e.processTrack(ctx, job.InputPath, params, workDir, "")
	if err != nil {
		return "", "", nil, err
	}

	manifestPath := manifest.PathIn(workDir)
	err = manifest.Write(manifestPath, manifest.Single{
		Input:      job.InputPath,
		Output:     output,
		Model:      params.Model,
		StemSet:    params.StemSet,
		SampleRate: params.SampleRate,
		BitDepth:   params.BitDepth,
		Codec:      params.Codec,
		Notes:      entry.Notes,
		Timestamps: manifest.Timestamps{Finished: time.Now().UTC()},
	})
	if err != nil {
		return "", "", nil, err
	}
	return output, manifestPath, entry.Notes, nil
}

// processAlbum renders every track of an album job sequentially, sharing
// one cover and rewriting the album manifest after each track so progress
// survives a crash.
func (e *Executor) processAlbum(ctx context.Context, job *queue.Job, params sidecar.Params, workDir string) (string, string, map[string]any, error) {
	tracks, err := e.scannerTracks(job.InputPath)
	if err != nil {
		return "", "", nil, err
	}
	if len(tracks) == 0 {
		return "", "", nil, errors.New("album contains no audio files")
	}

	cover := artwork.ForAlbum(ctx, e.tool, job.InputPath, tracks, workDir)

	albumManifest := manifest.Album{
		AlbumDir:   job.InputPath,
		Model:      params.Model,
		StemSet:    params.StemSet,
		SampleRate: params.SampleRate,
		BitDepth:   params.BitDepth,
		Codec:      params.Codec,
		Cover:      cover,
		Tracks:     []manifest.TrackEntry{},
	}
	manifestPath := manifest.PathIn(workDir)
	if err := manifest.Write(manifestPath, albumManifest); err != nil {
		return "", "", nil, err
	}

	var lastOutput string
	for i, track := range tracks {
		trackWork := filepath.Join(workDir, fmt.Sprintf("track_%d", i+1))
		if err := os.MkdirAll(trackWork, 0o755); err != nil {
			return "", "", nil, fmt.Errorf("create track work dir: %w", err)
		}
		output, entry, err := e.processTrack(ctx, track, params, trackWork, cover)
		if err != nil {
			return "", "", nil, fmt.Errorf("track %s: %w", filepath.Base(track), err)
		}
		lastOutput = output
		albumManifest.Tracks = append(albumManifest.Tracks, entry)
		if err := manifest.Write(manifestPath, albumManifest); err != nil {
			return "", "", nil, err
		}
		e.logger.Info("album track rendered",
			logging.Int64("job", job.ID),
			logging.Int("track", i+1),
			logging.Int("total", len(tracks)),
			logging.String("output", filepath.Base(output)))
	}

	notes := map[string]any{
		"album":      true,
		"num_tracks": len(tracks),
	}
	if cover != "" {
		notes["album_cover"] = cover
	}
	return lastOutput, manifestPath, notes, nil
}

// processTrack runs the full pipeline for one audio file: separation with
// OOM escalation, stem selection and mixing, loudness normalization, and the
// tagged final encode.
func (e *Executor) processTrack(ctx context.Context, inputPath string, params sidecar.Params, workDir, coverArt string) (string, manifest.TrackEntry, error) {
	sepResult, err := e.separator(params).Run(ctx, inputPath, workDir)
	if err != nil {
		return "", manifest.TrackEntry{}, err
	}

	notes := map[string]any{"oom_recovered": sepResult.OOMRecovered}
	if sepResult.OOMRecovered {
		notes["chunking"] = map[string]any{"num_chunks": sepResult.Chunks}
	}

	keep, err := stems.ParseCompact(params.StemSet)
	if err != nil {
		return "", manifest.TrackEntry{}, err
	}
	var stemFiles []string
	for _, stem := range keep {
		stemFile := filepath.Join(sepResult.StemDir, stem.Name()+".wav")
		if _, statErr := os.Stat(stemFile); statErr == nil {
			stemFiles = append(stemFiles, stemFile)
		}
	}
	if len(stemFiles) == 0 {
		return "", manifest.TrackEntry{}, errors.New("no stems selected or stems missing")
	}

	mixPath := filepath.Join(workDir, "mix.wav")
	if err := e.tool.MixStems(ctx, stemFiles, mixPath); err != nil {
		return "", manifest.TrackEntry{}, err
	}

	normPath := filepath.Join(workDir, "mix_norm.wav")
	targets := ffmpeg.LoudnormTargets{IntegratedLUFS: params.TargetLUFS, TruePeakDB: params.TruePeak}
	if err := e.tool.Normalize(ctx, mixPath, normPath, targets, params.SampleRate, params.DualPass); err != nil {
		return "", manifest.TrackEntry{}, err
	}

	tags := e.readTags(ctx, inputPath)
	filename := ComposeOutputName(tags, params.StemSet, params.Model, params.SampleRate, params.BitDepth, params.Codec, inputPath)
	outputPath := OutputPath(e.cfg, tags, filename, e.cfg.Output.StructuredSingles)

	err = e.tool.Encode(ctx, ffmpeg.EncodeRequest{
		RenderedWAV: normPath,
		TagSource:   inputPath,
		CoverArt:    coverArt,
		Output:      outputPath,
		Codec:       params.Codec,
		SampleRate:  params.SampleRate,
		BitDepth:    params.BitDepth,
	})
	if err != nil {
		return "", manifest.TrackEntry{}, err
	}

	entry := manifest.TrackEntry{
		Input:  inputPath,
		Output: outputPath,
		Tags:   tagMap(tags),
		Notes:  notes,
	}
	return outputPath, entry, nil
}

func (e *Executor) readTags(ctx context.Context, path string) Tags {
	result, err := ffprobe.Inspect(ctx, e.cfg.FFprobeBinary(), path)
	if err != nil {
		return Tags{}
	}
	return Tags{Artist: result.Artist(), Title: result.Title(), Album: result.Album()}
}

func (e *Executor) scannerTracks(albumDir string) ([]string, error) {
	var tracks []string
	err := filepath.WalkDir(albumDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, allowed := range e.cfg.Ingest.AudioExtensions {
			if ext == strings.ToLower(allowed) {
				tracks = append(tracks, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk album: %w", err)
	}
	sort.Strings(tracks)
	return tracks, nil
}

func tagMap(tags Tags) map[string]string {
	m := make(map[string]string, 3)
	if tags.Artist != "" {
		m["artist"] = tags.Artist
	}
	if tags.Title != "" {
		m["title"] = tags.Title
	}
	if tags.Album != "" {
		m["album"] = tags.Album
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

