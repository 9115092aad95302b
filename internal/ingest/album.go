package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"stemd/internal/fileutil"
	"stemd/internal/logging"
	"stemd/internal/queue"
	"stemd/internal/sidecar"
)

// AlbumSignature fingerprints an album directory from the relative paths,
// sizes, and modification times of its audio files. Content hashing is
// skipped on purpose: albums can be large, and this structural signature is
// stable across the staging move.
func (s *Scanner) AlbumSignature(albumDir string) (string, error) {
	tracks, err := s.GatherAlbumTracks(albumDir)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, track := range tracks {
		rel, relErr := filepath.Rel(albumDir, track)
		if relErr != nil {
			continue
		}
		info, statErr := os.Stat(track)
		if statErr != nil {
			continue
		}
		h.Write([]byte(rel))
		h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
		h.Write([]byte(strconv.FormatInt(info.ModTime().Unix(), 10)))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GatherAlbumTracks returns the album's audio files sorted by path.
func (s *Scanner) GatherAlbumTracks(albumDir string) ([]string, error) {
	var tracks []string
	err := filepath.WalkDir(albumDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() && s.isAudioFile(path) {
			tracks = append(tracks, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk album %s: %w", albumDir, err)
	}
	sort.Strings(tracks)
	return tracks, nil
}

// HandleNewAlbum enqueues a top-level directory of the incoming root as a
// single album job. Directories elsewhere, or without audio files, are
// ignored.
func (s *Scanner) HandleNewAlbum(ctx context.Context, albumDir string) error {
	info, err := os.Stat(albumDir)
	if err != nil || !info.IsDir() {
		return nil
	}
	if filepath.Dir(albumDir) != filepath.Clean(s.cfg.Paths.IncomingDir) {
		return nil
	}
	if filepath.Base(albumDir) == LockDirName {
		return nil
	}
	tracks, err := s.GatherAlbumTracks(albumDir)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return nil
	}

	signature, err := s.AlbumSignature(albumDir)
	if err != nil {
		return err
	}
	params, err := sidecar.ParamsFor(s.cfg, albumDir)
	if err != nil {
		return err
	}

	stagedDir := albumDir
	if s.cfg.Ingest.StagingEnabled {
		stagedDir = filepath.Join(s.cfg.Paths.StagingDir, filepath.Base(albumDir))
		if _, statErr := os.Stat(stagedDir); statErr == nil {
			if rmErr := os.RemoveAll(stagedDir); rmErr != nil {
				return fmt.Errorf("clear stale staged album: %w", rmErr)
			}
		}
		if moveErr := fileutil.MoveDir(albumDir, stagedDir); moveErr != nil {
			return fmt.Errorf("stage album %s: %w", albumDir, moveErr)
		}
	}

	job, inserted, err := s.store.EnqueueIfNew(ctx, queue.Spec{
		InputPath:   stagedDir,
		Fingerprint: signature,
		Model:       params.Model,
		StemSet:     params.StemSet,
		SampleRate:  params.SampleRate,
		BitDepth:    params.BitDepth,
		Codec:       params.Codec,
		Kind:        queue.KindAlbum,
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.Debug("duplicate album ignored", logging.String("album", stagedDir))
		return nil
	}

	if err := os.WriteFile(filepath.Join(stagedDir, AlbumLockedMarker), []byte("1"), 0o644); err != nil {
		s.logger.Warn("album marker write failed",
			logging.String("album", stagedDir),
			logging.Error(err))
	}
	s.logger.Info("enqueued album",
		logging.Int64("job", job.ID),
		logging.String("album", filepath.Base(stagedDir)),
		logging.Int("tracks", len(tracks)),
		logging.String("stems", params.StemSet),
		logging.String("model", params.Model))
	return nil
}
