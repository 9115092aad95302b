package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stemd/internal/ingest"
	"stemd/internal/queue"
	"stemd/internal/testsupport"
	"stemd/internal/worker"
)

func TestProcessNextMarksDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	input := filepath.Join(cfg.Paths.IncomingDir, "song.flac")
	testsupport.WriteFile(t, input, 64)
	job := testsupport.Enqueue(t, store, queue.Spec{
		InputPath:   input,
		Fingerprint: "fp-song",
		Model:       "htdemucs",
		StemSet:     "DBO",
		SampleRate:  44100,
		BitDepth:    16,
		Codec:       "mp3",
		Kind:        queue.KindSingle,
	})
	if err := ingest.CreateQueuedMarker(cfg.Paths.IncomingDir, input); err != nil {
		t.Fatalf("create marker: %v", err)
	}

	var seen *queue.Job
	exec := worker.NewExecutor(cfg, store, nil, worker.WithProcessFunc(
		func(ctx context.Context, j *queue.Job) (string, string, map[string]any, error) {
			seen = j
			return "/out/song.mp3", "/out/manifest.json", map[string]any{"chunks": 1}, nil
		}))

	processed, err := exec.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !processed {
		t.Fatal("expected a job to be processed")
	}
	if seen == nil || seen.ID != job.ID {
		t.Fatalf("process func saw wrong job: %+v", seen)
	}

	got, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Status != queue.StatusDone {
		t.Fatalf("expected one done job, got %+v", got)
	}
	if got[0].OutputPath != "/out/song.mp3" {
		t.Fatalf("output path = %q", got[0].OutputPath)
	}
	if ingest.HasQueuedMarker(cfg.Paths.IncomingDir, input) {
		t.Fatal("queued marker should be removed after processing")
	}
}

func TestProcessNextRecordsFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	input := filepath.Join(cfg.Paths.IncomingDir, "bad.flac")
	testsupport.WriteFile(t, input, 64)
	testsupport.Enqueue(t, store, queue.Spec{
		InputPath: input, Fingerprint: "fp-bad",
		Model: "htdemucs", StemSet: "DBO",
		SampleRate: 44100, BitDepth: 16, Codec: "mp3",
		Kind: queue.KindSingle,
	})
	if err := ingest.CreateQueuedMarker(cfg.Paths.IncomingDir, input); err != nil {
		t.Fatalf("create marker: %v", err)
	}

	exec := worker.NewExecutor(cfg, store, nil, worker.WithProcessFunc(
		func(ctx context.Context, j *queue.Job) (string, string, map[string]any, error) {
			return "", "", nil, errors.New("separation blew up")
		}))

	processed, err := exec.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !processed {
		t.Fatal("failed job still counts as processed")
	}

	got, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got[0].Status != queue.StatusError {
		t.Fatalf("status = %q, want error", got[0].Status)
	}
	if got[0].ErrorMessage != "separation blew up" {
		t.Fatalf("error message = %q", got[0].ErrorMessage)
	}
	if ingest.HasQueuedMarker(cfg.Paths.IncomingDir, input) {
		t.Fatal("queued marker should be removed even on failure")
	}
}

func TestProcessNextAlbumLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	albumDir := filepath.Join(cfg.Paths.IncomingDir, "Album")
	testsupport.WriteFile(t, filepath.Join(albumDir, "01 - track.flac"), 64)
	marker := filepath.Join(albumDir, ".album_locked")
	testsupport.WriteFileContent(t, marker, "queued")
	testsupport.Enqueue(t, store, queue.Spec{
		InputPath: albumDir, Fingerprint: "fp-album",
		Model: "htdemucs", StemSet: "DBO",
		SampleRate: 44100, BitDepth: 16, Codec: "mp3",
		Kind: queue.KindAlbum,
	})

	exec := worker.NewExecutor(cfg, store, nil, worker.WithProcessFunc(
		func(ctx context.Context, j *queue.Job) (string, string, map[string]any, error) {
			holder, err := store.LockHolder(ctx, worker.AlbumLockName)
			if err != nil || holder == "" {
				t.Errorf("album lock not held during processing: %q err=%v", holder, err)
			}
			return albumDir, filepath.Join(albumDir, "manifest.json"), nil, nil
		}))

	processed, err := exec.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !processed {
		t.Fatal("expected album job to be processed")
	}

	holder, err := store.LockHolder(context.Background(), worker.AlbumLockName)
	if err != nil {
		t.Fatalf("LockHolder: %v", err)
	}
	if holder != "" {
		t.Fatalf("album lock still held by %q after processing", holder)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatal("album locked marker should be removed")
	}
}

func TestProcessNextAlbumLockContention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Worker.LockRetrySec = 0
	store := testsupport.MustOpenStore(t, cfg)

	albumDir := filepath.Join(cfg.Paths.IncomingDir, "Album")
	testsupport.WriteFile(t, filepath.Join(albumDir, "01 - track.flac"), 64)
	testsupport.Enqueue(t, store, queue.Spec{
		InputPath: albumDir, Fingerprint: "fp-album",
		Model: "htdemucs", StemSet: "DBO",
		SampleRate: 44100, BitDepth: 16, Codec: "mp3",
		Kind: queue.KindAlbum,
	})

	// A live process on this host already holds the lock.
	otherHolder := hostnamePrefix(t) + ":1"
	if ok, err := store.AcquireLock(context.Background(), worker.AlbumLockName, otherHolder); err != nil || !ok {
		t.Fatalf("seed lock: ok=%v err=%v", ok, err)
	}

	calls := 0
	exec := worker.NewExecutor(cfg, store, nil, worker.WithProcessFunc(
		func(ctx context.Context, j *queue.Job) (string, string, map[string]any, error) {
			calls++
			return "", "", nil, nil
		}))

	processed, err := exec.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if processed || calls != 0 {
		t.Fatalf("contended album job must not be processed (processed=%v calls=%d)", processed, calls)
	}

	got, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got[0].Status != queue.StatusQueued {
		t.Fatalf("status = %q, want queued after contention", got[0].Status)
	}
}

func TestProcessNextReclaimsDeadHolderLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	albumDir := filepath.Join(cfg.Paths.IncomingDir, "Album")
	testsupport.WriteFile(t, filepath.Join(albumDir, "01 - track.flac"), 64)
	testsupport.Enqueue(t, store, queue.Spec{
		InputPath: albumDir, Fingerprint: "fp-album",
		Model: "htdemucs", StemSet: "DBO",
		SampleRate: 44100, BitDepth: 16, Codec: "mp3",
		Kind: queue.KindAlbum,
	})

	// Stale lock from a crashed process on this host.
	staleHolder := hostnamePrefix(t) + ":999999999"
	if ok, err := store.AcquireLock(context.Background(), worker.AlbumLockName, staleHolder); err != nil || !ok {
		t.Fatalf("seed stale lock: ok=%v err=%v", ok, err)
	}

	exec := worker.NewExecutor(cfg, store, nil, worker.WithProcessFunc(
		func(ctx context.Context, j *queue.Job) (string, string, map[string]any, error) {
			return albumDir, "", nil, nil
		}))

	processed, err := exec.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !processed {
		t.Fatal("stale lock should be reclaimed and the job processed")
	}
}

func TestRecoverRequeuesRunningJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	input := filepath.Join(cfg.Paths.IncomingDir, "song.flac")
	testsupport.WriteFile(t, input, 64)
	job := testsupport.Enqueue(t, store, queue.Spec{
		InputPath: input, Fingerprint: "fp-song",
		Model: "htdemucs", StemSet: "DBO",
		SampleRate: 44100, BitDepth: 16, Codec: "mp3",
		Kind: queue.KindSingle,
	})
	if err := store.MarkRunning(context.Background(), job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	// Stale album lock from the dead incarnation of this process.
	staleHolder := hostnamePrefix(t) + ":999999999"
	if ok, err := store.AcquireLock(context.Background(), worker.AlbumLockName, staleHolder); err != nil || !ok {
		t.Fatalf("seed stale lock: ok=%v err=%v", ok, err)
	}

	exec := worker.NewExecutor(cfg, store, nil)
	if err := exec.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	got, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got[0].Status != queue.StatusQueued {
		t.Fatalf("status = %q, want queued after recovery", got[0].Status)
	}
	holder, err := store.LockHolder(context.Background(), worker.AlbumLockName)
	if err != nil {
		t.Fatalf("LockHolder: %v", err)
	}
	if holder != "" {
		t.Fatalf("stale lock still held by %q", holder)
	}
}

func TestDrainOnceStopsOnEmptyQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	for _, name := range []string{"a.flac", "b.flac"} {
		input := filepath.Join(cfg.Paths.IncomingDir, name)
		testsupport.WriteFile(t, input, 64)
		testsupport.Enqueue(t, store, queue.Spec{
			InputPath: input, Fingerprint: "fp-" + name,
			Model: "htdemucs", StemSet: "DBO",
			SampleRate: 44100, BitDepth: 16, Codec: "mp3",
			Kind: queue.KindSingle,
		})
	}

	calls := 0
	exec := worker.NewExecutor(cfg, store, nil, worker.WithProcessFunc(
		func(ctx context.Context, j *queue.Job) (string, string, map[string]any, error) {
			calls++
			return "/out/" + filepath.Base(j.InputPath), "", nil, nil
		}))

	if err := exec.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	if calls != 2 {
		t.Fatalf("processed %d jobs, want 2", calls)
	}
}

func hostnamePrefix(t *testing.T) string {
	t.Helper()
	hostname, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return hostname
}
