package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"stemd/internal/ingest"
	"stemd/internal/queue"
	"stemd/internal/testsupport"
)

func TestHandleNewAlbumEnqueuesOnce(t *testing.T) {
	cfg := newScannerConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanner := newScanner(t, cfg, store)
	ctx := context.Background()

	album := filepath.Join(cfg.Paths.IncomingDir, "Some Album")
	testsupport.WriteFileContent(t, filepath.Join(album, "01 - First.flac"), "track one")
	testsupport.WriteFileContent(t, filepath.Join(album, "02 - Second.flac"), "track two")
	testsupport.WriteFileContent(t, filepath.Join(album, "cover.jpg"), "jpeg bytes")

	if err := scanner.HandleNewAlbum(ctx, album); err != nil {
		t.Fatalf("HandleNewAlbum: %v", err)
	}

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Kind != queue.KindAlbum || jobs[0].InputPath != album {
		t.Fatalf("job = %+v", jobs[0])
	}
	if _, err := os.Stat(filepath.Join(album, ingest.AlbumLockedMarker)); err != nil {
		t.Fatalf("expected album marker: %v", err)
	}

	// A second pass sees the same structural signature and inserts nothing.
	if err := scanner.HandleNewAlbum(ctx, album); err != nil {
		t.Fatalf("second HandleNewAlbum: %v", err)
	}
	jobs, _ = store.List(ctx)
	if len(jobs) != 1 {
		t.Fatalf("jobs after rescan = %d, want 1", len(jobs))
	}
}

func TestAlbumTracksNotEnqueuedIndividually(t *testing.T) {
	cfg := newScannerConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanner := newScanner(t, cfg, store)
	ctx := context.Background()

	album := filepath.Join(cfg.Paths.IncomingDir, "Some Album")
	track := filepath.Join(album, "01 - First.flac")
	testsupport.WriteFileContent(t, track, "track one")

	if err := scanner.HandleNewAlbum(ctx, album); err != nil {
		t.Fatalf("HandleNewAlbum: %v", err)
	}
	if err := scanner.HandleNewFile(ctx, track); err != nil {
		t.Fatalf("HandleNewFile: %v", err)
	}

	jobs, _ := store.List(ctx)
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want only the album job", len(jobs))
	}
}

func TestHandleNewAlbumIgnoresNestedAndEmptyDirs(t *testing.T) {
	cfg := newScannerConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanner := newScanner(t, cfg, store)
	ctx := context.Background()

	empty := filepath.Join(cfg.Paths.IncomingDir, "Empty")
	if err := os.MkdirAll(empty, 0o755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(cfg.Paths.IncomingDir, "Outer", "Inner")
	testsupport.WriteFileContent(t, filepath.Join(nested, "track.flac"), "audio")

	if err := scanner.HandleNewAlbum(ctx, empty); err != nil {
		t.Fatalf("HandleNewAlbum empty: %v", err)
	}
	if err := scanner.HandleNewAlbum(ctx, nested); err != nil {
		t.Fatalf("HandleNewAlbum nested: %v", err)
	}
	jobs, _ := store.List(ctx)
	if len(jobs) != 0 {
		t.Fatalf("jobs = %d, want 0", len(jobs))
	}
}

func TestHandleNewAlbumStagesDirectory(t *testing.T) {
	cfg := newScannerConfig(t)
	cfg.Ingest.StagingEnabled = true
	store := testsupport.MustOpenStore(t, cfg)
	scanner := newScanner(t, cfg, store)
	ctx := context.Background()

	album := filepath.Join(cfg.Paths.IncomingDir, "Some Album")
	testsupport.WriteFileContent(t, filepath.Join(album, "01.flac"), "track one")

	if err := scanner.HandleNewAlbum(ctx, album); err != nil {
		t.Fatalf("HandleNewAlbum: %v", err)
	}

	staged := filepath.Join(cfg.Paths.StagingDir, "Some Album")
	if _, err := os.Stat(filepath.Join(staged, "01.flac")); err != nil {
		t.Fatalf("expected staged track: %v", err)
	}
	if _, err := os.Stat(album); !os.IsNotExist(err) {
		t.Fatal("expected album dir to leave incoming")
	}
	jobs, _ := store.List(ctx)
	if len(jobs) != 1 || jobs[0].InputPath != staged {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestAlbumSignatureTracksContentChanges(t *testing.T) {
	cfg := newScannerConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanner := newScanner(t, cfg, store)

	album := filepath.Join(cfg.Paths.IncomingDir, "Some Album")
	testsupport.WriteFileContent(t, filepath.Join(album, "01.flac"), "track one")

	first, err := scanner.AlbumSignature(album)
	if err != nil {
		t.Fatalf("AlbumSignature: %v", err)
	}
	second, err := scanner.AlbumSignature(album)
	if err != nil {
		t.Fatalf("AlbumSignature repeat: %v", err)
	}
	if first != second {
		t.Fatal("signature should be stable for unchanged album")
	}

	testsupport.WriteFileContent(t, filepath.Join(album, "02.flac"), "track two")
	changed, err := scanner.AlbumSignature(album)
	if err != nil {
		t.Fatalf("AlbumSignature changed: %v", err)
	}
	if changed == first {
		t.Fatal("signature should change when tracks are added")
	}
}
