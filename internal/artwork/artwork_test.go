package artwork

import (
	"os"
	"path/filepath"
	"testing"
)

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte{0xff, 0xd8}, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindInDirPrefersWellKnownNames(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "random.jpg")
	want := writeImage(t, dir, "cover.jpg")

	if got := FindInDir(dir); got != want {
		t.Fatalf("FindInDir = %q, want %q", got, want)
	}
}

func TestFindInDirFallsBackToAnyImage(t *testing.T) {
	dir := t.TempDir()
	want := writeImage(t, dir, "scan001.png")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := FindInDir(dir); got != want {
		t.Fatalf("FindInDir = %q, want %q", got, want)
	}
}

func TestFindInDirEmpty(t *testing.T) {
	if got := FindInDir(t.TempDir()); got != "" {
		t.Fatalf("FindInDir = %q, want empty", got)
	}
}
