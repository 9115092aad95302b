package testsupport

import (
	"context"
	"testing"

	"stemd/internal/config"
	"stemd/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue inserts a job for tests using the provided store.
func Enqueue(t testing.TB, store *queue.Store, spec queue.Spec) *queue.Job {
	t.Helper()

	job, inserted, err := store.EnqueueIfNew(context.Background(), spec)
	if err != nil {
		t.Fatalf("store.EnqueueIfNew: %v", err)
	}
	if !inserted {
		t.Fatalf("expected job %q to be newly inserted", spec.InputPath)
	}
	return job
}
