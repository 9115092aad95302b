// Package queue persists separation jobs in SQLite and provides the
// conditional-write primitives the rest of stemd relies on: dedup-keyed
// enqueue, album-priority dequeue, status transitions, named cooperative
// locks, and the per-basename occurrence counters used by filename dedup.
//
// The store is the single source of truth for job status. Rows are an
// append-only audit trail; the pipeline never deletes them.
package queue
