// Package ingest watches the incoming directory tree and turns settled
// audio files and album directories into queued jobs. It owns write
// stability checks, filename-occurrence dedup policy, advisory lock
// markers, album grouping, and the optional move into staging.
package ingest
