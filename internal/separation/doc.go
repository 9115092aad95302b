// Package separation drives the stem separation engine, recovering from
// memory exhaustion by splitting the input into overlapping chunks and
// stitching the per-chunk stems back together with crossfades.
package separation
