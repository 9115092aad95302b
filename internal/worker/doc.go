// Package worker claims queued jobs and drives them through separation,
// mixing, loudness normalization, and final placement, with guaranteed
// lock and marker cleanup whether a job succeeds or fails.
package worker
