// Package daemon wires the ingest scanner and job executor into a
// long-running, single-instance background process.
package daemon
