// Package logging builds the slog loggers used across stemd.
//
// Two output formats are supported: a colorized console handler for
// interactive use and a JSON handler for machine consumption. Components
// receive a *slog.Logger from their constructor and never log through
// package globals.
package logging
