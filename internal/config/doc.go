// Package config loads and validates stemd configuration from TOML.
//
// A single Config value is constructed at startup and handed to each
// component's constructor; nothing reads configuration through package
// globals. Paths support ~ expansion and are normalized to absolute
// form during Load.
package config
