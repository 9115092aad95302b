// Package demucs wraps the demucs command-line stem separator.
package demucs
