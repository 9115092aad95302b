package config

import (
	"errors"
	"fmt"

	"stemd/internal/stems"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSeparation(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.IncomingDir == "" {
		return errors.New("paths.incoming_dir must be set")
	}
	if c.Paths.LibraryDir == "" {
		return errors.New("paths.library_dir must be set")
	}
	if c.Paths.IncomingDir == c.Paths.StagingDir {
		return errors.New("paths.staging_dir must differ from paths.incoming_dir")
	}
	return nil
}

func (c *Config) validateSeparation() error {
	switch c.Separation.Device {
	case "cpu", "cuda":
	default:
		return fmt.Errorf("separation.device must be cpu or cuda, got %q", c.Separation.Device)
	}
	if c.Separation.ChunkMax < 2 {
		return errors.New("separation.chunk_max must be at least 2")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if len(c.Output.KeepStems) == 0 {
		return errors.New("output.keep_stems must select at least one stem")
	}
	if _, err := stems.ParseCodes(c.Output.KeepStems); err != nil {
		return fmt.Errorf("output.keep_stems: %w", err)
	}
	switch c.Output.Codec {
	case "mp3", "flac", "wav", "opus", "m4a":
	default:
		return fmt.Errorf("output.codec %q is not supported", c.Output.Codec)
	}
	switch c.Output.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("output.bit_depth must be 16, 24, or 32, got %d", c.Output.BitDepth)
	}
	return nil
}

func (c *Config) validateIngest() error {
	switch c.Ingest.DedupeCleanup {
	case "none", "archive", "purge":
	default:
		return fmt.Errorf("ingest.dedupe_cleanup must be none, archive, or purge, got %q", c.Ingest.DedupeCleanup)
	}
	switch c.Ingest.CorruptDest {
	case "archive", "quarantine":
	default:
		return fmt.Errorf("ingest.corrupt_dest must be archive or quarantine, got %q", c.Ingest.CorruptDest)
	}
	if len(c.Ingest.AudioExtensions) == 0 {
		return errors.New("ingest.audio_extensions must not be empty")
	}
	return nil
}
