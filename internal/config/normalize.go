package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSeparation()
	c.normalizeOutput()
	c.normalizeIngest()
	c.normalizeWorker()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.IncomingDir, err = expandPath(c.Paths.IncomingDir); err != nil {
		return fmt.Errorf("paths.incoming_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.ArchiveDir, err = expandPath(c.Paths.ArchiveDir); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	if c.Paths.QuarantineDir, err = expandPath(c.Paths.QuarantineDir); err != nil {
		return fmt.Errorf("paths.quarantine_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSeparation() {
	c.Separation.Model = strings.TrimSpace(c.Separation.Model)
	if c.Separation.Model == "" {
		c.Separation.Model = defaultModel
	}
	c.Separation.Device = strings.ToLower(strings.TrimSpace(c.Separation.Device))
	if c.Separation.Device == "" {
		c.Separation.Device = defaultDevice
	}
	if c.Separation.ChunkMax <= 0 {
		c.Separation.ChunkMax = defaultChunkMax
	}
	if c.Separation.ChunkOverlapSec <= 0 {
		c.Separation.ChunkOverlapSec = defaultChunkOverlapSec
	}
	if c.Separation.CrossfadeMS <= 0 {
		c.Separation.CrossfadeMS = defaultCrossfadeMS
	}
	if c.Separation.RetryBackoffSec <= 0 {
		c.Separation.RetryBackoffSec = defaultRetryBackoffSec
	}
	if c.Separation.ChunkMaxRetries < 0 {
		c.Separation.ChunkMaxRetries = defaultChunkMaxRetries
	}
}

func (c *Config) normalizeOutput() {
	codes := make([]string, 0, len(c.Output.KeepStems))
	for _, code := range c.Output.KeepStems {
		trimmed := strings.ToUpper(strings.TrimSpace(code))
		if trimmed != "" {
			codes = append(codes, trimmed)
		}
	}
	c.Output.KeepStems = codes
	c.Output.Codec = strings.ToLower(strings.TrimSpace(c.Output.Codec))
	if c.Output.Codec == "" {
		c.Output.Codec = defaultCodec
	}
	if c.Output.SampleRate <= 0 {
		c.Output.SampleRate = defaultSampleRate
	}
	if c.Output.BitDepth <= 0 {
		c.Output.BitDepth = defaultBitDepth
	}
}

func (c *Config) normalizeIngest() {
	exts := make([]string, 0, len(c.Ingest.AudioExtensions))
	for _, ext := range c.Ingest.AudioExtensions {
		trimmed := strings.ToLower(strings.TrimSpace(ext))
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, ".") {
			trimmed = "." + trimmed
		}
		exts = append(exts, trimmed)
	}
	if len(exts) > 0 {
		c.Ingest.AudioExtensions = exts
	}
	c.Ingest.DedupeCleanup = strings.ToLower(strings.TrimSpace(c.Ingest.DedupeCleanup))
	if c.Ingest.DedupeCleanup == "" {
		c.Ingest.DedupeCleanup = "none"
	}
	c.Ingest.CorruptDest = strings.ToLower(strings.TrimSpace(c.Ingest.CorruptDest))
	if c.Ingest.CorruptDest == "" {
		c.Ingest.CorruptDest = "archive"
	}
	if c.Ingest.StabilityPasses <= 0 {
		c.Ingest.StabilityPasses = defaultStabilityPasses
	}
	if c.Ingest.StabilityDelaySec < 0 {
		c.Ingest.StabilityDelaySec = defaultStabilityDelaySec
	}
	if c.Ingest.FastStability {
		c.Ingest.StabilityPasses = 1
		c.Ingest.StabilityDelaySec = 0
	}
	if c.Ingest.RescanIntervalSec <= 0 {
		c.Ingest.RescanIntervalSec = defaultRescanIntervalSec
	}
}

func (c *Config) normalizeWorker() {
	if c.Worker.PollIntervalSec <= 0 {
		c.Worker.PollIntervalSec = defaultPollIntervalSec
	}
	if c.Worker.ErrorBackoffSec <= 0 {
		c.Worker.ErrorBackoffSec = defaultErrorBackoffSec
	}
	if c.Worker.LockRetrySec <= 0 {
		c.Worker.LockRetrySec = defaultLockRetrySec
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
