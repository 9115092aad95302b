package config

const (
	defaultIncomingDir   = "~/.local/share/stemd/incoming"
	defaultStagingDir    = "~/.local/share/stemd/staging"
	defaultWorkDir       = "~/.local/share/stemd/work"
	defaultLibraryDir    = "~/music-library"
	defaultArchiveDir    = "~/.local/share/stemd/archive"
	defaultQuarantineDir = "~/.local/share/stemd/quarantine"
	defaultLogDir        = "~/.local/share/stemd/logs"

	defaultModel           = "htdemucs"
	defaultDevice          = "cpu"
	defaultChunkMax        = 16
	defaultChunkOverlapSec = 0.5
	defaultCrossfadeMS     = 200
	defaultRetryBackoffSec = 3
	defaultChunkTimeoutSec = 3600
	defaultChunkMaxRetries = 2

	defaultSampleRate = 44100
	defaultBitDepth   = 16
	defaultCodec      = "mp3"

	defaultTargetLUFS = -14.0
	defaultTruePeak   = -1.0

	defaultStabilityPasses   = 2
	defaultStabilityDelaySec = 5
	defaultMinInputBytes     = 1024
	defaultRescanIntervalSec = 300

	defaultPollIntervalSec = 5
	defaultErrorBackoffSec = 10
	defaultLockRetrySec    = 2
	defaultToolTimeoutSec  = 0

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			IncomingDir:   defaultIncomingDir,
			StagingDir:    defaultStagingDir,
			WorkDir:       defaultWorkDir,
			LibraryDir:    defaultLibraryDir,
			ArchiveDir:    defaultArchiveDir,
			QuarantineDir: defaultQuarantineDir,
			LogDir:        defaultLogDir,
		},
		Separation: Separation{
			Model:           defaultModel,
			Device:          defaultDevice,
			ChunkingEnabled: true,
			ChunkMax:        defaultChunkMax,
			ChunkOverlapSec: defaultChunkOverlapSec,
			CrossfadeMS:     defaultCrossfadeMS,
			RetryBackoffSec: defaultRetryBackoffSec,
			ChunkTimeoutSec: defaultChunkTimeoutSec,
			ChunkMaxRetries: defaultChunkMaxRetries,
		},
		Output: Output{
			KeepStems:  []string{"D", "B", "O"},
			SampleRate: defaultSampleRate,
			BitDepth:   defaultBitDepth,
			Codec:      defaultCodec,
		},
		Mix: Mix{
			TargetLUFS:       defaultTargetLUFS,
			TruePeak:         defaultTruePeak,
			DualPassLoudnorm: true,
		},
		Ingest: Ingest{
			StabilityPasses:   defaultStabilityPasses,
			StabilityDelaySec: defaultStabilityDelaySec,
			MinInputBytes:     defaultMinInputBytes,
			AudioExtensions:   []string{".mp3", ".wav", ".flac", ".m4a", ".aac", ".ogg", ".opus"},
			SidecarEnabled:    true,
			DedupeCleanup:     "none",
			CorruptDest:       "archive",
			RescanIntervalSec: defaultRescanIntervalSec,
		},
		Worker: Worker{
			PollIntervalSec: defaultPollIntervalSec,
			ErrorBackoffSec: defaultErrorBackoffSec,
			LockRetrySec:    defaultLockRetrySec,
			ToolTimeoutSec:  defaultToolTimeoutSec,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
