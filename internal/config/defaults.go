package config

// Default values for configuration options. These represent the "layer 0"
// of the override chain and are chosen to be safe, reasonable starting
// points that work without a config file. Names echo the pclsync constants
// they descend from (see SPEC_FULL.md §4) so the mapping stays traceable.
const (
	defaultIgnorePatterns = "*.part;*.tmp;.DS_Store;Thumbs.db;*~"
	defaultIgnorePaths    = ""
	defaultMaxFileSize    = "0" // 0 == unlimited

	defaultMaxParallelUploads      = 6 // PSYNC_MAX_PARALLEL_UPLOADS
	defaultStartNewUploadsTreshold = "16MiB"
	defaultMinSizeForChecksums     = "1MiB" // PSYNC_MIN_SIZE_FOR_CHECKSUMS
	defaultMaxPendingUploadReqs    = 4      // PSYNC_MAX_PENDING_UPLOAD_REQS
	defaultMaxCopyFromReq          = "1000" // PSYNC_MAX_COPY_FROM_REQ
	defaultUploadOlderThanSec      = 2      // PSYNC_UPLOAD_OLDER_THAN_SEC
	defaultMaxDownloadSpeed        = "0"    // auto
	defaultMaxUploadSpeed          = "0"    // auto
	defaultSpeedCalcAverageSec     = 5      // PSYNC_SPEED_CALC_AVERAGE_SEC

	defaultMinLocalFreeSpace = "512MiB"
	defaultSyncDirPerms      = "0700"
	defaultSyncFilePerms     = "0600"

	defaultFullscanInterval = "5m"
	defaultWatchFilesystem  = true
	defaultShutdownTimeout  = "30s"

	defaultLogLevel  = "info"
	defaultLogFormat = "auto"

	defaultAPIServer      = "api.example.com"
	defaultUseSSL         = true
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	defaultPoolSize       = 16
)

// DefaultConfig returns a Config populated with all default values. This is
// used both as the starting point for TOML decoding (so unset fields retain
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		SyncRoots: nil,
		Filter:    defaultFilterConfig(),
		Transfers: defaultTransfersConfig(),
		Safety:    defaultSafetyConfig(),
		Sync:      defaultSyncConfig(),
		Logging:   defaultLoggingConfig(),
		Network:   defaultNetworkConfig(),
	}
}

func defaultFilterConfig() FilterConfig {
	return FilterConfig{
		IgnorePatterns: defaultIgnorePatterns,
		IgnorePaths:    defaultIgnorePaths,
		SkipSymlinks:   true,
		MaxFileSize:    defaultMaxFileSize,
	}
}

func defaultTransfersConfig() TransfersConfig {
	return TransfersConfig{
		MaxParallelUploads:      defaultMaxParallelUploads,
		StartNewUploadsTreshold: defaultStartNewUploadsTreshold,
		MinSizeForChecksums:     defaultMinSizeForChecksums,
		MaxPendingUploadReqs:    defaultMaxPendingUploadReqs,
		MaxCopyFromReq:          defaultMaxCopyFromReq,
		UploadOlderThanSec:      defaultUploadOlderThanSec,
		MaxDownloadSpeed:        defaultMaxDownloadSpeed,
		MaxUploadSpeed:          defaultMaxUploadSpeed,
		SpeedCalcAverageSec:     defaultSpeedCalcAverageSec,
	}
}

func defaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		MinLocalFreeSpace: defaultMinLocalFreeSpace,
		SyncDirPerms:      defaultSyncDirPerms,
		SyncFilePerms:     defaultSyncFilePerms,
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		FullscanInterval: defaultFullscanInterval,
		WatchFilesystem:  defaultWatchFilesystem,
		ShutdownTimeout:  defaultShutdownTimeout,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFile:   "",
		LogFormat: defaultLogFormat,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		APIServer:      defaultAPIServer,
		UseSSL:         defaultUseSSL,
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
		PoolSize:       defaultPoolSize,
	}
}
