// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for syncd.
package config

// SyncType is the direction a sync-root operates in (data-model.md §3 /
// spec.md §3 "synctype").
type SyncType string

// Sync-root direction values.
const (
	SyncTypeDownloadOnly SyncType = "download-only"
	SyncTypeUploadOnly   SyncType = "upload-only"
	SyncTypeFull         SyncType = "full"
	SyncTypeBackup       SyncType = "backup"
)

// Config is the top-level configuration structure. Topology (sync-roots) is
// structural and lives here; runtime-mutable tunables live in the catalog's
// `setting` table (internal/settings) so a running daemon can edit them live
// without rewriting the TOML file.
type Config struct {
	SyncRoots []SyncRoot      `toml:"sync_root"`
	Filter    FilterConfig    `toml:"filter"`
	Transfers TransfersConfig `toml:"transfers"`
	Safety    SafetyConfig    `toml:"safety"`
	Sync      SyncConfig      `toml:"sync"`
	Logging   LoggingConfig   `toml:"logging"`
	Network   NetworkConfig   `toml:"network"`
}

// SyncRoot configures one (local-path, remote-folder-id, synctype) triple
// (spec.md §3's sync-root quintuple; device-id and root-inode are resolved
// at runtime from the local path, not stored in config).
type SyncRoot struct {
	LocalPath      string   `toml:"local_path"`
	RemoteFolderID string   `toml:"remote_folder_id"`
	SyncType       SyncType `toml:"sync_type"`
}

// FilterConfig controls which files and directories are included in sync
// (spec.md §4.8, the path-ignore engine's configuration source).
type FilterConfig struct {
	IgnorePatterns string `toml:"ignore_patterns"` // semicolon-separated name globs
	IgnorePaths    string `toml:"ignore_paths"`    // semicolon-separated directory paths, $HOME expanded
	SkipSymlinks   bool   `toml:"skip_symlinks"`
	MaxFileSize    string `toml:"max_file_size"`
}

// TransfersConfig controls parallel workers, chunking, and bandwidth
// (spec.md §4.6 PSYNC_MAX_PARALLEL_UPLOADS / §4.7 governor caps).
type TransfersConfig struct {
	MaxParallelUploads      int    `toml:"max_parallel_uploads"`
	StartNewUploadsTreshold string `toml:"start_new_uploads_treshold"`
	MinSizeForChecksums     string `toml:"min_size_for_checksums"`
	MaxPendingUploadReqs    int    `toml:"max_pending_upload_reqs"`
	MaxCopyFromReq          string `toml:"max_copy_from_req"`
	UploadOlderThanSec      int    `toml:"upload_older_than_sec"`
	MaxDownloadSpeed        string `toml:"max_download_speed"` // "-1" unlimited, "0" auto, else cap
	MaxUploadSpeed          string `toml:"max_upload_speed"`
	SpeedCalcAverageSec     int    `toml:"speed_calc_average_sec"`
}

// SafetyConfig controls protective defaults and thresholds.
type SafetyConfig struct {
	MinLocalFreeSpace string `toml:"min_local_free_space"`
	SyncDirPerms      string `toml:"sync_dir_permissions"`
	SyncFilePerms     string `toml:"sync_file_permissions"`
}

// SyncConfig controls scanner/engine behavior (spec.md §4.5).
type SyncConfig struct {
	FullscanInterval string `toml:"fullscan_interval"`
	WatchFilesystem  bool   `toml:"watch_filesystem"` // enable fsnotify-triggered wake()
	ShutdownTimeout  string `toml:"shutdown_timeout"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls the connection pool and HTTP client (spec.md §4.2-4.3).
type NetworkConfig struct {
	APIServer      string `toml:"api_server"`
	UseSSL         bool   `toml:"use_ssl"`
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	PoolSize       int    `toml:"pool_size"`
}
