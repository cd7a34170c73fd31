package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// Validation range constants.
const (
	minMaxParallelUploads  = 1
	maxMaxParallelUploads  = 64
	minMaxPendingUploadReq = 1
	maxMaxPendingUploadReq = 32
	minUploadOlderThanSec  = 0
	minSpeedCalcAverageSec = 1
	maxSpeedCalcAverageSec = 60
	minShutdownTimeout     = 5 * time.Second
	minConnectTimeout      = 1 * time.Second
	minDataTimeout         = 5 * time.Second
	minFullscanInterval    = 30 * time.Second
	octalBase              = 8
	minOctalDigits         = 3
	maxOctalDigits         = 4
	maxOctalValue          = 0o777
	minPoolSize            = 1
	maxPoolSize            = 128
)

var validSyncTypes = map[SyncType]bool{
	SyncTypeDownloadOnly: true,
	SyncTypeUploadOnly:   true,
	SyncTypeFull:         true,
	SyncTypeBackup:       true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSyncRoots(cfg.SyncRoots)...)
	errs = append(errs, validateFilter(&cfg.Filter)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateSafety(&cfg.Safety)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateSyncRoots(roots []SyncRoot) []error {
	var errs []error

	seen := make(map[string]bool, len(roots))

	for i := range roots {
		r := roots[i]

		if r.LocalPath == "" {
			errs = append(errs, fmt.Errorf("sync_root[%d]: local_path must not be empty", i))
		} else if !filepath.IsAbs(r.LocalPath) {
			errs = append(errs, fmt.Errorf("sync_root[%d]: local_path %q must be absolute", i, r.LocalPath))
		}

		if seen[r.LocalPath] {
			errs = append(errs, fmt.Errorf("sync_root[%d]: duplicate local_path %q", i, r.LocalPath))
		}

		seen[r.LocalPath] = true

		if r.RemoteFolderID == "" {
			errs = append(errs, fmt.Errorf("sync_root[%d]: remote_folder_id must not be empty", i))
		}

		if !validSyncTypes[r.SyncType] {
			errs = append(errs, fmt.Errorf(
				"sync_root[%d]: sync_type must be one of download-only, upload-only, full, backup; got %q",
				i, r.SyncType))
		}
	}

	return errs
}

func validateFilter(f *FilterConfig) []error {
	var errs []error

	if f.MaxFileSize != "" && f.MaxFileSize != "0" {
		if _, err := ParseSize(f.MaxFileSize); err != nil {
			errs = append(errs, fmt.Errorf("max_file_size: %w", err))
		}
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.MaxParallelUploads < minMaxParallelUploads || t.MaxParallelUploads > maxMaxParallelUploads {
		errs = append(errs, fmt.Errorf("max_parallel_uploads: must be between %d and %d, got %d",
			minMaxParallelUploads, maxMaxParallelUploads, t.MaxParallelUploads))
	}

	if t.MaxPendingUploadReqs < minMaxPendingUploadReq || t.MaxPendingUploadReqs > maxMaxPendingUploadReq {
		errs = append(errs, fmt.Errorf("max_pending_upload_reqs: must be between %d and %d, got %d",
			minMaxPendingUploadReq, maxMaxPendingUploadReq, t.MaxPendingUploadReqs))
	}

	if t.UploadOlderThanSec < minUploadOlderThanSec {
		errs = append(errs, fmt.Errorf("upload_older_than_sec: must be >= %d, got %d",
			minUploadOlderThanSec, t.UploadOlderThanSec))
	}

	if t.SpeedCalcAverageSec < minSpeedCalcAverageSec || t.SpeedCalcAverageSec > maxSpeedCalcAverageSec {
		errs = append(errs, fmt.Errorf("speed_calc_average_sec: must be between %d and %d, got %d",
			minSpeedCalcAverageSec, maxSpeedCalcAverageSec, t.SpeedCalcAverageSec))
	}

	errs = append(errs, validateSpeedValue("start_new_uploads_treshold", t.StartNewUploadsTreshold)...)
	errs = append(errs, validateSpeedValue("min_size_for_checksums", t.MinSizeForChecksums)...)
	errs = append(errs, validateSpeedSetting("max_download_speed", t.MaxDownloadSpeed)...)
	errs = append(errs, validateSpeedSetting("max_upload_speed", t.MaxUploadSpeed)...)

	return errs
}

// validateSpeedValue validates a plain byte-size field (no -1/0 sentinels).
func validateSpeedValue(field, value string) []error {
	if _, err := ParseSize(value); err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	return nil
}

// validateSpeedSetting validates a governor cap field, which additionally
// accepts "-1" (unlimited) and "0" (auto-shape, spec.md §4.7) alongside a
// positive byte size.
func validateSpeedSetting(field, value string) []error {
	if value == "0" || value == "-1" {
		return nil
	}

	if _, err := ParseSize(value); err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	return nil
}

func validateSafety(s *SafetyConfig) []error {
	var errs []error

	if s.MinLocalFreeSpace != "" && s.MinLocalFreeSpace != "0" {
		if _, err := ParseSize(s.MinLocalFreeSpace); err != nil {
			errs = append(errs, fmt.Errorf("min_local_free_space: %w", err))
		}
	}

	errs = append(errs, validateOctalPermission("sync_dir_permissions", s.SyncDirPerms)...)
	errs = append(errs, validateOctalPermission("sync_file_permissions", s.SyncFilePerms)...)

	return errs
}

func validateOctalPermission(field, value string) []error {
	if value == "" {
		return []error{fmt.Errorf("%s: must not be empty", field)}
	}

	if len(value) < minOctalDigits || len(value) > maxOctalDigits {
		return []error{fmt.Errorf("%s: must be 3 or 4 octal digits, got %q", field, value)}
	}

	n, err := strconv.ParseInt(value, octalBase, 32)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid octal value %q", field, value)}
	}

	if n < 0 || n > maxOctalValue {
		return []error{fmt.Errorf("%s: octal value out of range %q", field, value)}
	}

	return nil
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("fullscan_interval", s.FullscanInterval, minFullscanInterval)...)
	errs = append(errs, validateDurationMin("shutdown_timeout", s.ShutdownTimeout, minShutdownTimeout)...)

	return errs
}

func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	if n.PoolSize < minPoolSize || n.PoolSize > maxPoolSize {
		errs = append(errs, fmt.Errorf("pool_size: must be between %d and %d, got %d",
			minPoolSize, maxPoolSize, n.PoolSize))
	}

	if n.APIServer == "" {
		errs = append(errs, errors.New("api_server: must not be empty"))
	}

	return errs
}
