package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// configFilePermissions is the standard permission mode for config files.
// Owner read/write, group and others read-only.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// configTemplate is the default config file content written on first run.
// It carries a commented-out sync-root example and the [logging] table's
// defaults; other settings are not listed. This template is written once
// and never regenerated — user modifications are preserved by subsequent
// text-level edits.
const configTemplate = `# syncd configuration

# ── Sync roots ──
# Each [[sync_root]] entry pairs a local directory with a remote folder.
# sync_type: download-only, upload-only, full, backup
#
# [[sync_root]]
# local_path = "/home/user/Sync"
# remote_folder_id = "0"
# sync_type = "full"

# ── Global settings ──
# Uncomment and modify to override defaults.

# [logging]
# log_level = "info"
# log_file = ""
`

// syncRootSection generates the TOML text for a new sync-root entry. The
// blank line before the header visually separates entries from each other.
func syncRootSection(sr SyncRoot) string {
	return fmt.Sprintf("\n[[sync_root]]\nlocal_path = %q\nremote_folder_id = %q\nsync_type = %q\n",
		sr.LocalPath, sr.RemoteFolderID, string(sr.SyncType))
}

// CreateConfigWithSyncRoot creates a new config file from the default
// template and appends one sync-root entry. Used on first run when no
// config file exists yet. The write is atomic (temp file + rename) and
// parent directories are created as needed.
func CreateConfigWithSyncRoot(path string, sr SyncRoot) error {
	slog.Info("creating config file with sync root",
		"path", path,
		"local_path", sr.LocalPath,
		"sync_type", sr.SyncType,
	)

	content := configTemplate + syncRootSection(sr)

	return atomicWriteFile(path, []byte(content))
}

// AppendSyncRoot appends a new sync-root entry at the end of an existing
// config file. The write is atomic to avoid partial writes on crash.
func AppendSyncRoot(path string, sr SyncRoot) error {
	slog.Info("appending sync root to config",
		"path", path,
		"local_path", sr.LocalPath,
		"sync_type", sr.SyncType,
	)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	content := string(data)

	// Ensure the file ends with a newline before appending, so the new
	// entry header starts on its own line.
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	content += syncRootSection(sr)

	return atomicWriteFile(path, []byte(content))
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it to the target path. This prevents partial writes
// from corrupting the config file on crash. Parent directories are created
// as needed. Files are created with configFilePermissions (0644).
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	// Clean up the temp file on any error path.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	// Flush data to disk before rename. Without fsync, a power loss after
	// rename could leave the file empty (rename is metadata-only on POSIX).
	if err := f.Sync(); err != nil {
		f.Close()

		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
