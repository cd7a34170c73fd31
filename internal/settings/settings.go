// Package settings layers typed accessors, defaults, and the sync-root
// status enum over internal/catalog's raw setting key/value store. Every
// key of the runtime configuration table is read/written here exactly
// once, so a wrong default or a typo'd key name has one place to fix.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/brennanwright/syncd/internal/catalog"
)

// Setting keys, matching the catalog's setting.id column exactly.
const (
	KeyUseSSL            = "usessl"
	KeyMaxDownloadSpeed  = "maxdownloadspeed"
	KeyMaxUploadSpeed    = "maxuploadspeed"
	KeyIgnorePatterns    = "ignorepatterns"
	KeyIgnorePaths       = "ignorepaths"
	KeyP2PSync           = "p2psync"
	KeyFSRoot            = "fsroot"
	KeyFSCachePath       = "fscachepath"
	KeyFSCacheSize       = "fscachesize"
	KeySleepStopCrypto   = "sleepstopcrypto"
	KeyMinLocalFreeSpace = "minlocalfreespace"
	KeyAPIServer         = "api_server"
	KeyLocationID        = "location_id"
)

// Defaults for every recognized key, applied when the row is absent.
const (
	DefaultUseSSL            = true
	DefaultMaxDownloadSpeed  = int64(0) // auto-shape
	DefaultMaxUploadSpeed    = int64(0)
	DefaultFSCacheSize       = uint64(0)
	DefaultSleepStopCrypto   = false
	DefaultMinLocalFreeSpace = uint64(1 << 30) // 1 GiB
	DefaultLocationID        = uint64(0)
)

// Store wraps a *catalog.Catalog with typed get/set for every recognized
// configuration key.
type Store struct {
	cat *catalog.Catalog
}

// New wraps cat.
func New(cat *catalog.Catalog) *Store {
	return &Store{cat: cat}
}

func (s *Store) getRaw(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		ok    bool
		err   error
	)

	txErr := s.cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		value, ok, err = catalog.GetSetting(ctx, tx, key)
		return err
	})
	if txErr != nil {
		return "", false, txErr
	}

	return value, ok, nil
}

func (s *Store) setRaw(ctx context.Context, key, value string) error {
	tx, err := s.cat.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := catalog.SetSetting(ctx, tx, key, value); err != nil {
		return err
	}

	return tx.Commit()
}

// UseSSL reports whether TLS is enabled for the API/HTTP connections.
func (s *Store) UseSSL(ctx context.Context) (bool, error) {
	raw, ok, err := s.getRaw(ctx, KeyUseSSL)
	if err != nil {
		return false, err
	}

	if !ok {
		return DefaultUseSSL, nil
	}

	return raw == "1" || raw == "true", nil
}

// SetUseSSL persists the TLS toggle.
func (s *Store) SetUseSSL(ctx context.Context, enabled bool) error {
	return s.setRaw(ctx, KeyUseSSL, boolString(enabled))
}

// MaxDownloadSpeed returns the configured download cap: −1 unlimited,
// 0 auto-shape, >0 a bytes/sec ceiling.
func (s *Store) MaxDownloadSpeed(ctx context.Context) (int64, error) {
	return s.getInt(ctx, KeyMaxDownloadSpeed, DefaultMaxDownloadSpeed)
}

// SetMaxDownloadSpeed persists the download cap.
func (s *Store) SetMaxDownloadSpeed(ctx context.Context, bytesPerSec int64) error {
	return s.setRaw(ctx, KeyMaxDownloadSpeed, strconv.FormatInt(bytesPerSec, 10))
}

// MaxUploadSpeed returns the configured upload cap, same semantics as
// MaxDownloadSpeed.
func (s *Store) MaxUploadSpeed(ctx context.Context) (int64, error) {
	return s.getInt(ctx, KeyMaxUploadSpeed, DefaultMaxUploadSpeed)
}

// SetMaxUploadSpeed persists the upload cap.
func (s *Store) SetMaxUploadSpeed(ctx context.Context, bytesPerSec int64) error {
	return s.setRaw(ctx, KeyMaxUploadSpeed, strconv.FormatInt(bytesPerSec, 10))
}

// IgnorePatterns returns the semicolon-separated name-glob list, empty
// string if unset.
func (s *Store) IgnorePatterns(ctx context.Context) (string, error) {
	raw, _, err := s.getRaw(ctx, KeyIgnorePatterns)
	return raw, err
}

// SetIgnorePatterns persists the name-glob list.
func (s *Store) SetIgnorePatterns(ctx context.Context, patterns string) error {
	return s.setRaw(ctx, KeyIgnorePatterns, patterns)
}

// IgnorePaths returns the semicolon-separated ignored-directory list
// ($HOME not expanded here — the caller expands before reload).
func (s *Store) IgnorePaths(ctx context.Context) (string, error) {
	raw, _, err := s.getRaw(ctx, KeyIgnorePaths)
	return raw, err
}

// SetIgnorePaths persists the ignored-directory list.
func (s *Store) SetIgnorePaths(ctx context.Context, paths string) error {
	return s.setRaw(ctx, KeyIgnorePaths, paths)
}

// P2PSync reports whether peer-to-peer sync is enabled. Out of scope for
// this implementation (no P2P transport exists), but the setting round-
// trips so a config dump/restore doesn't silently drop it.
func (s *Store) P2PSync(ctx context.Context) (bool, error) {
	raw, ok, err := s.getRaw(ctx, KeyP2PSync)
	if err != nil {
		return false, err
	}

	if !ok {
		return false, nil
	}

	return raw == "1" || raw == "true", nil
}

// FSRoot and FSCachePath are FUSE-mount settings, out of scope for this
// implementation. They round-trip through the store unchanged so a config
// dump taken from a full pclsync-derived client doesn't lose the values.
func (s *Store) FSRoot(ctx context.Context) (string, error) {
	raw, _, err := s.getRaw(ctx, KeyFSRoot)
	return raw, err
}

func (s *Store) FSCachePath(ctx context.Context) (string, error) {
	raw, _, err := s.getRaw(ctx, KeyFSCachePath)
	return raw, err
}

// FSCacheSize returns the configured FS cache size in bytes.
func (s *Store) FSCacheSize(ctx context.Context) (uint64, error) {
	v, err := s.getInt(ctx, KeyFSCacheSize, int64(DefaultFSCacheSize))
	return uint64(v), err
}

// SetFSCacheSize persists the FS cache size in bytes.
func (s *Store) SetFSCacheSize(ctx context.Context, bytes uint64) error {
	return s.setRaw(ctx, KeyFSCacheSize, strconv.FormatUint(bytes, 10))
}

// SleepStopCrypto reports whether crypto-folder operation should stop on
// system sleep.
func (s *Store) SleepStopCrypto(ctx context.Context) (bool, error) {
	raw, ok, err := s.getRaw(ctx, KeySleepStopCrypto)
	if err != nil {
		return false, err
	}

	if !ok {
		return DefaultSleepStopCrypto, nil
	}

	return raw == "1" || raw == "true", nil
}

// MinLocalFreeSpace returns the stored free-space threshold in bytes. No
// code in this module checks free space against it.
func (s *Store) MinLocalFreeSpace(ctx context.Context) (uint64, error) {
	v, err := s.getInt(ctx, KeyMinLocalFreeSpace, int64(DefaultMinLocalFreeSpace))
	return uint64(v), err
}

// SetMinLocalFreeSpace persists the free-space threshold.
func (s *Store) SetMinLocalFreeSpace(ctx context.Context, bytes uint64) error {
	return s.setRaw(ctx, KeyMinLocalFreeSpace, strconv.FormatUint(bytes, 10))
}

// APIServer returns the configured API backend host, empty string if
// unset (meaning the compiled-in default server).
func (s *Store) APIServer(ctx context.Context) (string, error) {
	raw, _, err := s.getRaw(ctx, KeyAPIServer)
	return raw, err
}

// SetAPIServer persists the API backend host.
func (s *Store) SetAPIServer(ctx context.Context, server string) error {
	return s.setRaw(ctx, KeyAPIServer, server)
}

// LocationID returns the configured storage location/region id.
func (s *Store) LocationID(ctx context.Context) (uint64, error) {
	v, err := s.getInt(ctx, KeyLocationID, int64(DefaultLocationID))
	return uint64(v), err
}

// SetLocationID persists the storage location/region id.
func (s *Store) SetLocationID(ctx context.Context, id uint64) error {
	return s.setRaw(ctx, KeyLocationID, strconv.FormatUint(id, 10))
}

func (s *Store) getInt(ctx context.Context, key string, def int64) (int64, error) {
	raw, ok, err := s.getRaw(ctx, key)
	if err != nil {
		return 0, err
	}

	if !ok {
		return def, nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("settings: %s: not an integer: %q", key, raw)
	}

	return v, nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}

	return "0"
}

// Dump returns every persisted setting row as its raw string, for the
// settings CLI subcommand's diagnostic listing. Keys that were never set
// are absent from the map; defaults are not filled in.
func (s *Store) Dump(ctx context.Context) (map[string]string, error) {
	var out map[string]string

	err := s.cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		all, err := catalog.ListSettings(ctx, tx)
		out = all

		return err
	})

	return out, err
}
