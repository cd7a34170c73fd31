package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/brennanwright/syncd/internal/catalog"
	"github.com/brennanwright/syncd/internal/config"
	"github.com/brennanwright/syncd/internal/settings"
)

// settingsKeys lists every recognized key in display order, used by both
// "settings dump" and as the set of valid arguments to get/set.
var settingsKeys = []string{
	settings.KeyUseSSL,
	settings.KeyMaxDownloadSpeed,
	settings.KeyMaxUploadSpeed,
	settings.KeyIgnorePatterns,
	settings.KeyIgnorePaths,
	settings.KeyP2PSync,
	settings.KeyFSRoot,
	settings.KeyFSCachePath,
	settings.KeyFSCacheSize,
	settings.KeySleepStopCrypto,
	settings.KeyMinLocalFreeSpace,
	settings.KeyAPIServer,
	settings.KeyLocationID,
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change runtime settings",
		Long: `Runtime settings live in the catalog, not the config file, so they
take effect without a restart (the daemon picks up changes on SIGHUP,
see "syncd pause"/"syncd resume" which also trigger a reload).`,
	}

	cmd.AddCommand(newSettingsDumpCmd())
	cmd.AddCommand(newSettingsGetCmd())
	cmd.AddCommand(newSettingsSetCmd())

	return cmd
}

func newSettingsDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "List every recognized setting and its stored value (empty if never set)",
		RunE:  runSettingsDump,
	}
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the stored value of a setting (empty if never set)",
		Args:  cobra.ExactArgs(1),
		RunE:  runSettingsGet,
	}
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a new value for a setting",
		Long: `Recognized keys:

  usessl              bool (1/0, true/false)
  maxdownloadspeed     bytes/sec, 0 = auto-shape
  maxuploadspeed       bytes/sec, 0 = auto-shape
  ignorepatterns       semicolon-separated name globs
  ignorepaths          semicolon-separated directory paths
  minlocalfreespace    bytes
  api_server           API backend host (empty = compiled-in default)

  location_id          storage location id (stored; no effect)

minlocalfreespace is stored but not checked by any code path.
p2psync, fsroot, fscachepath, fscachesize and sleepstopcrypto are listed
by "syncd settings dump" but cannot be set from this CLI.`,
		Args: cobra.ExactArgs(2),
		RunE: runSettingsSet,
	}
}

func runSettingsDump(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	store, cat, err := openSettingsStore(cmd, cc)
	if err != nil {
		return err
	}
	defer cat.Close()

	values, err := store.Dump(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading settings: %w", err)
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(values)
	}

	for _, key := range settingsKeys {
		fmt.Printf("%-18s %s\n", key, values[key])
	}

	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	key := args[0]

	if !isRecognizedSettingKey(key) {
		return fmt.Errorf("unrecognized setting %q", key)
	}

	store, cat, err := openSettingsStore(cmd, cc)
	if err != nil {
		return err
	}
	defer cat.Close()

	values, err := store.Dump(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading settings: %w", err)
	}

	fmt.Println(values[key])

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	key, value := args[0], args[1]

	store, cat, err := openSettingsStore(cmd, cc)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := cmd.Context()

	switch key {
	case settings.KeyUseSSL:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("usessl: %w", err)
		}

		err = store.SetUseSSL(ctx, b)
		if err != nil {
			return err
		}
	case settings.KeyMaxDownloadSpeed:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("maxdownloadspeed: %w", err)
		}

		if err := store.SetMaxDownloadSpeed(ctx, n); err != nil {
			return err
		}
	case settings.KeyMaxUploadSpeed:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("maxuploadspeed: %w", err)
		}

		if err := store.SetMaxUploadSpeed(ctx, n); err != nil {
			return err
		}
	case settings.KeyIgnorePatterns:
		if err := store.SetIgnorePatterns(ctx, value); err != nil {
			return err
		}
	case settings.KeyIgnorePaths:
		if err := store.SetIgnorePaths(ctx, value); err != nil {
			return err
		}
	case settings.KeyMinLocalFreeSpace:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("minlocalfreespace: %w", err)
		}

		if err := store.SetMinLocalFreeSpace(ctx, n); err != nil {
			return err
		}
	case settings.KeyAPIServer:
		if err := store.SetAPIServer(ctx, value); err != nil {
			return err
		}
	case settings.KeyLocationID:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("location_id: %w", err)
		}

		if err := store.SetLocationID(ctx, n); err != nil {
			return err
		}
	default:
		if isRecognizedSettingKey(key) {
			return fmt.Errorf("%s is read-only from this CLI (no setter wired for this build)", key)
		}

		return fmt.Errorf("unrecognized setting %q", key)
	}

	cc.Statusf("%s = %s\n", key, value)
	notifyDaemon(cc)

	return nil
}

func isRecognizedSettingKey(key string) bool {
	for _, k := range settingsKeys {
		if k == key {
			return true
		}
	}

	return false
}

func openSettingsStore(cmd *cobra.Command, cc *CLIContext) (*settings.Store, *catalog.Catalog, error) {
	cat, err := catalog.Open(cmd.Context(), config.CatalogPath(cc.DataDir), cc.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening catalog: %w", err)
	}

	return settings.New(cat), cat, nil
}
