package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/brennanwright/syncd/internal/catalog"
	"github.com/brennanwright/syncd/internal/config"
	"github.com/brennanwright/syncd/internal/ignore"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured sync-roots and their health",
		Long: `Display every configured sync-root, whether its local path still
resolves to the directory recorded at last run, whether it is paused, and
how many tasks are pending in its queue.

Reads the catalog directly — does not require the daemon to be running.`,
		RunE: runStatus,
	}
}

// rootStatus is one sync-root's reported state.
type rootStatus struct {
	LocalPath      string `json:"local_path"`
	RemoteFolderID string `json:"remote_folder_id"`
	SyncType       string `json:"sync_type"`
	State          string `json:"state"`
	Paused         bool   `json:"paused"`
	PendingTasks   int    `json:"pending_tasks"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	cat, err := catalog.Open(cmd.Context(), config.CatalogPath(cc.DataDir), cc.Logger)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer cat.Close()

	statuses, err := buildRootStatuses(cmd.Context(), cat)
	if err != nil {
		return err
	}

	if len(statuses) == 0 {
		fmt.Println("No sync-roots configured. Add one under [[sync_root]] in the config file.")

		return nil
	}

	// Without an explicit --json flag, default to JSON when stdout isn't a
	// terminal (piped into another tool) and to the table otherwise.
	asJSON := cc.Flags.JSON || !isatty.IsTerminal(os.Stdout.Fd())

	if asJSON {
		return printStatusJSON(statuses)
	}

	printStatusText(statuses)

	return nil
}

func buildRootStatuses(ctx context.Context, cat *catalog.Catalog) ([]rootStatus, error) {
	var out []rootStatus

	err := cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		roots, err := catalog.ListSyncRoots(ctx, tx)
		if err != nil {
			return err
		}

		for _, r := range roots {
			tasks, err := catalog.ListPendingTasks(ctx, tx, r.ID)
			if err != nil {
				return err
			}

			out = append(out, rootStatus{
				LocalPath:      r.LocalPath,
				RemoteFolderID: r.FolderID,
				SyncType:       r.SyncType,
				State:          rootHealthState(r),
				Paused:         r.Paused,
				PendingTasks:   len(tasks),
			})
		}

		return nil
	})

	return out, err
}

// rootHealthState reports whether the sync-root's local path still
// resolves to the (deviceid, inode) pair recorded in the catalog.
func rootHealthState(r catalog.SyncRoot) string {
	dirID, err := ignore.StatDirID(r.LocalPath)
	if err != nil {
		return "unhealthy"
	}

	if deviceIDString(dirID) != r.DeviceID || dirID.Inode != r.Inode {
		return "unhealthy"
	}

	return "healthy"
}

func printStatusJSON(statuses []rootStatus) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(statuses); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printStatusText(statuses []rootStatus) {
	for _, s := range statuses {
		state := s.State
		if s.Paused {
			state = "paused"
		}

		fmt.Printf("%-40s %-10s %-8s pending=%d\n", s.LocalPath, s.SyncType, state, s.PendingTasks)
	}
}
