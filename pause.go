package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brennanwright/syncd/internal/catalog"
	"github.com/brennanwright/syncd/internal/config"
)

func newPauseCmd() *cobra.Command {
	var flagRoot string

	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause syncing for a sync-root",
		Long: `Pause syncing for the sync-root at --root, or every configured
sync-root if --root is omitted. A paused root keeps scanning (so the
catalog stays current) but its queue worker stops dispatching tasks.

If a daemon is running, it receives a SIGHUP to pick up the change.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setPaused(cmd, flagRoot, true)
		},
	}

	cmd.Flags().StringVar(&flagRoot, "root", "", "local path of the sync-root to pause (all, if omitted)")

	return cmd
}

func newResumeCmd() *cobra.Command {
	var flagRoot string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume syncing for a paused sync-root",
		Long: `Resume syncing for the sync-root at --root, or every paused
sync-root if --root is omitted.

If a daemon is running, it receives a SIGHUP to pick up the change.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setPaused(cmd, flagRoot, false)
		},
	}

	cmd.Flags().StringVar(&flagRoot, "root", "", "local path of the sync-root to resume (all, if omitted)")

	return cmd
}

func setPaused(cmd *cobra.Command, localPath string, paused bool) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	cat, err := catalog.Open(ctx, config.CatalogPath(cc.DataDir), cc.Logger)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer cat.Close()

	targets, err := pauseTargets(ctx, cat, localPath)
	if err != nil {
		return err
	}

	if len(targets) == 0 {
		cc.Statusf("No matching sync-root found\n")

		return nil
	}

	changed := 0

	for _, r := range targets {
		if r.Paused == paused {
			continue
		}

		tx, err := cat.BeginWrite(ctx)
		if err != nil {
			return err
		}

		if err := catalog.UpdateSyncRootPaused(ctx, tx, r.ID, paused); err != nil {
			tx.Rollback() //nolint:errcheck

			return fmt.Errorf("updating sync-root %s: %w", r.LocalPath, err)
		}

		if err := tx.Commit(); err != nil {
			return err
		}

		changed++
		cc.Statusf("%s: %s\n", r.LocalPath, pausedLabel(paused))
	}

	if changed == 0 {
		cc.Statusf("Already %s\n", pausedLabel(paused))

		return nil
	}

	notifyDaemon(cc)

	return nil
}

func pausedLabel(paused bool) string {
	if paused {
		return "paused"
	}

	return "resumed"
}

// pauseTargets resolves --root to either the single matching sync-root or,
// when empty, every configured sync-root.
func pauseTargets(ctx context.Context, cat *catalog.Catalog, localPath string) ([]catalog.SyncRoot, error) {
	var out []catalog.SyncRoot

	err := cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		if localPath != "" {
			r, ok, err := catalog.GetSyncRootByPath(ctx, tx, localPath)
			if err != nil {
				return err
			}

			if ok {
				out = []catalog.SyncRoot{r}
			}

			return nil
		}

		roots, err := catalog.ListSyncRoots(ctx, tx)
		out = roots

		return err
	})

	return out, err
}

// notifyDaemon attempts to send SIGHUP to a running daemon. Non-fatal: if
// no daemon is running, prints a note instead.
func notifyDaemon(cc *CLIContext) {
	pidPath := config.PIDFilePath(cc.DataDir)

	if err := sendSIGHUP(pidPath); err != nil {
		cc.Statusf("Note: %v — changes take effect on next daemon start\n", err)
	} else {
		cc.Statusf("Notified running daemon to reload settings\n")
	}
}
