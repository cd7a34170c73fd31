package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/brennanwright/syncd/internal/catalog"
	"github.com/brennanwright/syncd/internal/config"
	"github.com/brennanwright/syncd/internal/governor"
	"github.com/brennanwright/syncd/internal/httpfetch"
	"github.com/brennanwright/syncd/internal/ignore"
	"github.com/brennanwright/syncd/internal/pool"
	"github.com/brennanwright/syncd/internal/queue"
	"github.com/brennanwright/syncd/internal/scanner"
	"github.com/brennanwright/syncd/internal/settings"
)

// queuePollInterval is how often a sync-root's idle queue worker is woken
// to check for newly-enqueued tasks. The scanner commits tasks and its own
// Wake() only signals the scanner, not the queue, so draining is tied to
// this ticker rather than a push from the scanner.
const queuePollInterval = 2 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon in the foreground",
		Long: `Start the sync daemon: opens the catalog, reconciles configured
sync-roots, and runs a scanner and upload/task worker per root until
interrupted.`,
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	cat, err := catalog.Open(cmd.Context(), config.CatalogPath(cc.DataDir), cc.Logger)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer cat.Close()

	roots, err := reconcileSyncRoots(cmd.Context(), cat, cc.Cfg.SyncRoots)
	if err != nil {
		return fmt.Errorf("reconciling sync roots: %w", err)
	}

	if len(roots) == 0 {
		cc.Logger.Warn("no sync-roots configured, daemon has nothing to do")
	}

	cleanup, err := writePIDFile(config.PIDFilePath(cc.DataDir))
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	eng, err := newEngine(ctx, cc, cat)
	if err != nil {
		return err
	}

	watchConfigReload(ctx, cc, eng)

	g, gctx := errgroup.WithContext(ctx)

	for _, root := range roots {
		root := root

		g.Go(func() error { return eng.runSyncRoot(gctx, root) })
	}

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}

	cc.Logger.Info("syncd: shutdown complete")

	return nil
}

// reconcileSyncRoots inserts a syncfolder row for every configured
// local_path not already present, and reuses existing rows otherwise
// (catalog.GetSyncRootByPath is exactly this lookup — the single shared
// catalog holds one row per configured root, not one catalog per root).
func reconcileSyncRoots(ctx context.Context, cat *catalog.Catalog, configured []config.SyncRoot) ([]catalog.SyncRoot, error) {
	out := make([]catalog.SyncRoot, 0, len(configured))

	for _, c := range configured {
		dirID, err := ignore.StatDirID(c.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("sync root %s: %w", c.LocalPath, err)
		}

		tx, err := cat.BeginWrite(ctx)
		if err != nil {
			return nil, err
		}

		existing, ok, err := catalog.GetSyncRootByPath(ctx, tx.Tx, c.LocalPath)
		if err != nil {
			tx.Rollback() //nolint:errcheck

			return nil, err
		}

		if !ok {
			id, err := catalog.InsertSyncRoot(ctx, tx, catalog.SyncRoot{
				FolderID:  c.RemoteFolderID,
				LocalPath: c.LocalPath,
				SyncType:  string(c.SyncType),
				DeviceID:  deviceIDString(dirID),
				Inode:     dirID.Inode,
			})
			if err != nil {
				tx.Rollback() //nolint:errcheck

				return nil, err
			}

			existing, ok, err = catalog.GetSyncRootByPath(ctx, tx.Tx, c.LocalPath)
			if err != nil || !ok {
				tx.Rollback() //nolint:errcheck

				return nil, fmt.Errorf("sync root %d not found immediately after insert", id)
			}
		} else if existing.Inode != dirID.Inode {
			// The path now resolves to a different directory than the one
			// recorded at the last run (deleted and re-created, or a new
			// mount at the same mountpoint).
			if err := catalog.UpdateSyncRootInode(ctx, tx, existing.ID, dirID.Inode); err != nil {
				tx.Rollback() //nolint:errcheck

				return nil, err
			}

			existing.Inode = dirID.Inode
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}

		out = append(out, existing)
	}

	return out, nil
}

func deviceIDString(id ignore.DirID) string {
	return fmt.Sprintf("%d", id.DeviceID)
}

// engine holds the process-wide shared infrastructure (pool, HTTP client,
// governor, ignore filter) and per-sync-root workers built on top of it.
type engine struct {
	cc       *CLIContext
	cat      *catalog.Catalog
	pool     *pool.Pool
	http     *httpfetch.Client
	gov      *governor.Governor
	ignore   *ignore.Engine
	settings *settings.Store
}

func newEngine(ctx context.Context, cc *CLIContext, cat *catalog.Catalog) (*engine, error) {
	store := settings.New(cat)

	useSSL, err := store.UseSSL(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading usessl setting: %w", err)
	}

	apiServer, err := store.APIServer(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading api_server setting: %w", err)
	}

	if apiServer == "" {
		apiServer = cc.Cfg.Network.APIServer
	}

	connectTimeout, err := time.ParseDuration(cc.Cfg.Network.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid connect_timeout: %w", err)
	}

	p := pool.New(apiServer, useSSL, int64(cc.Cfg.Network.PoolSize), connectTimeout, cc.Logger)
	httpClient := httpfetch.NewClient(useSSL, connectTimeout)

	gov := governor.New(cc.Cfg.Transfers.SpeedCalcAverageSec)

	if err := applyGovernorCaps(ctx, store, gov); err != nil {
		return nil, err
	}

	ignoreEngine := ignore.New(ignore.StatDirID)

	if err := reloadIgnoreEngine(ctx, store, cc.Cfg, ignoreEngine); err != nil {
		return nil, err
	}

	eng := &engine{
		cc:       cc,
		cat:      cat,
		pool:     p,
		http:     httpClient,
		gov:      gov,
		ignore:   ignoreEngine,
		settings: store,
	}

	return eng, nil
}

func applyGovernorCaps(ctx context.Context, store *settings.Store, gov *governor.Governor) error {
	down, err := store.MaxDownloadSpeed(ctx)
	if err != nil {
		return fmt.Errorf("reading maxdownloadspeed setting: %w", err)
	}

	up, err := store.MaxUploadSpeed(ctx)
	if err != nil {
		return fmt.Errorf("reading maxuploadspeed setting: %w", err)
	}

	gov.SetDownloadCap(down)
	gov.SetUploadCap(up)

	return nil
}

func reloadIgnoreEngine(ctx context.Context, store *settings.Store, cfg *config.Config, eng *ignore.Engine) error {
	patterns, err := store.IgnorePatterns(ctx)
	if err != nil {
		return fmt.Errorf("reading ignorepatterns setting: %w", err)
	}

	if patterns == "" {
		patterns = cfg.Filter.IgnorePatterns
	}

	eng.ReloadNamePatterns(patterns)

	paths, err := store.IgnorePaths(ctx)
	if err != nil {
		return fmt.Errorf("reading ignorepaths setting: %w", err)
	}

	if paths == "" {
		paths = cfg.Filter.IgnorePaths
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = strings.ReplaceAll(paths, "$HOME", home)
	}

	return eng.ReloadPathIgnores(paths)
}

// runSyncRoot runs one sync-root's scanner and queue-drain loop until ctx
// is canceled. A paused root still scans (so the catalog stays current)
// but the drain loop skips dispatching tasks for it.
func (e *engine) runSyncRoot(ctx context.Context, root catalog.SyncRoot) error {
	fullscanTick, err := time.ParseDuration(e.cc.Cfg.Sync.FullscanInterval)
	if err != nil {
		return fmt.Errorf("invalid fullscan_interval: %w", err)
	}

	sc := scanner.New(e.cat, e.ignore, e.cc.Logger, root, fullscanTick)

	transfers := e.cc.Cfg.Transfers

	startThreshold, err := config.ParseSize(transfers.StartNewUploadsTreshold)
	if err != nil {
		return fmt.Errorf("invalid start_new_uploads_treshold: %w", err)
	}

	maxCopyFromReq, err := config.ParseSize(transfers.MaxCopyFromReq)
	if err != nil {
		return fmt.Errorf("invalid max_copy_from_req: %w", err)
	}

	minSizeForChecksums, err := config.ParseSize(transfers.MinSizeForChecksums)
	if err != nil {
		return fmt.Errorf("invalid min_size_for_checksums: %w", err)
	}

	w := queue.New(e.cat, queue.NewRPCCaller(e.pool, e.gov), queue.NewBlockStreamFetcher(e.http, e.gov), e.gov, e.cc.Logger, queue.Config{
		MaxParallelUploads:   transfers.MaxParallelUploads,
		StartUploadsTreshold: startThreshold,
		MinSizeForChecksums:  minSizeForChecksums,
		MaxPendingUploadReqs: transfers.MaxPendingUploadReqs,
		MaxCopyFromReq:       maxCopyFromReq,
		UploadOlderThanSec:   int64(transfers.UploadOlderThanSec),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sc.Run(gctx) })
	g.Go(func() error { return e.drainQueueUntilDone(gctx, w, root) })

	if e.cc.Cfg.Sync.WatchFilesystem {
		g.Go(func() error {
			if err := scanner.Watch(gctx, sc, root.LocalPath, e.cc.Logger); err != nil && gctx.Err() == nil {
				e.cc.Logger.Warn("scanner: filesystem watch stopped", "sync_root", root.LocalPath, "error", err)
			}

			return nil
		})
	}

	return g.Wait()
}

// drainQueueUntilDone re-invokes Worker.Run on a ticker: Run itself loops
// until the root's task queue is empty, so this just re-triggers that
// drain whenever the scanner may have enqueued more work since the last
// pass, without the scanner needing a dedicated task-ready signal.
func (e *engine) drainQueueUntilDone(ctx context.Context, w *queue.Worker, root catalog.SyncRoot) error {
	ticker := time.NewTicker(queuePollInterval)
	defer ticker.Stop()

	for {
		paused, err := e.isPaused(ctx, root.ID)
		if err != nil {
			e.cc.Logger.Error("queue: checking paused state", "sync_root", root.LocalPath, "error", err)
		}

		if !paused {
			if err := w.Run(ctx, root); err != nil && ctx.Err() == nil {
				e.cc.Logger.Error("queue: drain pass failed", "sync_root", root.LocalPath, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *engine) isPaused(ctx context.Context, syncID int64) (bool, error) {
	var paused bool

	err := e.cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		r, ok, err := catalog.GetSyncRoot(ctx, tx, syncID)
		if err != nil || !ok {
			return err
		}

		paused = r.Paused

		return nil
	})

	return paused, err
}

// watchConfigReload spawns a SIGHUP handler that re-applies settings-table
// tunables (governor caps, ignore patterns) without restarting the daemon.
// Sync-root topology changes still require a restart (no live add/remove).
func watchConfigReload(ctx context.Context, cc *CLIContext, eng *engine) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				cc.Logger.Info("syncd: received SIGHUP, reloading settings")

				if err := applyGovernorCaps(ctx, eng.settings, eng.gov); err != nil {
					cc.Logger.Error("reload: governor caps", "error", err)
				}

				if err := reloadIgnoreEngine(ctx, eng.settings, cc.Cfg, eng.ignore); err != nil {
					cc.Logger.Error("reload: ignore engine", "error", err)
				}
			}
		}
	}()
}
