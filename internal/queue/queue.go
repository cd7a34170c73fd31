// Package queue implements the task queue and upload worker (component F):
// it drains the catalog's task table for one sync-root, dispatching each
// row to the server call it represents and, for UPLOAD_FILE tasks, running
// the resumable upload flow of spec.md §4.6.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/brennanwright/syncd/internal/apierr"
	"github.com/brennanwright/syncd/internal/catalog"
	"github.com/brennanwright/syncd/internal/governor"
)

// Config mirrors internal/config.TransfersConfig's resolved (parsed) form.
type Config struct {
	MaxParallelUploads   int
	StartUploadsTreshold int64
	MinSizeForChecksums  int64
	MaxPendingUploadReqs int
	MaxCopyFromReq       int64
	UploadOlderThanSec   int64
}

// Worker drains one sync-root's task queue. Non-upload tasks run serially on
// the Run goroutine; UPLOAD_FILE tasks are dispatched to their own goroutine,
// admitted through the upload gate so at most MaxParallelUploads run at
// once within the StartUploadsTreshold bytes-outstanding budget.
type Worker struct {
	cat     *catalog.Catalog
	caller  Caller
	fetcher BlockStreamFetcher
	gov     *governor.Governor
	logger  *slog.Logger
	cfg     Config
	locks   *lockTable
	gate    *uploadGate
	nowFunc func() time.Time
}

// Governor exposes the worker's speed governor, so a status command can
// report current smoothed transfer rates alongside queue depth.
func (w *Worker) Governor() *governor.Governor { return w.gov }

// New builds a Worker for one sync-root's caller/fetcher pair.
func New(cat *catalog.Catalog, caller Caller, fetcher BlockStreamFetcher, gov *governor.Governor, logger *slog.Logger, cfg Config) *Worker {
	return &Worker{
		cat:     cat,
		caller:  caller,
		fetcher: fetcher,
		gov:     gov,
		logger:  logger,
		cfg:     cfg,
		locks:   newLockTable(),
		gate:    newUploadGate(cfg.MaxParallelUploads, cfg.StartUploadsTreshold),
		nowFunc: time.Now,
	}
}

// Run drains root's task queue until ctx is canceled or the queue empties.
// Callers (the daemon's per-sync-root goroutine) re-invoke Run whenever the
// scanner signals new tasks were enqueued.
func (w *Worker) Run(ctx context.Context, root catalog.SyncRoot) error {
	for {
		var tasks []catalog.Task

		err := w.cat.ReadLocked(ctx, func(tx *sql.Tx) error {
			ts, err := catalog.ListPendingTasks(ctx, tx, root.ID)
			tasks = ts

			return err
		})
		if err != nil {
			return err
		}

		if len(tasks) == 0 {
			return nil
		}

		progressed := false

		for _, task := range tasks {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			claimed, err := w.claim(ctx, task.ID)
			if err != nil {
				return err
			}

			if !claimed {
				// Another UPLOAD_FILE task for the same local-file id is
				// already in progress (invariant 3); skip for now.
				continue
			}

			progressed = true

			if task.Type == catalog.TaskUploadFile {
				w.dispatchUpload(ctx, root, task)

				continue
			}

			w.dispatchSerial(ctx, root, task)
		}

		if !progressed {
			return nil
		}
	}
}

func (w *Worker) claim(ctx context.Context, id int64) (bool, error) {
	tx, err := w.cat.BeginWrite(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	claimed, err := catalog.ClaimTask(ctx, tx, id)
	if err != nil {
		return false, err
	}

	if !claimed {
		return false, tx.Commit()
	}

	return true, tx.Commit()
}

// dispatchSerial runs one non-upload task to completion on the caller's
// goroutine, per spec.md §4.6 ("all other task types run serially").
func (w *Worker) dispatchSerial(ctx context.Context, root catalog.SyncRoot, task catalog.Task) {
	var err error

	switch task.Type {
	case catalog.TaskCreateRemoteFolder:
		err = w.handleCreateRemoteFolder(ctx, root, task)
	case catalog.TaskRenameRemoteFolder:
		err = w.handleRenameRemoteFolder(ctx, root, task)
	case catalog.TaskRenameRemoteFile:
		err = w.handleRenameRemoteFile(ctx, root, task)
	case catalog.TaskDeleteRemoteFile:
		err = w.handleDeleteRemoteFile(ctx, task)
	case catalog.TaskDelrecRemoteFolder:
		err = w.handleDeleteRemoteFolder(ctx, task)
	default:
		err = apierr.New(apierr.ClassInvariantViolation, "dispatch", errors.New("unknown task type "+task.Type))
	}

	w.finish(ctx, task, err)
}

// dispatchUpload blocks on the gate before spawning the upload, so Run's
// loop naturally throttles to MaxParallelUploads without an unbounded
// goroutine backlog building up across passes.
func (w *Worker) dispatchUpload(ctx context.Context, root catalog.SyncRoot, task catalog.Task) {
	size := w.estimateUploadSize(ctx, root, task)

	if err := w.gate.acquire(ctx, size); err != nil {
		w.release(ctx, task, err)

		return
	}

	go func() {
		defer w.gate.release(size)

		err := w.handleUploadFile(ctx, root, task)
		w.finish(ctx, task, err)
	}()
}

// estimateUploadSize gives the gate a best-effort size to admit against; an
// error or missing row just falls back to zero (admitted immediately,
// counted as using no budget — better than blocking forever on a task that
// will immediately fail its own lookup anyway).
func (w *Worker) estimateUploadSize(ctx context.Context, root catalog.SyncRoot, task catalog.Task) int64 {
	var size int64

	_ = w.cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		f, ok, err := catalog.GetLocalFile(ctx, tx, task.LocalItemID)
		if err == nil && ok {
			size = f.Size
		}

		return nil
	})

	return size
}

// finish releases a task's claim: completed tasks are already removed by
// their handler, so this only matters for the failure path — retryable
// failures go back to pending, everything else is logged and left
// in-progress for an operator to investigate (re-claiming it would spin).
func (w *Worker) finish(ctx context.Context, task catalog.Task, err error) {
	if err == nil {
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		w.release(ctx, task, err)

		return
	}

	if apierr.Retryable(err) {
		w.logger.Warn("queue: task failed, will retry", "task", task.ID, "type", task.Type, "error", err)
		w.release(ctx, task, err)

		return
	}

	w.logger.Error("queue: task failed permanently", "task", task.ID, "type", task.Type, "error", err)
}

func (w *Worker) release(ctx context.Context, task catalog.Task, cause error) {
	tx, err := w.cat.BeginWrite(ctx)
	if err != nil {
		w.logger.Error("queue: could not release task after failure", "task", task.ID, "cause", cause, "error", err)

		return
	}
	defer tx.Rollback() //nolint:errcheck

	if err := catalog.ReleaseTask(ctx, tx, task.ID); err != nil {
		w.logger.Error("queue: release task failed", "task", task.ID, "error", err)

		return
	}

	if err := tx.Commit(); err != nil {
		w.logger.Error("queue: commit release task failed", "task", task.ID, "error", err)
	}
}
