package queue

import (
	"context"
	"fmt"

	"github.com/brennanwright/syncd/internal/apierr"
	"github.com/brennanwright/syncd/internal/apiproto"
	"github.com/brennanwright/syncd/internal/catalog"
)

// tooManyObjectsMovedCode is the server's application error for a shared
// folder that has had too many objects moved in it; spec.md §4.6 singles
// this out as an abort-the-sync-root condition rather than a retry.
const tooManyObjectsMovedCode = 2029

// handleRenameRemoteFolder and handleRenameRemoteFile both wait for
// in-flight uploads to drain (a concurrent upload could still reference
// the moved item's old parent), then resolve the local↔remote mapping and
// issue the corresponding rename verb.

func (w *Worker) handleRenameRemoteFolder(ctx context.Context, root catalog.SyncRoot, task catalog.Task) error {
	if err := w.gate.drainZero(ctx); err != nil {
		return err
	}

	newParentRemoteID, err := w.resolveParentRemoteID(ctx, root, task.NewSyncID)
	if err != nil {
		return err
	}

	_, err = w.caller.Call(ctx, apiproto.VerbRenameFolder, []apiproto.Param{
		apiproto.StringParam("folderid", task.ItemID.String),
		apiproto.StringParam("tofolderid", newParentRemoteID),
		apiproto.StringParam("toname", task.Name.String),
	}, nil, 0)
	if err != nil {
		return w.classifyMoveError(ctx, root, task, err)
	}

	return w.completeTask(ctx, task.ID)
}

func (w *Worker) handleRenameRemoteFile(ctx context.Context, root catalog.SyncRoot, task catalog.Task) error {
	if err := w.gate.drainZero(ctx); err != nil {
		return err
	}

	newParentRemoteID, err := w.resolveParentRemoteID(ctx, root, task.NewSyncID)
	if err != nil {
		return err
	}

	_, err = w.caller.Call(ctx, apiproto.VerbRenameFile, []apiproto.Param{
		apiproto.StringParam("fileid", task.ItemID.String),
		apiproto.StringParam("tofolderid", newParentRemoteID),
		apiproto.StringParam("toname", task.Name.String),
	}, nil, 0)
	if err != nil {
		return w.classifyMoveError(ctx, root, task, err)
	}

	return w.completeTask(ctx, task.ID)
}

// classifyMoveError handles "too many objects moved" by logging it at error
// level, dropping the task and returning a Permanent-class error instead of
// retrying; the sync-root itself is not paused or stopped. Every other
// server error is returned as-is for the normal retry/drop classification.
func (w *Worker) classifyMoveError(ctx context.Context, root catalog.SyncRoot, task catalog.Task, err error) error {
	var apiErr *apierr.Error
	if ae, ok := err.(*apierr.Error); ok && ae.Code == tooManyObjectsMovedCode {
		apiErr = ae

		w.logger.Error("queue: sync-root aborted, too many objects moved",
			"sync_root", root.LocalPath, "task", task.ID, "error", apiErr)

		if completeErr := w.completeTask(ctx, task.ID); completeErr != nil {
			return completeErr
		}

		return apierr.New(apierr.ClassPermanent, "rename", apiErr)
	}

	return err
}

func (w *Worker) completeTask(ctx context.Context, taskID int64) error {
	tx, err := w.cat.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("queue: begin write to complete task %d: %w", taskID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := catalog.CompleteTask(ctx, tx, taskID); err != nil {
		return err
	}

	return tx.Commit()
}
