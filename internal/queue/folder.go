package queue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brennanwright/syncd/internal/apierr"
	"github.com/brennanwright/syncd/internal/apiproto"
	"github.com/brennanwright/syncd/internal/catalog"
)

// handleCreateRemoteFolder dispatches one CREATE_REMOTE_FOLDER task: an
// idempotent createfolderifnotexists(parent, name) call, then a single
// transaction filling in the local-folder row and syncedfolder join with
// the returned remote folder id, per spec.md §4.6.
func (w *Worker) handleCreateRemoteFolder(ctx context.Context, root catalog.SyncRoot, task catalog.Task) error {
	var folder catalog.LocalFolder

	err := w.cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		f, ok, err := catalog.GetLocalFolder(ctx, tx, task.LocalItemID)
		if err != nil {
			return err
		}

		if !ok {
			return apierr.New(apierr.ClassInvariantViolation, "create_remote_folder",
				fmt.Errorf("local folder %d referenced by task %d no longer exists", task.LocalItemID, task.ID))
		}

		folder = f

		return nil
	})
	if err != nil {
		return err
	}

	parentRemoteID, err := w.resolveParentRemoteID(ctx, root, folder.LocalParentFolderID)
	if err != nil {
		return err
	}

	resp, err := w.caller.Call(ctx, apiproto.VerbCreateFolderIfNotExist, []apiproto.Param{
		apiproto.StringParam("parent", parentRemoteID),
		apiproto.StringParam("name", folder.Name),
	}, nil, 0)
	if err != nil {
		return err
	}

	var result struct {
		FolderID string `json:"folderid"`
	}

	if err := resp.Decode("metadata", &result); err != nil {
		return apierr.New(apierr.ClassInvariantViolation, "create_remote_folder", err)
	}

	tx, err := w.cat.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("queue: begin write for create_remote_folder: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := catalog.AttachRemoteFolderID(ctx, tx, folder.ID, result.FolderID); err != nil {
		return err
	}

	if err := catalog.UpsertSyncedFolder(ctx, tx, catalog.SyncedFolder{
		SyncID: root.ID, LocalFolderID: folder.ID, SyncType: root.SyncType, FolderID: result.FolderID,
	}); err != nil {
		return err
	}

	if err := catalog.CompleteTask(ctx, tx, task.ID); err != nil {
		return err
	}

	return tx.Commit()
}

// resolveParentRemoteID returns the remote folder id a new child should be
// created under: the sync-root's own folder id when parentID is the
// sync-root directory itself, otherwise the parent localfolder's recorded
// remote id (already populated by invariant 4's task ordering).
func (w *Worker) resolveParentRemoteID(ctx context.Context, root catalog.SyncRoot, parentID sql.NullInt64) (string, error) {
	if !parentID.Valid {
		return root.FolderID, nil
	}

	var remoteID string

	err := w.cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		parent, ok, err := catalog.GetLocalFolder(ctx, tx, parentID.Int64)
		if err != nil {
			return err
		}

		if !ok || !parent.FolderID.Valid {
			return apierr.New(apierr.ClassInvariantViolation, "resolve_parent_remote_id",
				fmt.Errorf("parent folder %d has no remote id yet", parentID.Int64))
		}

		remoteID = parent.FolderID.String

		return nil
	})

	return remoteID, err
}
