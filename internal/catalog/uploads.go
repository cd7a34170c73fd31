package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

const sqlInsertUpload = `INSERT INTO localfileupload (localfileid, uploadid, createdat) VALUES (?, ?, ?)`

// RecordUpload associates a resumable upload-id with the local-file it
// targets. A local-file may accumulate several historical upload-ids
// (retried or abandoned attempts); all are kept for upload_delete cleanup.
func RecordUpload(ctx context.Context, tx *Tx, localFileID int64, uploadID string, createdAt int64) error {
	if _, err := tx.ExecContext(ctx, sqlInsertUpload, localFileID, uploadID, createdAt); err != nil {
		return fmt.Errorf("catalog: record upload %s for file %d: %w", uploadID, localFileID, err)
	}

	return nil
}

const sqlSelectUploadsForFile = `SELECT uploadid, createdat FROM localfileupload
	WHERE localfileid = ? ORDER BY createdat`

// UploadRecord pairs a resumable upload-id with its creation time.
type UploadRecord struct {
	UploadID  string
	CreatedAt int64
}

// ListUploadsForFile returns every upload-id ever recorded for a local-file.
func ListUploadsForFile(ctx context.Context, tx *sql.Tx, localFileID int64) ([]UploadRecord, error) {
	rows, err := tx.QueryContext(ctx, sqlSelectUploadsForFile, localFileID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list uploads for file %d: %w", localFileID, err)
	}
	defer rows.Close()

	var out []UploadRecord

	for rows.Next() {
		var r UploadRecord

		if err := rows.Scan(&r.UploadID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan upload record: %w", err)
		}

		out = append(out, r)
	}

	return out, rows.Err()
}

const sqlDeleteUpload = `DELETE FROM localfileupload WHERE localfileid = ? AND uploadid = ?`

// ForgetUpload removes an upload-id record once it has been committed
// (upload_save) or discarded (upload_delete).
func ForgetUpload(ctx context.Context, tx *Tx, localFileID int64, uploadID string) error {
	if _, err := tx.ExecContext(ctx, sqlDeleteUpload, localFileID, uploadID); err != nil {
		return fmt.Errorf("catalog: forget upload %s for file %d: %w", uploadID, localFileID, err)
	}

	return nil
}

// SyncedFolder is a row of the syncedfolder table: the join between a
// sync-root and a localfolder that records which synctype applies to that
// subtree (a backup sync-root can still contain a full-sync subfolder, for
// instance, hence the per-folder row rather than relying solely on
// syncfolder.synctype).
type SyncedFolder struct {
	SyncID        int64
	LocalFolderID int64
	SyncType      string
	FolderID      string
}

const sqlUpsertSyncedFolder = `INSERT INTO syncedfolder (syncid, localfolderid, synctype, folderid)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(syncid, localfolderid) DO UPDATE SET
		synctype = excluded.synctype,
		folderid = excluded.folderid`

// UpsertSyncedFolder records or updates a sync-root/folder's effective
// synctype.
func UpsertSyncedFolder(ctx context.Context, tx *Tx, sf SyncedFolder) error {
	if _, err := tx.ExecContext(ctx, sqlUpsertSyncedFolder, sf.SyncID, sf.LocalFolderID, sf.SyncType, sf.FolderID); err != nil {
		return fmt.Errorf("catalog: upsert synced folder %d/%d: %w", sf.SyncID, sf.LocalFolderID, err)
	}

	return nil
}

const sqlSelectSyncedFolder = `SELECT syncid, localfolderid, synctype, folderid
	FROM syncedfolder WHERE syncid = ? AND localfolderid = ?`

// GetSyncedFolder looks up the effective synctype for a folder.
func GetSyncedFolder(ctx context.Context, tx *sql.Tx, syncID, localFolderID int64) (SyncedFolder, bool, error) {
	var sf SyncedFolder

	err := tx.QueryRowContext(ctx, sqlSelectSyncedFolder, syncID, localFolderID).
		Scan(&sf.SyncID, &sf.LocalFolderID, &sf.SyncType, &sf.FolderID)
	if err == sql.ErrNoRows {
		return SyncedFolder{}, false, nil
	}

	if err != nil {
		return SyncedFolder{}, false, fmt.Errorf("catalog: get synced folder %d/%d: %w", syncID, localFolderID, err)
	}

	return sf, true, nil
}
