package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// SyncRoot is a row of the syncfolder table: the quintuple identifying one
// configured sync-root (the device-id/root-inode pair is how a restart
// detects that a local path has been replaced by an unrelated directory at
// the same name).
type SyncRoot struct {
	ID        int64
	FolderID  string
	LocalPath string
	SyncType  string
	DeviceID  string
	Inode     uint64
	Paused    bool
}

const sqlInsertSyncRoot = `INSERT INTO syncfolder (folderid, localpath, synctype, deviceid, inode)
	VALUES (?, ?, ?, ?, ?)`

// InsertSyncRoot creates a syncfolder row and returns its id.
func InsertSyncRoot(ctx context.Context, tx *Tx, r SyncRoot) (int64, error) {
	result, err := tx.ExecContext(ctx, sqlInsertSyncRoot, r.FolderID, r.LocalPath, r.SyncType, r.DeviceID, r.Inode)
	if err != nil {
		return 0, fmt.Errorf("catalog: insert sync root %s: %w", r.LocalPath, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: sync root last insert id: %w", err)
	}

	return id, nil
}

const sqlSelectSyncRoots = `SELECT id, folderid, localpath, synctype, deviceid, inode, paused FROM syncfolder ORDER BY id`

// ListSyncRoots returns every configured sync-root.
func ListSyncRoots(ctx context.Context, tx *sql.Tx) ([]SyncRoot, error) {
	rows, err := tx.QueryContext(ctx, sqlSelectSyncRoots)
	if err != nil {
		return nil, fmt.Errorf("catalog: list sync roots: %w", err)
	}
	defer rows.Close()

	var out []SyncRoot

	for rows.Next() {
		var r SyncRoot

		if err := rows.Scan(&r.ID, &r.FolderID, &r.LocalPath, &r.SyncType, &r.DeviceID, &r.Inode, &r.Paused); err != nil {
			return nil, fmt.Errorf("catalog: scan sync root: %w", err)
		}

		out = append(out, r)
	}

	return out, rows.Err()
}

const sqlSelectSyncRootByPath = `SELECT id, folderid, localpath, synctype, deviceid, inode, paused
	FROM syncfolder WHERE localpath = ?`

// GetSyncRootByPath looks up a sync-root by its local path, returning
// (SyncRoot{}, false, nil) if none is configured for that path.
func GetSyncRootByPath(ctx context.Context, tx *sql.Tx, localPath string) (SyncRoot, bool, error) {
	var r SyncRoot

	err := tx.QueryRowContext(ctx, sqlSelectSyncRootByPath, localPath).
		Scan(&r.ID, &r.FolderID, &r.LocalPath, &r.SyncType, &r.DeviceID, &r.Inode, &r.Paused)
	if err == sql.ErrNoRows {
		return SyncRoot{}, false, nil
	}

	if err != nil {
		return SyncRoot{}, false, fmt.Errorf("catalog: get sync root %s: %w", localPath, err)
	}

	return r, true, nil
}

const sqlSelectSyncRootByID = `SELECT id, folderid, localpath, synctype, deviceid, inode, paused
	FROM syncfolder WHERE id = ?`

// GetSyncRoot looks up a sync-root by id.
func GetSyncRoot(ctx context.Context, tx *sql.Tx, id int64) (SyncRoot, bool, error) {
	var r SyncRoot

	err := tx.QueryRowContext(ctx, sqlSelectSyncRootByID, id).
		Scan(&r.ID, &r.FolderID, &r.LocalPath, &r.SyncType, &r.DeviceID, &r.Inode, &r.Paused)
	if err == sql.ErrNoRows {
		return SyncRoot{}, false, nil
	}

	if err != nil {
		return SyncRoot{}, false, fmt.Errorf("catalog: get sync root %d: %w", id, err)
	}

	return r, true, nil
}

const sqlUpdateSyncRootInode = `UPDATE syncfolder SET inode = ? WHERE id = ?`

// UpdateSyncRootInode rewrites the recorded root-inode, used after a sync
// root is re-created at the same path (e.g. after deletion and a fresh
// empty directory at the same location).
func UpdateSyncRootInode(ctx context.Context, tx *Tx, id int64, inode uint64) error {
	if _, err := tx.ExecContext(ctx, sqlUpdateSyncRootInode, inode, id); err != nil {
		return fmt.Errorf("catalog: update sync root %d inode: %w", id, err)
	}

	return nil
}

const sqlUpdateSyncRootPaused = `UPDATE syncfolder SET paused = ? WHERE id = ?`

// UpdateSyncRootPaused sets the paused flag for a sync-root, used by the
// pause/resume control surface. A paused root's scanner and queue worker
// keep running but the daemon skips dispatching new tasks for it.
func UpdateSyncRootPaused(ctx context.Context, tx *Tx, id int64, paused bool) error {
	if _, err := tx.ExecContext(ctx, sqlUpdateSyncRootPaused, paused, id); err != nil {
		return fmt.Errorf("catalog: update sync root %d paused: %w", id, err)
	}

	return nil
}

const sqlDeleteSyncRoot = `DELETE FROM syncfolder WHERE id = ?`

// DeleteSyncRoot removes the syncfolder row only. The caller is responsible
// for deleting localfolder/localfile/task rows that reference it first:
// foreign keys are enforced (foreign_keys=ON) without ON DELETE CASCADE, so
// deleting a root that still has referencing rows fails.
func DeleteSyncRoot(ctx context.Context, tx *Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, sqlDeleteSyncRoot, id); err != nil {
		return fmt.Errorf("catalog: delete sync root %d: %w", id, err)
	}

	return nil
}
