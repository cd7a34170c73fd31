package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// LocalFolder is a row of the localfolder table: the catalog's mirror of
// one on-disk directory under a sync-root. FolderID is filled in once the
// corresponding remote folder exists (either pre-existing or created by a
// CREATE_REMOTE_FOLDER task).
type LocalFolder struct {
	ID                  int64
	SyncID              int64
	LocalParentFolderID sql.NullInt64
	Name                string
	Inode               uint64
	DeviceID            string
	Mtime               int64
	MtimeNative         int64
	Flags               int64
	FolderID            sql.NullString
}

const sqlInsertLocalFolder = `INSERT INTO localfolder
	(syncid, localparentfolderid, name, inode, deviceid, mtime, mtimenative, flags, folderid)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertLocalFolder creates a localfolder row and returns its id.
func InsertLocalFolder(ctx context.Context, tx *Tx, f LocalFolder) (int64, error) {
	result, err := tx.ExecContext(ctx, sqlInsertLocalFolder,
		f.SyncID, f.LocalParentFolderID, f.Name, f.Inode, f.DeviceID, f.Mtime, f.MtimeNative, f.Flags, f.FolderID)
	if err != nil {
		return 0, fmt.Errorf("catalog: insert local folder %s: %w", f.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: local folder last insert id: %w", err)
	}

	return id, nil
}

const sqlSelectLocalFoldersByParent = `SELECT id, syncid, localparentfolderid, name, inode, deviceid,
	mtime, mtimenative, flags, folderid
	FROM localfolder WHERE syncid = ? AND localparentfolderid IS ?
	ORDER BY name`

// ListLocalFoldersByParent returns the direct child folders of parentID
// within a sync-root. Pass a zero-valued sql.NullInt64 for the sync-root
// directory itself (no parent).
func ListLocalFoldersByParent(ctx context.Context, tx *sql.Tx, syncID int64, parentID sql.NullInt64) ([]LocalFolder, error) {
	rows, err := tx.QueryContext(ctx, sqlSelectLocalFoldersByParent, syncID, parentID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list local folders: %w", err)
	}
	defer rows.Close()

	var out []LocalFolder

	for rows.Next() {
		var f LocalFolder

		if err := rows.Scan(&f.ID, &f.SyncID, &f.LocalParentFolderID, &f.Name, &f.Inode, &f.DeviceID,
			&f.Mtime, &f.MtimeNative, &f.Flags, &f.FolderID); err != nil {
			return nil, fmt.Errorf("catalog: scan local folder: %w", err)
		}

		out = append(out, f)
	}

	return out, rows.Err()
}

const sqlSelectLocalFolderByID = `SELECT id, syncid, localparentfolderid, name, inode, deviceid,
	mtime, mtimenative, flags, folderid
	FROM localfolder WHERE id = ?`

// GetLocalFolder looks up a single folder row by id, used to resolve a
// task's parent chain (remote folder id, on-disk path) rather than
// re-walking the whole tree.
func GetLocalFolder(ctx context.Context, tx *sql.Tx, id int64) (LocalFolder, bool, error) {
	var f LocalFolder

	err := tx.QueryRowContext(ctx, sqlSelectLocalFolderByID, id).
		Scan(&f.ID, &f.SyncID, &f.LocalParentFolderID, &f.Name, &f.Inode, &f.DeviceID,
			&f.Mtime, &f.MtimeNative, &f.Flags, &f.FolderID)
	if err == sql.ErrNoRows {
		return LocalFolder{}, false, nil
	}

	if err != nil {
		return LocalFolder{}, false, fmt.Errorf("catalog: get local folder %d: %w", id, err)
	}

	return f, true, nil
}

const sqlUpdateLocalFolderRemoteID = `UPDATE localfolder SET folderid = ? WHERE id = ?`

// AttachRemoteFolderID records the remote folder id once the server has
// created (or already had) the corresponding folder.
func AttachRemoteFolderID(ctx context.Context, tx *Tx, id int64, folderID string) error {
	if _, err := tx.ExecContext(ctx, sqlUpdateLocalFolderRemoteID, folderID, id); err != nil {
		return fmt.Errorf("catalog: attach remote folder id to %d: %w", id, err)
	}

	return nil
}

const sqlUpdateLocalFolderRename = `UPDATE localfolder SET name = ?, localparentfolderid = ?, mtime = ?, mtimenative = ?
	WHERE id = ?`

// RenameLocalFolder updates a folder's recorded name/parent after a local
// move or rename is detected.
func RenameLocalFolder(ctx context.Context, tx *Tx, id int64, name string, parentID sql.NullInt64, mtime, mtimeNative int64) error {
	if _, err := tx.ExecContext(ctx, sqlUpdateLocalFolderRename, name, parentID, mtime, mtimeNative, id); err != nil {
		return fmt.Errorf("catalog: rename local folder %d: %w", id, err)
	}

	return nil
}

const sqlDeleteLocalFolder = `DELETE FROM localfolder WHERE id = ?`

// DeleteLocalFolder removes a folder row. The caller must have already
// deleted or reparented its children — this package enforces no implicit
// cascade, matching the "invariant violation" failure class for orphaned
// rows rather than silently cascading.
func DeleteLocalFolder(ctx context.Context, tx *Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, sqlDeleteLocalFolder, id); err != nil {
		return fmt.Errorf("catalog: delete local folder %d: %w", id, err)
	}

	return nil
}
