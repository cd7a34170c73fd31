package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// LocalFile is a row of the localfile table: the catalog's mirror of one
// on-disk regular file. Checksum is populated lazily (invariant 5: when
// present, it is only valid for the recorded (size, mtime-native, inode)
// tuple — the scanner must blank it on any of those changing).
type LocalFile struct {
	ID                  int64
	SyncID              int64
	LocalParentFolderID sql.NullInt64
	Name                string
	Inode               uint64
	Size                int64
	Mtime               int64
	MtimeNative         int64
	Checksum            sql.NullString
	FileID              sql.NullString
	Hash                sql.NullString
}

const sqlInsertLocalFile = `INSERT INTO localfile
	(syncid, localparentfolderid, name, inode, size, mtime, mtimenative, checksum, fileid, hash)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertLocalFile creates a localfile row and returns its id.
func InsertLocalFile(ctx context.Context, tx *Tx, f LocalFile) (int64, error) {
	result, err := tx.ExecContext(ctx, sqlInsertLocalFile,
		f.SyncID, f.LocalParentFolderID, f.Name, f.Inode, f.Size, f.Mtime, f.MtimeNative,
		f.Checksum, f.FileID, f.Hash)
	if err != nil {
		return 0, fmt.Errorf("catalog: insert local file %s: %w", f.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: local file last insert id: %w", err)
	}

	return id, nil
}

const sqlSelectLocalFilesByParent = `SELECT id, syncid, localparentfolderid, name, inode, size,
	mtime, mtimenative, checksum, fileid, hash
	FROM localfile WHERE syncid = ? AND localparentfolderid IS ?
	ORDER BY name`

// ListLocalFilesByParent returns the files directly inside parentID.
func ListLocalFilesByParent(ctx context.Context, tx *sql.Tx, syncID int64, parentID sql.NullInt64) ([]LocalFile, error) {
	rows, err := tx.QueryContext(ctx, sqlSelectLocalFilesByParent, syncID, parentID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list local files: %w", err)
	}
	defer rows.Close()

	var out []LocalFile

	for rows.Next() {
		var f LocalFile

		if err := rows.Scan(&f.ID, &f.SyncID, &f.LocalParentFolderID, &f.Name, &f.Inode, &f.Size,
			&f.Mtime, &f.MtimeNative, &f.Checksum, &f.FileID, &f.Hash); err != nil {
			return nil, fmt.Errorf("catalog: scan local file: %w", err)
		}

		out = append(out, f)
	}

	return out, rows.Err()
}

const sqlSelectLocalFileByID = `SELECT id, syncid, localparentfolderid, name, inode, size,
	mtime, mtimenative, checksum, fileid, hash
	FROM localfile WHERE id = ?`

// GetLocalFile looks up a single file row by id.
func GetLocalFile(ctx context.Context, tx *sql.Tx, id int64) (LocalFile, bool, error) {
	var f LocalFile

	err := tx.QueryRowContext(ctx, sqlSelectLocalFileByID, id).
		Scan(&f.ID, &f.SyncID, &f.LocalParentFolderID, &f.Name, &f.Inode, &f.Size,
			&f.Mtime, &f.MtimeNative, &f.Checksum, &f.FileID, &f.Hash)
	if err == sql.ErrNoRows {
		return LocalFile{}, false, nil
	}

	if err != nil {
		return LocalFile{}, false, fmt.Errorf("catalog: get local file %d: %w", id, err)
	}

	return f, true, nil
}

const sqlUpdateLocalFileStat = `UPDATE localfile SET size = ?, mtime = ?, mtimenative = ?, checksum = NULL
	WHERE id = ?`

// UpdateLocalFileStat records a new (size, mtime) observed by the scanner
// and clears the checksum, since invariant 5 no longer holds for the stale
// value once any of those changes.
func UpdateLocalFileStat(ctx context.Context, tx *Tx, id int64, size, mtime, mtimeNative int64) error {
	if _, err := tx.ExecContext(ctx, sqlUpdateLocalFileStat, size, mtime, mtimeNative, id); err != nil {
		return fmt.Errorf("catalog: update local file %d stat: %w", id, err)
	}

	return nil
}

const sqlUpdateLocalFileChecksum = `UPDATE localfile SET checksum = ? WHERE id = ?`

// UpdateLocalFileChecksum records a freshly computed checksum, valid for
// the file's current (size, mtime-native, inode) tuple.
func UpdateLocalFileChecksum(ctx context.Context, tx *Tx, id int64, checksum string) error {
	if _, err := tx.ExecContext(ctx, sqlUpdateLocalFileChecksum, checksum, id); err != nil {
		return fmt.Errorf("catalog: update local file %d checksum: %w", id, err)
	}

	return nil
}

const sqlUpdateLocalFileRemote = `UPDATE localfile SET fileid = ?, hash = ? WHERE id = ?`

// AttachRemoteFile records the server-side file id and hash once an upload
// completes.
func AttachRemoteFile(ctx context.Context, tx *Tx, id int64, fileID, hash string) error {
	if _, err := tx.ExecContext(ctx, sqlUpdateLocalFileRemote, fileID, hash, id); err != nil {
		return fmt.Errorf("catalog: attach remote file to %d: %w", id, err)
	}

	return nil
}

const sqlUpdateLocalFileRename = `UPDATE localfile SET name = ?, localparentfolderid = ?
	WHERE id = ?`

// RenameLocalFile updates a file's recorded name/parent after a local move
// or rename is detected.
func RenameLocalFile(ctx context.Context, tx *Tx, id int64, name string, parentID sql.NullInt64) error {
	if _, err := tx.ExecContext(ctx, sqlUpdateLocalFileRename, name, parentID, id); err != nil {
		return fmt.Errorf("catalog: rename local file %d: %w", id, err)
	}

	return nil
}

const sqlDeleteLocalFile = `DELETE FROM localfile WHERE id = ?`

// DeleteLocalFile removes a file row.
func DeleteLocalFile(ctx context.Context, tx *Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, sqlDeleteLocalFile, id); err != nil {
		return fmt.Errorf("catalog: delete local file %d: %w", id, err)
	}

	return nil
}
