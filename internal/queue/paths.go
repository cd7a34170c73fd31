package queue

import (
	"context"
	"database/sql"
	"path/filepath"

	"github.com/brennanwright/syncd/internal/catalog"
)

// folderPath reconstructs the on-disk path of a localfolder id by walking
// its LocalParentFolderID chain up to the sync-root directory. Names are
// the catalog's NFC-normalized form; macOS resolves NFC-composed paths
// against NFD-stored directory entries transparently at the syscall layer,
// so no separate on-disk name needs to be tracked here (unlike the
// scanner's diff pass, which must recurse into directories it is about to
// discover for the first time).
func folderPath(ctx context.Context, tx *sql.Tx, root catalog.SyncRoot, folderID sql.NullInt64) (string, error) {
	var segments []string

	for folderID.Valid {
		f, ok, err := catalog.GetLocalFolder(ctx, tx, folderID.Int64)
		if err != nil {
			return "", err
		}

		if !ok {
			break
		}

		segments = append([]string{f.Name}, segments...)
		folderID = f.LocalParentFolderID
	}

	return filepath.Join(append([]string{root.LocalPath}, segments...)...), nil
}

// filePath reconstructs the absolute on-disk path of a localfile row.
func filePath(ctx context.Context, tx *sql.Tx, root catalog.SyncRoot, f catalog.LocalFile) (string, error) {
	dir, err := folderPath(ctx, tx, root, f.LocalParentFolderID)
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, f.Name), nil
}

// pathWithName returns path with its final element replaced by name, used
// to rename a file in place after a server-resolved name conflict.
func pathWithName(path, name string) string {
	return filepath.Join(filepath.Dir(path), name)
}
