package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

const sqlSelectHashChecksum = `SELECT checksum FROM hashchecksum WHERE hash = ? AND size = ?`

// LookupHashChecksum resolves a (server-hash, size) pair to its cached
// hex-digest, avoiding a round trip to checksumfile when the same server
// hash has already been seen (common for unchanged files re-scanned across
// cycles).
func LookupHashChecksum(ctx context.Context, tx *sql.Tx, hash string, size int64) (string, bool, error) {
	var checksum string

	err := tx.QueryRowContext(ctx, sqlSelectHashChecksum, hash, size).Scan(&checksum)
	if err == sql.ErrNoRows {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("catalog: lookup hash checksum %s: %w", hash, err)
	}

	return checksum, true, nil
}

const sqlUpsertHashChecksum = `INSERT INTO hashchecksum (hash, size, checksum) VALUES (?, ?, ?)
	ON CONFLICT(hash, size) DO UPDATE SET checksum = excluded.checksum`

// StoreHashChecksum caches a (server-hash, size) → checksum mapping.
func StoreHashChecksum(ctx context.Context, tx *Tx, hash string, size int64, checksum string) error {
	if _, err := tx.ExecContext(ctx, sqlUpsertHashChecksum, hash, size, checksum); err != nil {
		return fmt.Errorf("catalog: store hash checksum %s: %w", hash, err)
	}

	return nil
}

// FileRevision is a row of the filerevision table: one historic hash of a
// remote file, as returned by listrevisions.
type FileRevision struct {
	FileID string
	Hash   string
	Ctime  int64
	Size   int64
}

const sqlInsertFileRevision = `INSERT INTO filerevision (fileid, hash, ctime, size) VALUES (?, ?, ?, ?)
	ON CONFLICT(fileid, hash) DO NOTHING`

// StoreFileRevision caches one historic revision of a remote file.
func StoreFileRevision(ctx context.Context, tx *Tx, r FileRevision) error {
	if _, err := tx.ExecContext(ctx, sqlInsertFileRevision, r.FileID, r.Hash, r.Ctime, r.Size); err != nil {
		return fmt.Errorf("catalog: store file revision %s/%s: %w", r.FileID, r.Hash, err)
	}

	return nil
}

const sqlSelectFileRevisions = `SELECT fileid, hash, ctime, size FROM filerevision
	WHERE fileid = ? ORDER BY ctime DESC`

// ListFileRevisions returns the cached revision history for a remote file,
// most recent first.
func ListFileRevisions(ctx context.Context, tx *sql.Tx, fileID string) ([]FileRevision, error) {
	rows, err := tx.QueryContext(ctx, sqlSelectFileRevisions, fileID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list file revisions %s: %w", fileID, err)
	}
	defer rows.Close()

	var out []FileRevision

	for rows.Next() {
		var r FileRevision

		if err := rows.Scan(&r.FileID, &r.Hash, &r.Ctime, &r.Size); err != nil {
			return nil, fmt.Errorf("catalog: scan file revision: %w", err)
		}

		out = append(out, r)
	}

	return out, rows.Err()
}
