package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// Task type constants. The download-side symmetric set named in the data
// model (DOWNLOAD_FILE, etc.) is out of scope for this engine.
const (
	TaskCreateRemoteFolder = "CREATE_REMOTE_FOLDER"
	TaskRenameRemoteFile   = "RENAME_REMOTE_FILE"
	TaskRenameRemoteFolder = "RENAME_REMOTE_FOLDER"
	TaskUploadFile         = "UPLOAD_FILE"
	TaskDeleteRemoteFile   = "DELETE_REMOTE_FILE"
	TaskDelrecRemoteFolder = "DELREC_REMOTE_FOLDER"
)

// Task is a row of the task table — one unit of work the upload worker
// must perform against the server. ID is monotonically increasing and
// defines total ordering within a sync-root (invariant 2).
type Task struct {
	ID          int64
	Type        string
	SyncID      int64
	ItemID      sql.NullString
	LocalItemID int64
	NewItemID   sql.NullString
	Name        sql.NullString
	NewSyncID   sql.NullInt64
	InProgress  bool
}

const sqlInsertTask = `INSERT INTO task
	(type, syncid, itemid, localitemid, newitemid, name, newsyncid, inprogress)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0)`

// EnqueueTask appends a task. Folder-create tasks must be enqueued before
// any task referencing the resulting folder as a parent (invariant 4);
// callers are responsible for that ordering during scan.
func EnqueueTask(ctx context.Context, tx *Tx, t Task) (int64, error) {
	result, err := tx.ExecContext(ctx, sqlInsertTask,
		t.Type, t.SyncID, t.ItemID, t.LocalItemID, t.NewItemID, t.Name, t.NewSyncID)
	if err != nil {
		return 0, fmt.Errorf("catalog: enqueue task type=%s: %w", t.Type, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: task last insert id: %w", err)
	}

	return id, nil
}

const sqlSelectPendingTasks = `SELECT id, type, syncid, itemid, localitemid, newitemid, name, newsyncid, inprogress
	FROM task WHERE syncid = ? AND inprogress = 0 ORDER BY id`

// ListPendingTasks returns not-yet-claimed tasks for a sync-root, in
// ascending id order (the ordering invariant 2 relies on).
func ListPendingTasks(ctx context.Context, tx *sql.Tx, syncID int64) ([]Task, error) {
	return queryTasks(ctx, tx, sqlSelectPendingTasks, syncID)
}

func queryTasks(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]Task, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query tasks: %w", err)
	}
	defer rows.Close()

	var out []Task

	for rows.Next() {
		var t Task

		var inProgress int

		if err := rows.Scan(&t.ID, &t.Type, &t.SyncID, &t.ItemID, &t.LocalItemID,
			&t.NewItemID, &t.Name, &t.NewSyncID, &inProgress); err != nil {
			return nil, fmt.Errorf("catalog: scan task: %w", err)
		}

		t.InProgress = inProgress != 0
		out = append(out, t)
	}

	return out, rows.Err()
}

const sqlClaimUploadTask = `UPDATE task SET inprogress = 1
	WHERE id = ? AND inprogress = 0
	AND (
		type != 'UPLOAD_FILE'
		OR NOT EXISTS (
			SELECT 1 FROM task other
			WHERE other.type = 'UPLOAD_FILE' AND other.localitemid = task.localitemid
			AND other.inprogress = 1
		)
	)`

// ClaimTask marks a task in-progress. For UPLOAD_FILE tasks this enforces
// invariant 3 (at most one in-progress upload per local-file id) at the
// database layer: the claim is a no-op (zero rows affected) if a sibling
// upload for the same local-file is already in progress, so the caller
// must check the returned bool and retry a different task rather than
// assuming success.
func ClaimTask(ctx context.Context, tx *Tx, id int64) (bool, error) {
	result, err := tx.ExecContext(ctx, sqlClaimUploadTask, id)
	if err != nil {
		return false, fmt.Errorf("catalog: claim task %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("catalog: claim task %d rows affected: %w", id, err)
	}

	return rows > 0, nil
}

const sqlCompleteTask = `DELETE FROM task WHERE id = ?`

// CompleteTask removes a finished task from the queue.
func CompleteTask(ctx context.Context, tx *Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, sqlCompleteTask, id); err != nil {
		return fmt.Errorf("catalog: complete task %d: %w", id, err)
	}

	return nil
}

const sqlResetTaskProgress = `UPDATE task SET inprogress = 0 WHERE id = ?`

// ReleaseTask reverts a claimed task back to pending, used when a retryable
// failure means the task should be attempted again later rather than
// dropped.
func ReleaseTask(ctx context.Context, tx *Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, sqlResetTaskProgress, id); err != nil {
		return fmt.Errorf("catalog: release task %d: %w", id, err)
	}

	return nil
}

const sqlSetNewItemID = `UPDATE task SET newitemid = ? WHERE id = ?`

// SetTaskNewItemID records the remote id produced by a folder-create task,
// so dependent tasks enqueued afterward can resolve it.
func SetTaskNewItemID(ctx context.Context, tx *Tx, id int64, newItemID string) error {
	if _, err := tx.ExecContext(ctx, sqlSetNewItemID, newItemID, id); err != nil {
		return fmt.Errorf("catalog: set task %d new item id: %w", id, err)
	}

	return nil
}
