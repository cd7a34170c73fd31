package catalog

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.db")

	c, err := Open(context.Background(), path, testLogger())
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestOpen_RunsMigrations(t *testing.T) {
	c := openTestCatalog(t)

	ctx := context.Background()

	err := c.ReadLocked(ctx, func(tx *sql.Tx) error {
		roots, err := ListSyncRoots(ctx, tx)
		assert.NoError(t, err)
		assert.Empty(t, roots)

		return nil
	})
	require.NoError(t, err)
}

func TestSyncRoot_InsertAndGet(t *testing.T) {
	c := openTestCatalog(t)

	ctx := context.Background()

	tx, err := c.BeginWrite(ctx)
	require.NoError(t, err)

	id, err := InsertSyncRoot(ctx, tx, SyncRoot{
		FolderID: "0", LocalPath: "/home/user/Sync", SyncType: "full", DeviceID: "dev-1", Inode: 12345,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	err = c.ReadLocked(ctx, func(sqlTx *sql.Tx) error {
		got, ok, err := GetSyncRootByPath(ctx, sqlTx, "/home/user/Sync")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "full", got.SyncType)
		assert.Equal(t, uint64(12345), got.Inode)

		return nil
	})
	require.NoError(t, err)
}

func TestTryBeginWrite_FailsFastWhenHeld(t *testing.T) {
	c := openTestCatalog(t)

	ctx := context.Background()

	holder, err := c.BeginWrite(ctx)
	require.NoError(t, err)

	defer holder.Rollback()

	_, err = c.TryBeginWrite(ctx)
	assert.ErrorIs(t, err, ErrWriteLocked)
}

func TestTryBeginWrite_SucceedsAfterRelease(t *testing.T) {
	c := openTestCatalog(t)

	ctx := context.Background()

	holder, err := c.BeginWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, holder.Rollback())

	tx, err := c.TryBeginWrite(ctx)
	require.NoError(t, err)
	assert.NoError(t, tx.Rollback())
}

func TestTaskQueue_ClaimEnforcesSingleInProgressUpload(t *testing.T) {
	c := openTestCatalog(t)

	ctx := context.Background()

	tx, err := c.BeginWrite(ctx)
	require.NoError(t, err)

	rootID, err := InsertSyncRoot(ctx, tx, SyncRoot{
		FolderID: "0", LocalPath: "/sync", SyncType: "upload-only", DeviceID: "dev-1", Inode: 1,
	})
	require.NoError(t, err)

	task1, err := EnqueueTask(ctx, tx, Task{Type: TaskUploadFile, SyncID: rootID, LocalItemID: 42})
	require.NoError(t, err)

	task2, err := EnqueueTask(ctx, tx, Task{Type: TaskUploadFile, SyncID: rootID, LocalItemID: 42})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = c.BeginWrite(ctx)
	require.NoError(t, err)

	claimed, err := ClaimTask(ctx, tx, task1)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimedAgain, err := ClaimTask(ctx, tx, task2)
	require.NoError(t, err)
	assert.False(t, claimedAgain, "a second UPLOAD_FILE task for the same local item must not be claimable")

	require.NoError(t, tx.Commit())
}

func TestSetting_RoundTrip(t *testing.T) {
	c := openTestCatalog(t)

	ctx := context.Background()

	tx, err := c.BeginWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, SetSetting(ctx, tx, "maxuploadspeed", "0"))
	require.NoError(t, tx.Commit())

	err = c.ReadLocked(ctx, func(sqlTx *sql.Tx) error {
		value, ok, err := GetSetting(ctx, sqlTx, "maxuploadspeed")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "0", value)

		return nil
	})
	require.NoError(t, err)
}

func TestCellInt_DefaultWhenNoRows(t *testing.T) {
	c := openTestCatalog(t)

	ctx := context.Background()

	got, err := c.CellInt(ctx, "SELECT id FROM syncfolder WHERE localpath = ?", -1, "/nowhere")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got)
}
