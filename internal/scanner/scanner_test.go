package scanner

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennanwright/syncd/internal/catalog"
	"github.com/brennanwright/syncd/internal/ignore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	c, err := catalog.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func insertSyncRoot(t *testing.T, cat *catalog.Catalog, localPath string) catalog.SyncRoot {
	t.Helper()

	ctx := context.Background()

	info, err := os.Stat(localPath)
	require.NoError(t, err)

	inode, device, err := inodeAndDevice(info)
	require.NoError(t, err)

	tx, err := cat.BeginWrite(ctx)
	require.NoError(t, err)

	id, err := catalog.InsertSyncRoot(ctx, tx, catalog.SyncRoot{
		FolderID: "0", LocalPath: localPath, SyncType: "full",
		DeviceID: deviceIDString(device), Inode: inode,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	return catalog.SyncRoot{ID: id, FolderID: "0", LocalPath: localPath, SyncType: "full", DeviceID: deviceIDString(device), Inode: inode}
}

func noopIgnoreEngine() *ignore.Engine {
	return ignore.New(ignore.StatDirID)
}

func TestWalk_FreshUpload_EnqueuesOneUploadTask(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world\n"), 0o644))

	cat := openTestCatalog(t)
	root := insertSyncRoot(t, cat, dir)

	ctx := context.Background()
	require.NoError(t, Walk(ctx, cat, noopIgnoreEngine(), testLogger(), root, nil))

	err := cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		files, err := catalog.ListLocalFilesByParent(ctx, tx, root.ID, sql.NullInt64{})
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "hello.txt", files[0].Name)
		assert.Equal(t, int64(12), files[0].Size)

		tasks, err := catalog.ListPendingTasks(ctx, tx, root.ID)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, catalog.TaskUploadFile, tasks[0].Type)
		assert.Equal(t, files[0].ID, tasks[0].LocalItemID)

		return nil
	})
	require.NoError(t, err)
}

func TestWalk_Idempotent_UnchangedTreeEmitsNoTasks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("content"), 0o644))

	cat := openTestCatalog(t)
	root := insertSyncRoot(t, cat, dir)

	ctx := context.Background()
	require.NoError(t, Walk(ctx, cat, noopIgnoreEngine(), testLogger(), root, nil))

	// Drain the task from the first pass so the second pass's emptiness
	// is unambiguous.
	tx, err := cat.BeginWrite(ctx)
	require.NoError(t, err)

	err = cat.ReadLocked(ctx, func(sqlTx *sql.Tx) error {
		tasks, err := catalog.ListPendingTasks(ctx, sqlTx, root.ID)
		require.NoError(t, err)

		for _, task := range tasks {
			require.NoError(t, catalog.CompleteTask(ctx, tx, task.ID))
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NoError(t, Walk(ctx, cat, noopIgnoreEngine(), testLogger(), root, nil))

	err = cat.ReadLocked(ctx, func(sqlTx *sql.Tx) error {
		tasks, err := catalog.ListPendingTasks(ctx, sqlTx, root.ID)
		require.NoError(t, err)
		assert.Empty(t, tasks, "an unchanged filesystem must emit no tasks on a second pass")

		return nil
	})
	require.NoError(t, err)
}

func TestWalk_NewFolder_RecursesAndUploadsChild(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "nested.txt"), []byte("x"), 0o644))

	cat := openTestCatalog(t)
	root := insertSyncRoot(t, cat, dir)

	ctx := context.Background()
	require.NoError(t, Walk(ctx, cat, noopIgnoreEngine(), testLogger(), root, nil))

	err := cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		folders, err := catalog.ListLocalFoldersByParent(ctx, tx, root.ID, sql.NullInt64{})
		require.NoError(t, err)
		require.Len(t, folders, 1)
		assert.Equal(t, "sub", folders[0].Name)

		files, err := catalog.ListLocalFilesByParent(ctx, tx, root.ID, sql.NullInt64{Int64: folders[0].ID, Valid: true})
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "nested.txt", files[0].Name)

		tasks, err := catalog.ListPendingTasks(ctx, tx, root.ID)
		require.NoError(t, err)

		var sawCreateFolder, sawUpload bool

		for _, task := range tasks {
			switch task.Type {
			case catalog.TaskCreateRemoteFolder:
				sawCreateFolder = true
			case catalog.TaskUploadFile:
				sawUpload = true
			}
		}

		assert.True(t, sawCreateFolder)
		assert.True(t, sawUpload)

		return nil
	})
	require.NoError(t, err)
}

func TestWalk_DeletedFile_DropsRowAndEnqueuesDeleteWhenRemoteIDKnown(t *testing.T) {
	dir := t.TempDir()

	cat := openTestCatalog(t)
	root := insertSyncRoot(t, cat, dir)

	ctx := context.Background()

	tx, err := cat.BeginWrite(ctx)
	require.NoError(t, err)

	fileID, err := catalog.InsertLocalFile(ctx, tx, catalog.LocalFile{
		SyncID: root.ID, Name: "gone.txt", Inode: 999, Size: 4, Mtime: 1, MtimeNative: 1,
		FileID: sql.NullString{String: "remote-1", Valid: true},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NoError(t, Walk(ctx, cat, noopIgnoreEngine(), testLogger(), root, nil))

	err = cat.ReadLocked(ctx, func(sqlTx *sql.Tx) error {
		files, err := catalog.ListLocalFilesByParent(ctx, sqlTx, root.ID, sql.NullInt64{})
		require.NoError(t, err)
		assert.Empty(t, files)

		tasks, err := catalog.ListPendingTasks(ctx, sqlTx, root.ID)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, catalog.TaskDeleteRemoteFile, tasks[0].Type)
		assert.Equal(t, fileID, tasks[0].LocalItemID)

		return nil
	})
	require.NoError(t, err)
}

func TestWalk_RenamedFile_ProducesNoUpload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "b"), 0o755))

	xPath := filepath.Join(dir, "a", "x.bin")
	require.NoError(t, os.WriteFile(xPath, []byte("0123456789"), 0o644))

	cat := openTestCatalog(t)
	root := insertSyncRoot(t, cat, dir)

	ctx := context.Background()
	require.NoError(t, Walk(ctx, cat, noopIgnoreEngine(), testLogger(), root, nil))

	// Drain tasks from the initial upload so only the rename's tasks
	// remain after the second pass.
	tx, err := cat.BeginWrite(ctx)
	require.NoError(t, err)

	err = cat.ReadLocked(ctx, func(sqlTx *sql.Tx) error {
		tasks, err := catalog.ListPendingTasks(ctx, sqlTx, root.ID)
		require.NoError(t, err)

		for _, task := range tasks {
			require.NoError(t, catalog.CompleteTask(ctx, tx, task.ID))
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NoError(t, os.Rename(xPath, filepath.Join(dir, "b", "x.bin")))

	require.NoError(t, Walk(ctx, cat, noopIgnoreEngine(), testLogger(), root, nil))

	err = cat.ReadLocked(ctx, func(sqlTx *sql.Tx) error {
		tasks, err := catalog.ListPendingTasks(ctx, sqlTx, root.ID)
		require.NoError(t, err)

		for _, task := range tasks {
			assert.NotEqual(t, catalog.TaskUploadFile, task.Type, "a pure rename must not re-upload")
		}

		return nil
	})
	require.NoError(t, err)
}

func TestExtractRepeatingFiles_PairsBySizeInodeMtime(t *testing.T) {
	deleted := []DeletedFile{{ID: 1, Inode: 7, Size: 10, Mtime: 100}, {ID: 2, Inode: 8, Size: 5, Mtime: 50}}
	created := []NewFile{{Name: "y", Inode: 7, Size: 10, Mtime: 100}}

	remDeleted, remCreated, fromPairs, toPairs := extractRepeatingFiles(deleted, created)

	require.Len(t, fromPairs, 1)
	require.Len(t, toPairs, 1)
	assert.Equal(t, int64(1), fromPairs[0].ID)
	assert.Equal(t, "y", toPairs[0].Name)
	assert.Len(t, remDeleted, 1)
	assert.Empty(t, remCreated)
}

func TestEngine_PauseBlocksNewScanUntilResume(t *testing.T) {
	dir := t.TempDir()
	cat := openTestCatalog(t)
	root := insertSyncRoot(t, cat, dir)

	e := New(cat, noopIgnoreEngine(), testLogger(), root, time.Hour)
	e.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		_ = e.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateIdle, e.State(), "paused engine stays idle, never enters scanning")

	<-done
}

func TestEngine_StateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "scanning", StateScanning.String())
	assert.Equal(t, "applying", StateApplying.String())
}
