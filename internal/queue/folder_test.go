package queue

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennanwright/syncd/internal/apiproto"
	"github.com/brennanwright/syncd/internal/catalog"
)

func newTestWorker(cat *catalog.Catalog, caller Caller) *Worker {
	return New(cat, caller, &fakeFetcher{}, nil, testLogger(), Config{
		MaxParallelUploads:   1,
		StartUploadsTreshold: 1 << 20,
		MinSizeForChecksums:  1 << 20,
		MaxPendingUploadReqs: 4,
		MaxCopyFromReq:       1 << 20,
		UploadOlderThanSec:   0,
	})
}

func TestHandleCreateRemoteFolder_AttachesRemoteID(t *testing.T) {
	cat := openTestCatalog(t)
	root := insertSyncRoot(t, cat, t.TempDir())
	folder := insertFolder(t, cat, root.ID, sql.NullInt64{}, "docs")

	task := enqueue(t, cat, catalog.Task{
		Type: catalog.TaskCreateRemoteFolder, SyncID: root.ID, LocalItemID: folder.ID,
	})

	caller := newFakeCaller()
	caller.script(apiproto.VerbCreateFolderIfNotExist, mustResponse(t, `{"result":0,"metadata":{"folderid":"f42"}}`), nil)

	w := newTestWorker(cat, caller)

	require.NoError(t, w.handleCreateRemoteFolder(context.Background(), root, task))

	p, ok := paramValue(caller.calls, "parent")
	require.True(t, ok)
	assert.Equal(t, "0", p.Str)

	err := cat.ReadLocked(context.Background(), func(tx *sql.Tx) error {
		f, ok, err := catalog.GetLocalFolder(context.Background(), tx, folder.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "f42", f.FolderID.String)

		return nil
	})
	require.NoError(t, err)

	assert.False(t, taskExists(t, cat, root.ID, task.ID))
}

func TestResolveParentRemoteID_SyncRootItself(t *testing.T) {
	cat := openTestCatalog(t)
	root := insertSyncRoot(t, cat, t.TempDir())

	w := newTestWorker(cat, newFakeCaller())

	id, err := w.resolveParentRemoteID(context.Background(), root, sql.NullInt64{})
	require.NoError(t, err)
	assert.Equal(t, root.FolderID, id)
}

func TestResolveParentRemoteID_MissingRemoteIDIsInvariantViolation(t *testing.T) {
	cat := openTestCatalog(t)
	root := insertSyncRoot(t, cat, t.TempDir())
	folder := insertFolder(t, cat, root.ID, sql.NullInt64{}, "unsynced")

	w := newTestWorker(cat, newFakeCaller())

	_, err := w.resolveParentRemoteID(context.Background(), root, sql.NullInt64{Int64: folder.ID, Valid: true})
	require.Error(t, err)
}
