package queue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennanwright/syncd/internal/apiproto"
	"github.com/brennanwright/syncd/internal/catalog"
)

func TestHandleDeleteRemoteFile_CompletesTask(t *testing.T) {
	cat := openTestCatalog(t)
	root := insertSyncRoot(t, cat, t.TempDir())

	task := enqueue(t, cat, catalog.Task{
		Type: catalog.TaskDeleteRemoteFile, SyncID: root.ID, LocalItemID: 1,
		ItemID: sql.NullString{String: "file1", Valid: true},
	})

	caller := newFakeCaller()
	caller.script(apiproto.VerbDeleteFile, mustResponse(t, `{"result":0}`), nil)

	w := newTestWorker(cat, caller)

	require.NoError(t, w.handleDeleteRemoteFile(context.Background(), task))
	assert.False(t, taskExists(t, cat, root.ID, task.ID))
}

func TestHandleDeleteRemoteFolder_WaitsForUploadsToDrain(t *testing.T) {
	cat := openTestCatalog(t)
	root := insertSyncRoot(t, cat, t.TempDir())

	task := enqueue(t, cat, catalog.Task{
		Type: catalog.TaskDelrecRemoteFolder, SyncID: root.ID, LocalItemID: 1,
		ItemID: sql.NullString{String: "folder1", Valid: true},
	})

	caller := newFakeCaller()
	caller.script(apiproto.VerbDeleteFolderRecursive, mustResponse(t, `{"result":0}`), nil)

	w := newTestWorker(cat, caller)
	require.NoError(t, w.gate.acquire(context.Background(), 1))

	done := make(chan error, 1)

	go func() { done <- w.handleDeleteRemoteFolder(context.Background(), task) }()

	select {
	case err := <-done:
		t.Fatalf("handler should have blocked on the active upload, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	w.gate.release(1)
	require.NoError(t, <-done)

	assert.False(t, taskExists(t, cat, root.ID, task.ID))
}
