package queue

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brennanwright/syncd/internal/apierr"
	"github.com/brennanwright/syncd/internal/apiproto"
	"github.com/brennanwright/syncd/internal/catalog"
)

// apierrPermanent builds a permanent server-reported error with the given
// application code, standing in for apiproto.Classify's real output.
func apierrPermanent(code int) error {
	return apierr.WithCode(apierr.ClassPermanent, "rename", code, fmt.Errorf("server error %d", code))
}

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

	tx, err := cat.BeginWrite(ctx)
	require.NoError(t, err)

	id, err := catalog.InsertSyncRoot(ctx, tx, catalog.SyncRoot{
		FolderID: "0", LocalPath: localPath, SyncType: "full", DeviceID: "dev", Inode: 1,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var root catalog.SyncRoot

	err = cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		r, ok, err := catalog.GetSyncRoot(ctx, tx, id)
		root = r

		if err == nil && !ok {
			return fmt.Errorf("sync root %d not found after insert", id)
		}

		return err
	})
	require.NoError(t, err)

	return root
}

func insertFolder(t *testing.T, cat *catalog.Catalog, syncID int64, parent sql.NullInt64, name string) catalog.LocalFolder {
	t.Helper()

	ctx := context.Background()

	tx, err := cat.BeginWrite(ctx)
	require.NoError(t, err)

	id, err := catalog.InsertLocalFolder(ctx, tx, catalog.LocalFolder{
		SyncID: syncID, LocalParentFolderID: parent, Name: name, Inode: 2, DeviceID: "dev",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var folder catalog.LocalFolder

	err = cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		f, ok, err := catalog.GetLocalFolder(ctx, tx, id)
		folder = f

		if err == nil && !ok {
			return fmt.Errorf("folder %d not found after insert", id)
		}

		return err
	})
	require.NoError(t, err)

	return folder
}

func insertFile(t *testing.T, cat *catalog.Catalog, syncID int64, parent sql.NullInt64, name string, size int64) catalog.LocalFile {
	t.Helper()

	ctx := context.Background()

	tx, err := cat.BeginWrite(ctx)
	require.NoError(t, err)

	id, err := catalog.InsertLocalFile(ctx, tx, catalog.LocalFile{
		SyncID: syncID, LocalParentFolderID: parent, Name: name, Inode: 3, Size: size,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var file catalog.LocalFile

	err = cat.ReadLocked(ctx, func(tx *sql.Tx) error {
		f, ok, err := catalog.GetLocalFile(ctx, tx, id)
		file = f

		if err == nil && !ok {
			return fmt.Errorf("file %d not found after insert", id)
		}

		return err
	})
	require.NoError(t, err)

	return file
}

func enqueue(t *testing.T, cat *catalog.Catalog, task catalog.Task) catalog.Task {
	t.Helper()

	ctx := context.Background()

	tx, err := cat.BeginWrite(ctx)
	require.NoError(t, err)

	id, err := catalog.EnqueueTask(ctx, tx, task)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	task.ID = id

	return task
}

func taskExists(t *testing.T, cat *catalog.Catalog, syncID, taskID int64) bool {
	t.Helper()

	var found bool

	err := cat.ReadLocked(context.Background(), func(tx *sql.Tx) error {
		tasks, err := catalog.ListPendingTasks(context.Background(), tx, syncID)
		if err != nil {
			return err
		}

		for _, ts := range tasks {
			if ts.ID == taskID {
				found = true
			}
		}

		return nil
	})
	require.NoError(t, err)

	return found
}

func mustResponse(t *testing.T, json string) *apiproto.Response {
	t.Helper()

	resp, err := apiproto.ReadResponse(bytes.NewReader([]byte(json)))
	require.NoError(t, err)

	return resp
}

// scriptedCall is a Caller test double: responses are consumed in FIFO
// order per verb, so a test scripts exactly the sequence it expects.
type scriptedCall struct {
	resp *apiproto.Response
	err  error
}

type fakeCaller struct {
	mu        sync.Mutex
	responses map[string][]scriptedCall
	bodies    map[string][][]byte
	calls     []apiproto.Param // last call's params, for simple single-call assertions
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: map[string][]scriptedCall{}, bodies: map[string][][]byte{}}
}

func (f *fakeCaller) script(verb string, resp *apiproto.Response, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.responses[verb] = append(f.responses[verb], scriptedCall{resp: resp, err: err})
}

func (f *fakeCaller) Call(_ context.Context, verb string, params []apiproto.Param, body io.Reader, _ int64) (*apiproto.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = params

	if body != nil {
		b, _ := io.ReadAll(body)
		f.bodies[verb] = append(f.bodies[verb], b)
	}

	q := f.responses[verb]
	if len(q) == 0 {
		return nil, fmt.Errorf("fakeCaller: no scripted response for verb %q", verb)
	}

	r := q[0]
	f.responses[verb] = q[1:]

	return r.resp, r.err
}

func paramValue(params []apiproto.Param, name string) (apiproto.Param, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}

	return apiproto.Param{}, false
}

type fakeFetcher struct {
	hdr    apiproto.BlockStreamHeader
	blocks []apiproto.BlockChecksum
	err    error
}

func (f *fakeFetcher) Fetch(context.Context, apiproto.ChecksumLink) (apiproto.BlockStreamHeader, []apiproto.BlockChecksum, error) {
	return f.hdr, f.blocks, f.err
}
