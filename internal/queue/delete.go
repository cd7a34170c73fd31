package queue

import (
	"context"

	"github.com/brennanwright/syncd/internal/apiproto"
	"github.com/brennanwright/syncd/internal/catalog"
)

// handleDeleteRemoteFile and handleDeleteRemoteFolder both wait for
// in-flight uploads to drain, then issue the trivial server delete call.
// The local catalog row was already removed by the scanner before the task
// was enqueued (walk.go steps 6-7), so only the remote side and the task
// row itself remain to be cleaned up here.

func (w *Worker) handleDeleteRemoteFile(ctx context.Context, task catalog.Task) error {
	if err := w.gate.drainZero(ctx); err != nil {
		return err
	}

	if _, err := w.caller.Call(ctx, apiproto.VerbDeleteFile, []apiproto.Param{
		apiproto.StringParam("fileid", task.ItemID.String),
	}, nil, 0); err != nil {
		return err
	}

	return w.completeTask(ctx, task.ID)
}

func (w *Worker) handleDeleteRemoteFolder(ctx context.Context, task catalog.Task) error {
	if err := w.gate.drainZero(ctx); err != nil {
		return err
	}

	if _, err := w.caller.Call(ctx, apiproto.VerbDeleteFolderRecursive, []apiproto.Param{
		apiproto.StringParam("folderid", task.ItemID.String),
	}, nil, 0); err != nil {
		return err
	}

	return w.completeTask(ctx, task.ID)
}
