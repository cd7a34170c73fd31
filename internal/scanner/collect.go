package scanner

import (
	"context"
	"database/sql"
	"path/filepath"

	"github.com/brennanwright/syncd/internal/catalog"
	"github.com/brennanwright/syncd/internal/ignore"
)

// globalBags accumulates the deleted/new folder and file entries across an
// entire tree walk, so rename detection can pair a deletion in one folder
// against a creation in a different folder (spec.md §4.5's "accumulate
// into per-pass lists ... after the tree walk, rename detection runs
// twice" — once for folders, once for files, over the whole pass rather
// than one folder level at a time).
type globalBags struct {
	DeletedFolders []DeletedFolder
	NewFolders     []NewFolder
	DeletedFiles   []DeletedFile
	NewFiles       []NewFile
}

// collectFolder performs the read-only half of a pass: it diffs fsPath
// against its catalog shadow exactly as scanFolder's apply half does, but
// only accumulates the result into out and recurses — it never mutates
// the catalog. parentKnown is false for a subtree under a folder that
// hasn't been created yet (a new-folder branch discovered during this
// same collection), in which case there is no catalog shadow to query:
// every entry under it is trivially new.
func (w *walker) collectFolder(ctx context.Context, parentID sql.NullInt64, parentKnown bool, fsPath string, ancestors []ignore.DirID, out *globalBags) error {
	if w.restartFn != nil && w.restartFn() {
		return errRestart
	}

	disk, err := readDiskEntries(fsPath, w.ignoreEngine)
	if err != nil {
		w.logger.Warn("scanner: read directory failed, skipping subtree", "path", fsPath, "error", err)
		return nil
	}

	var (
		shadowFolders []catalog.LocalFolder
		shadowFiles   []catalog.LocalFile
	)

	if parentKnown {
		shadowFolders, err = catalog.ListLocalFoldersByParent(ctx, w.tx.Tx, w.root.ID, parentID)
		if err != nil {
			return err
		}

		shadowFiles, err = catalog.ListLocalFilesByParent(ctx, w.tx.Tx, w.root.ID, parentID)
		if err != nil {
			return err
		}
	}

	bags := diffFolder(disk, shadowFolders, shadowFiles, parentID)

	out.DeletedFolders = append(out.DeletedFolders, bags.DeletedFolders...)
	out.NewFolders = append(out.NewFolders, bags.NewFolders...)
	out.DeletedFiles = append(out.DeletedFiles, bags.DeletedFiles...)
	out.NewFiles = append(out.NewFiles, bags.NewFiles...)

	for _, cf := range bags.CommonFolders {
		childFS := filepath.Join(fsPath, cf.FSName)

		childAncestors, skip, err := w.descendAncestors(childFS, ancestors)
		if err != nil {
			return err
		}

		if skip {
			continue
		}

		if err := w.collectFolder(ctx, sql.NullInt64{Int64: cf.ID, Valid: true}, true, childFS, childAncestors, out); err != nil {
			return err
		}
	}

	for _, nf := range bags.NewFolders {
		childFS := filepath.Join(fsPath, nf.FSName)

		childAncestors, skip, err := w.descendAncestors(childFS, ancestors)
		if err != nil {
			return err
		}

		if skip {
			continue
		}

		if err := w.collectFolder(ctx, sql.NullInt64{}, false, childFS, childAncestors, out); err != nil {
			return err
		}
	}

	return nil
}
