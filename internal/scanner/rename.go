package scanner

// fileIdentityKey is the (inode, size, mtime) tuple extractRepeatingFiles
// pairs on, reused as a map key so the apply walk can recognize a locally
// "new" file as the destination half of a pass-wide rename.
type fileIdentityKey struct {
	inode uint64
	size  int64
	mtime int64
}

// renamePairing is the result of running rename detection once over an
// entire pass's accumulated deleted/new lists (spec.md §4.5), rather than
// once per folder level — the only way a file or folder moved between two
// different directories is recognized as a rename instead of a
// delete-then-upload. folderFrom/fileFrom are keyed by the identity the
// apply walk observes on the new (destination) side; folderFromIDs/
// fileFromIDs mark the deleted (source) rows the apply walk must not
// delete, since they are consumed by a rename applied when its
// destination folder is visited instead.
type renamePairing struct {
	folderFrom    map[uint64]DeletedFolder
	folderFromIDs map[int64]struct{}
	fileFrom      map[fileIdentityKey]DeletedFile
	fileFromIDs   map[int64]struct{}
}

// buildRenamePairing runs the two extraction passes over the whole tree's
// accumulated bags and indexes the resulting pairs for the apply walk's
// per-folder lookups.
func buildRenamePairing(global globalBags) *renamePairing {
	_, _, fromFolders, toFolders := extractRepeatingFolders(global.DeletedFolders, global.NewFolders)
	_, _, fromFiles, toFiles := extractRepeatingFiles(global.DeletedFiles, global.NewFiles)

	p := &renamePairing{
		folderFrom:    make(map[uint64]DeletedFolder, len(fromFolders)),
		folderFromIDs: make(map[int64]struct{}, len(fromFolders)),
		fileFrom:      make(map[fileIdentityKey]DeletedFile, len(fromFiles)),
		fileFromIDs:   make(map[int64]struct{}, len(fromFiles)),
	}

	for i, to := range toFolders {
		from := fromFolders[i]
		p.folderFrom[to.Inode] = from
		p.folderFromIDs[from.ID] = struct{}{}
	}

	for i, to := range toFiles {
		from := fromFiles[i]
		p.fileFrom[fileIdentityKey{inode: to.Inode, size: to.Size, mtime: to.Mtime}] = from
		p.fileFromIDs[from.ID] = struct{}{}
	}

	return p
}

// extractRepeatingFolders pairs entries of deleted and created against a
// common key (folder rename detection uses inode equality; see
// extractRepeatingFiles for the file variant). Matched pairs are returned
// in paired order and removed from the remaining slices.
func extractRepeatingFolders(deleted []DeletedFolder, created []NewFolder) (remDeleted []DeletedFolder, remCreated []NewFolder, fromPairs []DeletedFolder, toPairs []NewFolder) {
	usedCreated := make([]bool, len(created))

	for _, d := range deleted {
		matched := -1

		for j, c := range created {
			if usedCreated[j] {
				continue
			}

			if c.Inode == d.Inode {
				matched = j
				break
			}
		}

		if matched == -1 {
			remDeleted = append(remDeleted, d)
			continue
		}

		usedCreated[matched] = true
		fromPairs = append(fromPairs, d)
		toPairs = append(toPairs, created[matched])
	}

	for j, c := range created {
		if !usedCreated[j] {
			remCreated = append(remCreated, c)
		}
	}

	return remDeleted, remCreated, fromPairs, toPairs
}

// extractRepeatingFiles pairs deleted and created files by the
// (size, inode, mtime) tuple — inode alone is insufficient because some
// filesystems implement a move as copy-then-delete, recycling inodes.
func extractRepeatingFiles(deleted []DeletedFile, created []NewFile) (remDeleted []DeletedFile, remCreated []NewFile, fromPairs []DeletedFile, toPairs []NewFile) {
	usedCreated := make([]bool, len(created))

	for _, d := range deleted {
		matched := -1

		for j, c := range created {
			if usedCreated[j] {
				continue
			}

			if c.Inode == d.Inode && c.Size == d.Size && c.Mtime == d.Mtime {
				matched = j
				break
			}
		}

		if matched == -1 {
			remDeleted = append(remDeleted, d)
			continue
		}

		usedCreated[matched] = true
		fromPairs = append(fromPairs, d)
		toPairs = append(toPairs, created[matched])
	}

	for j, c := range created {
		if !usedCreated[j] {
			remCreated = append(remCreated, c)
		}
	}

	return remDeleted, remCreated, fromPairs, toPairs
}
