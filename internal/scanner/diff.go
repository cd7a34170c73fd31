package scanner

import (
	"database/sql"
	"os"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/brennanwright/syncd/internal/catalog"
	"github.com/brennanwright/syncd/internal/ignore"
)

type diskKind int

const (
	diskKindFile diskKind = iota
	diskKindFolder
)

// diskEntry is one directory entry as seen on disk, name-normalized and
// stat'd, ready to diff against the catalog's shadow of the same folder.
type diskEntry struct {
	fsName      string // original on-disk name, for filesystem I/O
	name        string // NFC-normalized name, for catalog storage/comparison
	kind        diskKind
	size        int64
	mtime       int64
	mtimeNative int64
	inode       uint64
	deviceID    uint64
}

// readDiskEntries lists fullPath, normalizes and stats each entry, and
// drops anything the ignore engine's name filter rejects. Entries that
// fail to stat (removed mid-walk, permission denied) are silently
// dropped, matching the "local-temporary: stat races" error class.
func readDiskEntries(fullPath string, ignoreEngine *ignore.Engine) ([]diskEntry, error) {
	raw, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, err
	}

	entries := make([]diskEntry, 0, len(raw))

	for _, e := range raw {
		normalized := norm.NFC.String(e.Name())
		if ignoreEngine.IsNameIgnored(normalized) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		inode, device, err := inodeAndDevice(info)
		if err != nil {
			continue
		}

		kind := diskKindFile
		if info.IsDir() {
			kind = diskKindFolder
		}

		entries = append(entries, diskEntry{
			fsName:      e.Name(),
			name:        normalized,
			kind:        kind,
			size:        info.Size(),
			mtime:       info.ModTime().Unix(),
			mtimeNative: info.ModTime().UnixNano(),
			inode:       inode,
			deviceID:    device,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	return entries, nil
}

// diffFolder merges disk entries against the catalog's recorded children
// of one folder, producing the per-level bags of spec.md §4.5 step 3
// (folded into six groups here; rename detection runs afterward on the
// deleted/new bags).
func diffFolder(disk []diskEntry, shadowFolders []catalog.LocalFolder, shadowFiles []catalog.LocalFile, parentID sql.NullInt64) folderBags {
	folderByName := make(map[string]catalog.LocalFolder, len(shadowFolders))
	for _, f := range shadowFolders {
		folderByName[f.Name] = f
	}

	fileByName := make(map[string]catalog.LocalFile, len(shadowFiles))
	for _, f := range shadowFiles {
		fileByName[f.Name] = f
	}

	var bags folderBags

	diskNames := make(map[string]struct{}, len(disk))

	for _, d := range disk {
		diskNames[d.name] = struct{}{}

		switch d.kind {
		case diskKindFolder:
			if existing, ok := folderByName[d.name]; ok {
				if existing.Inode == d.inode && existing.DeviceID == deviceIDString(d.deviceID) {
					bags.CommonFolders = append(bags.CommonFolders, CommonFolder{
						ID: existing.ID, Name: d.name, FSName: d.fsName, Inode: d.inode, DeviceID: d.deviceID,
					})
				} else {
					// Same name, different identity: deleted-then-new (a
					// directory was removed and something else created at
					// the same name), per spec.md §4.5 step 2.
					bags.DeletedFolders = append(bags.DeletedFolders, folderToDeleted(existing))
					bags.NewFolders = append(bags.NewFolders, diskToNewFolder(d, parentID))
				}
			} else {
				bags.NewFolders = append(bags.NewFolders, diskToNewFolder(d, parentID))
			}
		case diskKindFile:
			if existing, ok := fileByName[d.name]; ok {
				if existing.Inode == d.inode {
					if existing.Size != d.size || existing.Mtime != d.mtime {
						bags.ModifiedFiles = append(bags.ModifiedFiles, ModifiedFile{
							ID: existing.ID, Name: d.name, Size: d.size, Mtime: d.mtime, MtimeNative: d.mtimeNative,
						})
					}
				} else {
					bags.DeletedFiles = append(bags.DeletedFiles, fileToDeleted(existing))
					bags.NewFiles = append(bags.NewFiles, diskToNewFile(d, parentID))
				}
			} else {
				bags.NewFiles = append(bags.NewFiles, diskToNewFile(d, parentID))
			}
		}
	}

	for name, f := range folderByName {
		if _, ok := diskNames[name]; !ok {
			bags.DeletedFolders = append(bags.DeletedFolders, folderToDeleted(f))
		}
	}

	for name, f := range fileByName {
		if _, ok := diskNames[name]; !ok {
			bags.DeletedFiles = append(bags.DeletedFiles, fileToDeleted(f))
		}
	}

	return bags
}

func diskToNewFolder(d diskEntry, parentID sql.NullInt64) NewFolder {
	return NewFolder{
		ParentID: parentID, Name: d.name, FSName: d.fsName, Inode: d.inode, DeviceID: d.deviceID,
		Mtime: d.mtime, MtimeNative: d.mtimeNative,
	}
}

func diskToNewFile(d diskEntry, parentID sql.NullInt64) NewFile {
	return NewFile{
		ParentID: parentID, Name: d.name, Inode: d.inode, Size: d.size,
		Mtime: d.mtime, MtimeNative: d.mtimeNative,
	}
}

func folderToDeleted(f catalog.LocalFolder) DeletedFolder {
	return DeletedFolder{ID: f.ID, ParentID: f.LocalParentFolderID, Name: f.Name, Inode: f.Inode, FolderID: f.FolderID}
}

func fileToDeleted(f catalog.LocalFile) DeletedFile {
	return DeletedFile{
		ID: f.ID, ParentID: f.LocalParentFolderID, Name: f.Name, Inode: f.Inode,
		Size: f.Size, Mtime: f.Mtime, FileID: f.FileID,
	}
}

func deviceIDString(id uint64) string { return strconv.FormatUint(id, 10) }
