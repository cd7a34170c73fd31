package scanner

import "database/sql"

// NewFolder describes a directory present on disk but not yet in the
// catalog. Name is NFC-normalized for catalog storage; FSName is the
// original on-disk name, needed to actually open the directory on a
// filesystem (e.g. macOS HFS+) that produces NFD.
type NewFolder struct {
	ParentID    sql.NullInt64
	Name        string
	FSName      string
	Inode       uint64
	DeviceID    uint64
	Mtime       int64
	MtimeNative int64
}

// DeletedFolder describes a catalog folder row no longer present on disk.
type DeletedFolder struct {
	ID       int64
	ParentID sql.NullInt64
	Name     string
	Inode    uint64
	FolderID sql.NullString
}

// NewFile describes a regular file present on disk but not yet in the
// catalog.
type NewFile struct {
	ParentID    sql.NullInt64
	Name        string
	Inode       uint64
	Size        int64
	Mtime       int64
	MtimeNative int64
}

// DeletedFile describes a catalog file row no longer present on disk.
type DeletedFile struct {
	ID       int64
	ParentID sql.NullInt64
	Name     string
	Inode    uint64
	Size     int64
	Mtime    int64
	FileID   sql.NullString
}

// ModifiedFile describes a catalog file row whose on-disk inode still
// matches but whose size or mtime no longer matches the recorded values.
type ModifiedFile struct {
	ID          int64
	Name        string
	Size        int64
	Mtime       int64
	MtimeNative int64
}

// CommonFolder is a folder present (by name) on both sides with matching
// kind, to recurse into regardless of whether its stat changed (folder
// metadata changes don't by themselves trigger re-upload of children).
type CommonFolder struct {
	ID       int64
	Name     string
	FSName   string
	Inode    uint64
	DeviceID uint64
}

// folderBags holds the one-level diff result for a single directory,
// before rename detection has paired any of its deleted/new entries.
type folderBags struct {
	NewFolders     []NewFolder
	DeletedFolders []DeletedFolder
	NewFiles       []NewFile
	DeletedFiles   []DeletedFile
	ModifiedFiles  []ModifiedFile
	CommonFolders  []CommonFolder
}
