package apiproto

// Command verbs invoked by the core, per the wire protocol's externally
// visible contract. Kept as named constants rather than inline string
// literals so callers and tests share one source of truth.
const (
	VerbUploadFile             = "uploadfile"
	VerbUploadCreate           = "upload_create"
	VerbUploadWrite            = "upload_write"
	VerbUploadWriteFromFile    = "upload_writefromfile"
	VerbUploadWriteFromUpload  = "upload_writefromupload"
	VerbUploadInfo             = "upload_info"
	VerbUploadBlockChecksums   = "upload_blockchecksums"
	VerbUploadSave             = "upload_save"
	VerbUploadDelete           = "upload_delete"
	VerbGetChecksumLink        = "getchecksumlink"
	VerbChecksumFile           = "checksumfile"
	VerbCreateFolderIfNotExist = "createfolderifnotexists"
	VerbRenameFile             = "renamefile"
	VerbRenameFolder           = "renamefolder"
	VerbDeleteFile             = "deletefile"
	VerbDeleteFolderRecursive  = "deletefolderrecursive"
	VerbGetFilesByChecksum     = "getfilesbychecksum"
	VerbCopyFile               = "copyfile"
	VerbListRevisions          = "listrevisions"
)

// Revision describes one historic hash of a file returned by listrevisions.
// No code path calls listrevisions, and internal/catalog's filerevision
// cache is not filled from it.
type Revision struct {
	FileID uint64
	Hash   uint64
	CTime  int64
	Size   uint64
}

// ChecksumLink is the decoded result of getchecksumlink: download hosts plus
// the path and tag used to fetch the block-checksum stream over HTTP.
type ChecksumLink struct {
	Hosts  []string
	Path   string
	DwlTag string
}
