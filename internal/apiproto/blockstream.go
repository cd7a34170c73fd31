package apiproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Block-checksum stream layout: a 24-byte header (filesize u64, blocksize
// u32, 12 reserved bytes), followed by blockcount records of
// (SHA1[20], Adler32 u32). This is the exact wire shape returned by
// upload_blockchecksums and by the getchecksumlink download target.
const (
	headerSize    = 24
	sha1Size      = 20
	adlerSize     = 4
	blockRecordSz = sha1Size + adlerSize
)

// BlockChecksum is one (Adler32, SHA-1) pair for a fixed-size block, in
// stream order.
type BlockChecksum struct {
	Adler uint32
	SHA1  [sha1Size]byte
}

// BlockStreamHeader describes the file the block stream covers.
type BlockStreamHeader struct {
	FileSize  uint64
	BlockSize uint32
}

// BlockCount returns ceil(FileSize / BlockSize), the number of block
// records that follow the header.
func (h BlockStreamHeader) BlockCount() int {
	if h.BlockSize == 0 {
		return 0
	}

	return int((h.FileSize + uint64(h.BlockSize) - 1) / uint64(h.BlockSize))
}

// ReadBlockStream decodes a full block-checksum stream from r.
func ReadBlockStream(r io.Reader) (BlockStreamHeader, []BlockChecksum, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return BlockStreamHeader{}, nil, fmt.Errorf("reading block stream header: %w", err)
	}

	h := BlockStreamHeader{
		FileSize:  binary.BigEndian.Uint64(hdr[0:8]),
		BlockSize: binary.BigEndian.Uint32(hdr[8:12]),
	}

	count := h.BlockCount()
	blocks := make([]BlockChecksum, count)

	rec := make([]byte, blockRecordSz)

	for i := range blocks {
		if _, err := io.ReadFull(r, rec); err != nil {
			return h, nil, fmt.Errorf("reading block record %d: %w", i, err)
		}

		copy(blocks[i].SHA1[:], rec[:sha1Size])
		blocks[i].Adler = binary.BigEndian.Uint32(rec[sha1Size:])
	}

	return h, blocks, nil
}

// WriteBlockStream encodes a block-checksum stream to w, mirroring the wire
// format ReadBlockStream parses. Used by tests and by any in-process
// fixture that stands in for a real server response.
func WriteBlockStream(w io.Writer, h BlockStreamHeader, blocks []BlockChecksum) error {
	var hdr [headerSize]byte
	binary.BigEndian.PutUint64(hdr[0:8], h.FileSize)
	binary.BigEndian.PutUint32(hdr[8:12], h.BlockSize)

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing block stream header: %w", err)
	}

	rec := make([]byte, blockRecordSz)

	for i := range blocks {
		copy(rec[:sha1Size], blocks[i].SHA1[:])
		binary.BigEndian.PutUint32(rec[sha1Size:], blocks[i].Adler)

		if _, err := w.Write(rec); err != nil {
			return fmt.Errorf("writing block record %d: %w", i, err)
		}
	}

	return nil
}
