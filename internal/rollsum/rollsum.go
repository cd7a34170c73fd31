// Package rollsum implements the rolling-checksum / content-defined
// matching engine: given a remote (or prior-upload) file's block-checksum
// stream, find which byte ranges of a local file already exist server-side
// so they need not be retransmitted.
//
// The rolling Adler-32 accumulator is github.com/chmduquesne/rollinghash's
// adler32 implementation; the block hash table (open addressing, prime
// sizing, MAX_ADLER_COLL) is domain-specific and hand-written in
// hashtable.go, grounded on pclsync's pnetlibs.c.
package rollsum

import (
	"crypto/sha1" //nolint:gosec // block digest matches the wire protocol, not used for security
	"fmt"
	"io"

	rollingadler32 "github.com/chmduquesne/rollinghash/adler32"

	"github.com/brennanwright/syncd/internal/apiproto"
)

// Sha1Size is the length in bytes of a block's SHA-1 digest.
const Sha1Size = 20

// BlockChecksum is one (Adler32, SHA-1) pair for a fixed-size block.
type BlockChecksum struct {
	Adler uint32
	SHA1  [Sha1Size]byte
}

// FromWire converts the apiproto wire representation of a block-checksum
// stream into the package's own BlockChecksum slice.
func FromWire(blocks []apiproto.BlockChecksum) []BlockChecksum {
	out := make([]BlockChecksum, len(blocks))
	for i, b := range blocks {
		out[i] = BlockChecksum{Adler: b.Adler, SHA1: b.SHA1}
	}

	return out
}

// minRingBuffer is the minimum ring buffer size used by Scan, matching
// max(2*blocksize, 64KiB) from the scanning algorithm.
const minRingBuffer = 64 * 1024

// Match pairs a local byte offset with the remote block index whose content
// it reproduces.
type Match struct {
	LocalOffset int64
	RemoteBlock int32
}

// Scan reads r (a local file opened by the caller) and reports every
// position where a window of blockSize bytes matches a block already
// present in table. On a confirmed match, the matched block and every
// block chained to it by identical (Adler, SHA-1) content is removed from
// table, so the same remote range is never claimed twice. The scan then
// jumps forward by blockSize - (position mod blockSize) bytes to avoid
// heavily overlapping matches, reseeding the rolling checksum from scratch
// at the new position.
//
// The Adler-32 accumulator is seeded once per window and then rolled one
// byte at a time via roller.Roll, which the chmduquesne/rollinghash
// implementation evaluates in O(1) — no per-byte rehash of the whole
// window. The window's raw bytes are only re-read (for the SHA-1 confirm
// step) on an Adler hit, which is rare relative to the scan length.
//
// Reads go through one bufio.Reader of max(2*blockSize, 64KiB) (see
// ringReader) rather than pnetlibs.c's half-buffer double-read ring; it
// likewise avoids a read per byte, keeping the scan I/O-bound rather than
// syscall-bound on large files.
func Scan(r io.Reader, blockSize uint32, table *HashTable) ([]Match, error) {
	if blockSize == 0 {
		return nil, fmt.Errorf("rollsum: blockSize must be > 0")
	}

	ring := newRingReader(r, ringSizeFor(blockSize))

	var matches []Match

	pos := int64(0)

	window, ok, err := ring.peekWindow(int(blockSize))
	if err != nil {
		return matches, err
	}

	if !ok {
		return matches, nil // fewer than blockSize bytes in the whole file
	}

	roller := rollingadler32.New()
	if _, err := roller.Write(window); err != nil {
		return matches, fmt.Errorf("rollsum: seeding adler window: %w", err)
	}

	for {
		adler := roller.Sum32()

		if idx := table.Lookup(adler); idx >= 0 {
			window, ok, err := ring.peekWindow(int(blockSize))
			if err != nil {
				return matches, err
			}

			if !ok {
				break
			}

			sum := sha1.Sum(window) //nolint:gosec

			if confirmed := table.LookupFull(adler, sum); confirmed >= 0 {
				matches = append(matches, Match{LocalOffset: pos, RemoteBlock: confirmed})
				table.RemoveChain(confirmed)

				skip := int64(blockSize) - pos%int64(blockSize)
				if err := ring.advance(int(skip)); err != nil {
					return matches, err
				}

				pos += skip

				newWindow, ok, err := ring.peekWindow(int(blockSize))
				if err != nil {
					return matches, err
				}

				if !ok {
					break
				}

				roller.Reset()
				if _, err := roller.Write(newWindow); err != nil {
					return matches, fmt.Errorf("rollsum: reseeding adler window: %w", err)
				}

				continue
			}
		}

		incoming, ok, err := ring.peekAt(int(blockSize))
		if err != nil {
			return matches, err
		}

		if !ok {
			break // fewer than blockSize bytes would remain after rolling forward
		}

		roller.Roll(incoming)

		if err := ring.advance(1); err != nil {
			return matches, err
		}

		pos++
	}

	return matches, nil
}

func ringSizeFor(blockSize uint32) int {
	size := int(2 * blockSize)
	if size < minRingBuffer {
		size = minRingBuffer
	}

	return size
}
