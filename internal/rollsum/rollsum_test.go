package rollsum

import (
	"bytes"
	"crypto/sha1" //nolint:gosec
	"testing"

	rollingadler32 "github.com/chmduquesne/rollinghash/adler32"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockChecksums(t *testing.T, data []byte, blockSize uint32) []BlockChecksum {
	t.Helper()

	var out []BlockChecksum

	for off := 0; off+int(blockSize) <= len(data); off += int(blockSize) {
		window := data[off : off+int(blockSize)]

		roller := rollingadler32.New()
		_, err := roller.Write(window)
		require.NoError(t, err)

		sum := sha1.Sum(window) //nolint:gosec
		out = append(out, BlockChecksum{Adler: roller.Sum32(), SHA1: sum})
	}

	return out
}

func TestScan_FindsIdenticalFile(t *testing.T) {
	const blockSize = 16

	data := []byte("0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ!@")
	blocks := blockChecksums(t, data, blockSize)
	table := NewHashTable(blocks)

	matches, err := Scan(bytes.NewReader(data), blockSize, table)
	require.NoError(t, err)
	require.Len(t, matches, len(blocks))

	for i, m := range matches {
		assert.Equal(t, int64(i*blockSize), m.LocalOffset)
		assert.Equal(t, int32(i), m.RemoteBlock)
	}
}

func TestScan_NoMatchesOnDisjointContent(t *testing.T) {
	const blockSize = 16

	remote := bytes.Repeat([]byte("A"), 64)
	local := bytes.Repeat([]byte("B"), 64)

	blocks := blockChecksums(t, remote, blockSize)
	table := NewHashTable(blocks)

	matches, err := Scan(bytes.NewReader(local), blockSize, table)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestScan_ConsumesAllChainedDuplicatesOnFirstMatch(t *testing.T) {
	const blockSize = 8

	// Remote has the same block content twice; local repeats it three
	// times. The first local match consumes the entire duplicate-content
	// chain, so the remaining two local occurrences become unmatched.
	remoteBlock := []byte("AAAAAAAA")
	remote := append(append([]byte{}, remoteBlock...), remoteBlock...)
	local := bytes.Repeat(remoteBlock, 3)

	blocks := blockChecksums(t, remote, blockSize)
	table := NewHashTable(blocks)

	matches, err := Scan(bytes.NewReader(local), blockSize, table)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(0), matches[0].LocalOffset)
	assert.Contains(t, []int32{0, 1}, matches[0].RemoteBlock)
}

func TestScan_ShortTrailingBytesNeverMatch(t *testing.T) {
	const blockSize = 16

	data := bytes.Repeat([]byte("x"), 16)
	tail := append(append([]byte{}, data...), []byte("short")...)

	blocks := blockChecksums(t, data, blockSize)
	table := NewHashTable(blocks)

	matches, err := Scan(bytes.NewReader(tail), blockSize, table)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(0), matches[0].LocalOffset)
}

// TestRollingAdler_RollEqualsFreshWindow checks the rolling-checksum law:
// rolling a window forward by one byte yields the same Adler32 as seeding
// fresh over the shifted window.
func TestRollingAdler_RollEqualsFreshWindow(t *testing.T) {
	const windowSize = 12

	data := []byte("the quick brown fox jumps over the lazy dog 0123456789")

	roller := rollingadler32.New()
	_, err := roller.Write(data[:windowSize])
	require.NoError(t, err)

	for i := 0; i+windowSize+1 <= len(data); i++ {
		fresh := rollingadler32.New()
		_, err := fresh.Write(data[i+1 : i+1+windowSize])
		require.NoError(t, err)

		roller.Roll(data[i+windowSize])

		assert.Equal(t, fresh.Sum32(), roller.Sum32(), "mismatch rolling past offset %d", i)
	}
}

func TestHashTable_LookupWithinProbeBound(t *testing.T) {
	blocks := make([]BlockChecksum, 200)
	for i := range blocks {
		sum := sha1.Sum([]byte{byte(i), byte(i >> 8)}) //nolint:gosec
		blocks[i] = BlockChecksum{Adler: uint32(i * 97), SHA1: sum}
	}

	table := NewHashTable(blocks)

	for i, b := range blocks {
		idx := table.LookupFull(b.Adler, b.SHA1)
		require.GreaterOrEqualf(t, idx, int32(0), "block %d not found", i)
	}
}

func TestHashTable_RemoveThenLookupMisses(t *testing.T) {
	blocks := make([]BlockChecksum, 50)
	for i := range blocks {
		sum := sha1.Sum([]byte{byte(i)}) //nolint:gosec
		blocks[i] = BlockChecksum{Adler: uint32(i*13 + 1), SHA1: sum}
	}

	table := NewHashTable(blocks)

	table.Remove(10)
	assert.Equal(t, int32(-1), table.LookupFull(blocks[10].Adler, blocks[10].SHA1))

	for i, b := range blocks {
		if i == 10 {
			continue
		}

		idx := table.LookupFull(b.Adler, b.SHA1)
		assert.GreaterOrEqualf(t, idx, int32(0), "block %d missing after unrelated remove", i)
	}
}

func TestHashTable_RemoveAllThenEmpty(t *testing.T) {
	blocks := make([]BlockChecksum, 30)
	for i := range blocks {
		sum := sha1.Sum([]byte{byte(i)}) //nolint:gosec
		blocks[i] = BlockChecksum{Adler: uint32(i), SHA1: sum}
	}

	table := NewHashTable(blocks)

	for i := range blocks {
		table.Remove(int32(i))
	}

	for _, b := range blocks {
		assert.Equal(t, int32(-1), table.LookupFull(b.Adler, b.SHA1))
	}
}

func TestHashTable_RemoveChainRemovesAllDuplicates(t *testing.T) {
	dup := sha1.Sum([]byte("dup")) //nolint:gosec
	other := sha1.Sum([]byte("other")) //nolint:gosec

	blocks := []BlockChecksum{
		{Adler: 42, SHA1: dup},
		{Adler: 42, SHA1: dup},
		{Adler: 42, SHA1: dup},
		{Adler: 99, SHA1: other},
	}

	table := NewHashTable(blocks)

	table.RemoveChain(0)

	assert.Equal(t, int32(-1), table.LookupFull(42, dup))
	assert.GreaterOrEqual(t, table.LookupFull(99, other), int32(0))
}
