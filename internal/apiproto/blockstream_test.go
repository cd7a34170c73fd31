package apiproto

import (
	"bytes"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockStream_RoundTrip(t *testing.T) {
	h := BlockStreamHeader{FileSize: 10_000, BlockSize: 4096}
	assert.Equal(t, 3, h.BlockCount())

	blocks := make([]BlockChecksum, h.BlockCount())
	for i := range blocks {
		sum := sha1.Sum([]byte{byte(i)})
		blocks[i] = BlockChecksum{Adler: uint32(i + 1), SHA1: sum}
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBlockStream(&buf, h, blocks))

	gotHeader, gotBlocks, err := ReadBlockStream(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, gotHeader)
	assert.Equal(t, blocks, gotBlocks)
}

func TestBlockStreamHeader_BlockCount_ExactMultiple(t *testing.T) {
	h := BlockStreamHeader{FileSize: 8192, BlockSize: 4096}
	assert.Equal(t, 2, h.BlockCount())
}

func TestBlockStreamHeader_BlockCount_ZeroBlockSize(t *testing.T) {
	h := BlockStreamHeader{FileSize: 100, BlockSize: 0}
	assert.Equal(t, 0, h.BlockCount())
}
