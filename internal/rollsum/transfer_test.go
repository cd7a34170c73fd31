package rollsum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPlan_AllTransferWhenNoMatches(t *testing.T) {
	plan := BuildPlan(nil, 16, 40, 1<<20)

	assert.Equal(t, []Range{{Kind: ActionTransfer, LocalOffset: 0, Length: 40}}, plan)
}

func TestBuildPlan_SingleFullFileCopy(t *testing.T) {
	matches := []Match{{LocalOffset: 0, RemoteBlock: 0}, {LocalOffset: 16, RemoteBlock: 1}}

	plan := BuildPlan(matches, 16, 32, 1<<20)

	assert.Equal(t, []Range{
		{Kind: ActionCopy, LocalOffset: 0, Length: 32, SourceOffset: 0},
	}, plan)
}

func TestBuildPlan_GapsBecomeTransfers(t *testing.T) {
	// Blocks 0 and 2 match (remote blocks 5 and 6, contiguous source); block
	// 1 is a gap that must be transferred.
	matches := []Match{
		{LocalOffset: 0, RemoteBlock: 5},
		{LocalOffset: 32, RemoteBlock: 6},
	}

	plan := BuildPlan(matches, 16, 48, 1<<20)

	assert.Equal(t, []Range{
		{Kind: ActionCopy, LocalOffset: 0, Length: 16, SourceOffset: 80},
		{Kind: ActionTransfer, LocalOffset: 16, Length: 16},
		{Kind: ActionCopy, LocalOffset: 32, Length: 16, SourceOffset: 96},
	}, plan)
}

func TestBuildPlan_CoalescesContiguousCopies(t *testing.T) {
	matches := []Match{
		{LocalOffset: 0, RemoteBlock: 10},
		{LocalOffset: 16, RemoteBlock: 11},
		{LocalOffset: 32, RemoteBlock: 12},
	}

	plan := BuildPlan(matches, 16, 48, 1<<20)

	assert.Equal(t, []Range{
		{Kind: ActionCopy, LocalOffset: 0, Length: 48, SourceOffset: 160},
	}, plan)
}

func TestBuildPlan_NonContiguousSourceDoesNotCoalesce(t *testing.T) {
	matches := []Match{
		{LocalOffset: 0, RemoteBlock: 10},
		{LocalOffset: 16, RemoteBlock: 20}, // not remote block 11, so no merge
	}

	plan := BuildPlan(matches, 16, 32, 1<<20)

	assert.Equal(t, []Range{
		{Kind: ActionCopy, LocalOffset: 0, Length: 16, SourceOffset: 160},
		{Kind: ActionCopy, LocalOffset: 16, Length: 16, SourceOffset: 320},
	}, plan)
}

func TestBuildPlan_SplitsOversizedCopyRange(t *testing.T) {
	matches := []Match{
		{LocalOffset: 0, RemoteBlock: 0},
		{LocalOffset: 16, RemoteBlock: 1},
		{LocalOffset: 32, RemoteBlock: 2},
	}

	plan := BuildPlan(matches, 16, 48, 20)

	assert.Equal(t, []Range{
		{Kind: ActionCopy, LocalOffset: 0, Length: 20, SourceOffset: 0},
		{Kind: ActionCopy, LocalOffset: 20, Length: 20, SourceOffset: 20},
		{Kind: ActionCopy, LocalOffset: 40, Length: 8, SourceOffset: 40},
	}, plan)
}

func TestBuildPlan_UnalignedMatchIgnored(t *testing.T) {
	// A match not on a blockSize boundary (as Scan can transiently report
	// before the first confirmed boundary match) is not part of the
	// block-grid plan and is covered by a transfer instead.
	matches := []Match{{LocalOffset: 5, RemoteBlock: 0}}

	plan := BuildPlan(matches, 16, 16, 1<<20)

	assert.Equal(t, []Range{{Kind: ActionTransfer, LocalOffset: 0, Length: 16}}, plan)
}
