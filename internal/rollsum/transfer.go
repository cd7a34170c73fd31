package rollsum

import "sort"

// ActionKind distinguishes a coalesced range that can be server-side copied
// from one that must be streamed from the client.
type ActionKind int

const (
	// ActionTransfer sends this byte range from the local client.
	ActionTransfer ActionKind = iota
	// ActionCopy reuses bytes already known to the server (or a prior
	// upload), via upload_writefromfile / upload_writefromupload.
	ActionCopy
)

// Range is one coalesced segment of the transfer plan: a contiguous run of
// local-file bytes [LocalOffset, LocalOffset+Length), either copied from
// SourceOffset in the matched remote block stream or transferred raw.
type Range struct {
	Kind         ActionKind
	LocalOffset  int64
	Length       int64
	SourceOffset int64 // meaningful only when Kind == ActionCopy
}

// BuildPlan turns the block-aligned matches found by Scan into a coalesced
// transfer plan covering [0, fileSize). Gaps between matches (and any
// non-block-aligned match, which Scan only produces transiently before a
// confirmed boundary match) become ActionTransfer ranges. Adjacent
// same-kind blocks with contiguous source offsets are merged into one
// Range. Any copy range larger than maxCopyFromReq is split so the
// server-side per-request copy budget (PSYNC_MAX_COPY_FROM_REQ) is
// respected.
func BuildPlan(matches []Match, blockSize uint32, fileSize int64, maxCopyFromReq int64) []Range {
	aligned := make(map[int64]int32, len(matches))

	for _, m := range matches {
		if m.LocalOffset%int64(blockSize) == 0 {
			aligned[m.LocalOffset] = m.RemoteBlock
		}
	}

	offsets := make([]int64, 0, len(aligned))
	for off := range aligned {
		offsets = append(offsets, off)
	}

	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	var raw []Range

	pos := int64(0)

	for _, off := range offsets {
		if off > pos {
			raw = append(raw, Range{Kind: ActionTransfer, LocalOffset: pos, Length: off - pos})
		}

		length := int64(blockSize)
		if off+length > fileSize {
			length = fileSize - off
		}

		raw = append(raw, Range{
			Kind:         ActionCopy,
			LocalOffset:  off,
			Length:       length,
			SourceOffset: int64(aligned[off]) * int64(blockSize),
		})

		pos = off + length
	}

	if pos < fileSize {
		raw = append(raw, Range{Kind: ActionTransfer, LocalOffset: pos, Length: fileSize - pos})
	}

	return splitOversizedCopies(coalesce(raw), maxCopyFromReq)
}

// coalesce merges adjacent ranges of the same kind whose source is
// contiguous (for ActionCopy, SourceOffset must continue; ActionTransfer
// ranges always merge since the client streams them in one pass anyway).
func coalesce(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}

	out := make([]Range, 0, len(ranges))
	cur := ranges[0]

	for _, r := range ranges[1:] {
		if cur.Kind == r.Kind && contiguous(cur, r) {
			cur.Length += r.Length

			continue
		}

		out = append(out, cur)
		cur = r
	}

	out = append(out, cur)

	return out
}

func contiguous(a, b Range) bool {
	if a.LocalOffset+a.Length != b.LocalOffset {
		return false
	}

	if a.Kind == ActionCopy {
		return a.SourceOffset+a.Length == b.SourceOffset
	}

	return true
}

// splitOversizedCopies splits any ActionCopy range longer than max into
// multiple ranges, each respecting the server's per-request copy budget.
// ActionTransfer ranges are left alone here; the queue package chunks them
// to its own upload_write request-size bound before dispatch.
func splitOversizedCopies(ranges []Range, maxCopyFromReq int64) []Range {
	if maxCopyFromReq <= 0 {
		return ranges
	}

	out := make([]Range, 0, len(ranges))

	for _, r := range ranges {
		if r.Kind != ActionCopy || r.Length <= maxCopyFromReq {
			out = append(out, r)

			continue
		}

		remaining := r.Length
		localOff := r.LocalOffset
		srcOff := r.SourceOffset

		for remaining > 0 {
			chunk := maxCopyFromReq
			if remaining < chunk {
				chunk = remaining
			}

			out = append(out, Range{
				Kind:         ActionCopy,
				LocalOffset:  localOff,
				Length:       chunk,
				SourceOffset: srcOff,
			})

			localOff += chunk
			srcOff += chunk
			remaining -= chunk
		}
	}

	return out
}
