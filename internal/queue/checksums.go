package queue

import (
	"context"
	"fmt"

	"github.com/brennanwright/syncd/internal/apiproto"
	"github.com/brennanwright/syncd/internal/governor"
	"github.com/brennanwright/syncd/internal/httpfetch"
)

// BlockStreamFetcher retrieves the block-checksum stream a getchecksumlink
// result points at, given the hosts and path the ChecksumLink names.
// upload_blockchecksums results are read from the RPC response instead.
type BlockStreamFetcher interface {
	Fetch(ctx context.Context, link apiproto.ChecksumLink) (apiproto.BlockStreamHeader, []apiproto.BlockChecksum, error)
}

// httpBlockStreamFetcher fetches a block-checksum stream over the minimal
// HTTP client in internal/httpfetch, governing the read side exactly like
// any other download transfer.
type httpBlockStreamFetcher struct {
	client *httpfetch.Client
	gov    *governor.Governor
}

// NewBlockStreamFetcher builds the production BlockStreamFetcher.
func NewBlockStreamFetcher(client *httpfetch.Client, gov *governor.Governor) BlockStreamFetcher {
	return &httpBlockStreamFetcher{client: client, gov: gov}
}

func (f *httpBlockStreamFetcher) Fetch(ctx context.Context, link apiproto.ChecksumLink) (apiproto.BlockStreamHeader, []apiproto.BlockChecksum, error) {
	conn, _, _, err := f.client.ConnectMultihost(ctx, link.Hosts, link.Path, 0, 0, map[string]string{"Dwltag": link.DwlTag})
	if err != nil {
		return apiproto.BlockStreamHeader{}, nil, fmt.Errorf("queue: fetch block stream: %w", err)
	}

	r := &governedConnReader{ctx: ctx, conn: conn, gov: f.gov}

	hdr, blocks, err := apiproto.ReadBlockStream(r)
	if cached, ok := conn.Close(); ok {
		_ = cached // pooling the raw socket for HTTP fetches is out of scope here; discard the reuse hint.
	}

	if err != nil {
		return apiproto.BlockStreamHeader{}, nil, fmt.Errorf("queue: decode block stream: %w", err)
	}

	return hdr, blocks, nil
}

// governedConnReader adapts httpfetch.Conn's ReadAll(n) method to io.Reader,
// governing each read through the download governor.
type governedConnReader struct {
	ctx  context.Context
	conn *httpfetch.Conn
	gov  *governor.Governor
}

func (r *governedConnReader) Read(p []byte) (int, error) {
	allowed, err := r.gov.AllowDownload(r.ctx, len(p))
	if err != nil {
		return 0, err
	}

	b, err := r.conn.ReadAll(allowed)
	n := copy(p, b)

	r.gov.RecordDownload(int64(n))

	if err != nil {
		return n, err
	}

	if n == 0 {
		return 0, fmt.Errorf("queue: block stream connection closed early")
	}

	return n, nil
}
