package queue

import (
	"context"
	"fmt"
	"io"

	"github.com/brennanwright/syncd/internal/apiproto"
	"github.com/brennanwright/syncd/internal/governor"
	"github.com/brennanwright/syncd/internal/pool"
)

// Caller issues one RPC verb and returns the decoded response, or a
// classified error (internal/apiproto.Classify) if the server reports a
// non-zero result. It is the seam the worker's handlers are built against,
// so tests can inject a fake transport instead of a live connection.
type Caller interface {
	Call(ctx context.Context, verb string, params []apiproto.Param, body io.Reader, bodySize int64) (*apiproto.Response, error)
}

// rpcCaller is the production Caller: one request/response round trip over
// a pooled connection, governing any request body through the upload
// governor so large uploadfile/upload_write bodies are bandwidth-shaped
// exactly like any other upload transfer.
type rpcCaller struct {
	pool *pool.Pool
	gov  *governor.Governor
}

// NewRPCCaller builds the production Caller.
func NewRPCCaller(p *pool.Pool, gov *governor.Governor) Caller {
	return &rpcCaller{pool: p, gov: gov}
}

func (c *rpcCaller) Call(ctx context.Context, verb string, params []apiproto.Param, body io.Reader, bodySize int64) (*apiproto.Response, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: acquire connection for %s: %w", verb, err)
	}

	req := &apiproto.Request{Verb: verb, Params: params}

	if _, err := req.WriteTo(conn); err != nil {
		c.pool.ReleaseBad(conn)

		return nil, fmt.Errorf("queue: write %s frame: %w", verb, err)
	}

	if body != nil {
		if err := c.streamBody(ctx, conn, body, bodySize); err != nil {
			c.pool.ReleaseBad(conn)

			return nil, fmt.Errorf("queue: stream %s body: %w", verb, err)
		}
	}

	resp, err := apiproto.ReadResponse(conn)
	if err != nil {
		c.pool.ReleaseBad(conn)

		return nil, fmt.Errorf("queue: read %s response: %w", verb, err)
	}

	c.pool.Release(conn)

	if classErr := apiproto.Classify(verb, resp.Result); classErr != nil {
		return resp, classErr
	}

	return resp, nil
}

// streamBody copies r onto w in governor-gated chunks, recording every
// flushed chunk for the governor's smoothed-rate reporting. A single Read
// may return more bytes than the governor admits in one step, so the
// admitted-vs-read split is re-checked in an inner loop rather than ever
// discarding bytes already pulled from r.
func (c *rpcCaller) streamBody(ctx context.Context, w io.Writer, r io.Reader, size int64) error {
	buf := make([]byte, 64*1024)

	var sent int64

	for size < 0 || sent < size {
		n, readErr := r.Read(buf)

		off := 0
		for off < n {
			allowed, err := c.gov.AllowUpload(ctx, n-off)
			if err != nil {
				return err
			}

			if allowed == 0 {
				continue
			}

			if _, err := w.Write(buf[off : off+allowed]); err != nil {
				return err
			}

			c.gov.RecordUpload(int64(allowed))
			sent += int64(allowed)
			off += allowed
		}

		if readErr == io.EOF {
			return nil
		}

		if readErr != nil {
			return readErr
		}

		if n == 0 {
			return nil
		}
	}

	return nil
}
