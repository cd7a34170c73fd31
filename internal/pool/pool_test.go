package pool

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoListener starts a TCP listener that simply holds connections open
// (no echo needed for these tests) and returns its address plus a close
// function.
func echoListener(t *testing.T) (addr string, closeFn func(), conns chan net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	conns = make(chan net.Conn, 16)

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}

			conns <- c
		}
	}()

	return ln.Addr().String(), func() { _ = ln.Close() }, conns
}

func TestPool_AcquireDialsFresh(t *testing.T) {
	addr, closeLn, _ := echoListener(t)
	defer closeLn()

	p := New(addr, false, 4, time.Minute, testLogger())

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c)

	p.Release(c)
}

func TestPool_ReleaseThenAcquireReusesSocket(t *testing.T) {
	addr, closeLn, _ := echoListener(t)
	defer closeLn()

	p := New(addr, false, 4, time.Minute, testLogger())

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.Release(c1)

	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, c1, c2, "a released healthy socket should be handed back out before a fresh dial")
}

func TestPool_ReleaseBadAlwaysCloses(t *testing.T) {
	addr, closeLn, _ := echoListener(t)
	defer closeLn()

	p := New(addr, false, 4, time.Minute, testLogger())

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.ReleaseBad(c1)

	assert.Empty(t, p.cache)
}

func TestPool_SetServerClosesCachedSockets(t *testing.T) {
	addr, closeLn, _ := echoListener(t)
	defer closeLn()

	p := New(addr, false, 4, time.Minute, testLogger())

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.Release(c1)
	require.NotEmpty(t, p.cache)

	p.SetServer("example.invalid:443", true)
	assert.Empty(t, p.cache)
}

func TestPool_ReleaseAfterServerChangeCloses(t *testing.T) {
	addr, closeLn, _ := echoListener(t)
	defer closeLn()

	p := New(addr, false, 4, time.Minute, testLogger())

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.SetServer("example.invalid:443", true)
	p.Release(c1)

	assert.Empty(t, p.cache)
}

func TestPool_AcquireBlocksWhenExhausted(t *testing.T) {
	addr, closeLn, _ := echoListener(t)
	defer closeLn()

	p := New(addr, false, 1, time.Minute, testLogger())

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	assert.Error(t, err, "acquire should block (and eventually time out) when the cap is exhausted")

	p.Release(c1)
}

func TestPool_PeerClosedSocketIsNotReused(t *testing.T) {
	addr, closeLn, conns := echoListener(t)
	defer closeLn()

	p := New(addr, false, 4, time.Minute, testLogger())

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	server := <-conns
	require.NoError(t, server.Close())

	// Give the FIN time to arrive before the health check runs.
	time.Sleep(20 * time.Millisecond)

	p.Release(c1)

	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, c1, c2, "a socket whose peer closed must not be handed back out")
}
