// Package pool maintains a bounded set of persistent TCP/TLS connections to
// the API host, reused across RPC requests. Sockets are cached keyed by the
// currently selected API server, so swapping servers never hands a stale
// socket back to a caller expecting the new host.
package pool

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Conn is a pooled socket plus the metadata needed to validate it before
// reuse and to know where to file it back on release.
type Conn struct {
	net.Conn
	server string
	useTLS bool
	cached time.Time
}

// Pool is a bounded, keyed cache of persistent connections to one logical
// API host at a time. The concurrency semaphore caps active+cached sockets
// combined, matching the "acquire blocks when exhausted" contract — a
// cached socket still counts against the cap until it is either reused or
// evicted by the TTL sweep.
type Pool struct {
	mu     sync.Mutex
	cache  []*Conn
	server string
	useTLS bool
	ttl    time.Duration
	dialer net.Dialer
	sem    *semaphore.Weighted
	logger *slog.Logger

	// prewarm holds in-flight background dials started by Prepare, keyed
	// by server. A finished dial is deposited in cache; Acquire does not
	// read these channels and picks up a prewarmed socket only from cache.
	prewarm map[string]chan *Conn
}

// New creates a Pool capped at maxConns concurrent sockets (active plus
// cached), caching released sockets for ttl before they are considered
// stale.
func New(server string, useTLS bool, maxConns int64, ttl time.Duration, logger *slog.Logger) *Pool {
	return &Pool{
		server:  server,
		useTLS:  useTLS,
		ttl:     ttl,
		sem:     semaphore.NewWeighted(maxConns),
		logger:  logger,
		prewarm: make(map[string]chan *Conn),
	}
}

// SetServer replaces the active API server. Cached sockets dialed to the
// old server are closed immediately rather than handed out to a caller
// expecting the new host; in-flight acquires against the old server are
// unaffected (they already hold their socket).
func (p *Pool) SetServer(server string, useTLS bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.server == server && p.useTLS == useTLS {
		return
	}

	for _, c := range p.cache {
		_ = c.Conn.Close()
		p.sem.Release(1)
	}

	p.cache = nil
	p.server = server
	p.useTLS = useTLS
}

// Acquire returns a healthy socket to the active server, blocking until the
// concurrency semaphore admits a new connection (reused or freshly dialed).
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("pool: acquire semaphore: %w", err)
	}

	if c := p.takeCached(); c != nil {
		return c, nil
	}

	c, err := p.dial(ctx)
	if err != nil {
		p.sem.Release(1)

		return nil, fmt.Errorf("pool: network exception dialing %s: %w", p.server, err)
	}

	return c, nil
}

// takeCached pops a cached socket, discarding (and releasing its semaphore
// slot) any that fail the health check: peer closed, TLS flag mismatch, or
// pending readable bytes (a keep-alive connection must be perfectly idle —
// any buffered bytes mean the request/response stream desynced).
func (p *Pool) takeCached() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.cache) > 0 {
		c := p.cache[len(p.cache)-1]
		p.cache = p.cache[:len(p.cache)-1]

		if p.healthy(c) {
			return c
		}

		_ = c.Conn.Close()
		p.sem.Release(1)
	}

	return nil
}

func (p *Pool) healthy(c *Conn) bool {
	if c.server != p.server || c.useTLS != p.useTLS {
		return false
	}

	if time.Since(c.cached) > p.ttl {
		return false
	}

	return !hasPendingBytes(c.Conn) && !isClosed(c.Conn)
}

func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	server := p.server
	useTLS := p.useTLS

	conn, err := p.dialer.DialContext(ctx, "tcp", server)
	if err != nil {
		return nil, err
	}

	if useTLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: hostOnly(server), MinVersion: tls.VersionTLS12})

		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()

			return nil, fmt.Errorf("tls handshake: %w", err)
		}

		conn = tlsConn
	}

	return &Conn{Conn: conn, server: server, useTLS: useTLS}, nil
}

// Release returns a healthy socket to the cache with a fresh TTL clock. If
// the configured server has changed since the socket was acquired, it is
// closed instead of cached.
func (p *Pool) Release(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.server != p.server || c.useTLS != p.useTLS {
		_ = c.Conn.Close()
		p.sem.Release(1)

		return
	}

	c.cached = time.Now()
	p.cache = append(p.cache, c)
}

// ReleaseBad always closes the socket rather than caching it, used after
// any protocol error or short read/write on the connection.
func (p *Pool) ReleaseBad(c *Conn) {
	_ = c.Conn.Close()
	p.sem.Release(1)
}

// Prepare pre-warms one connection in the background when the cache is
// empty, so the next Acquire is likely to find a ready socket instead of
// paying full dial latency on the request's critical path.
func (p *Pool) Prepare(ctx context.Context) {
	p.mu.Lock()

	if len(p.cache) > 0 {
		p.mu.Unlock()

		return
	}

	server := p.server
	if _, inFlight := p.prewarm[server]; inFlight {
		p.mu.Unlock()

		return
	}

	ch := make(chan *Conn, 1)
	p.prewarm[server] = ch
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.prewarm, server)
			p.mu.Unlock()
		}()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			close(ch)

			return
		}

		c, err := p.dial(ctx)
		if err != nil {
			p.sem.Release(1)
			p.logger.Warn("pool: prewarm dial failed", slog.String("server", server), slog.Any("error", err))
			close(ch)

			return
		}

		p.mu.Lock()
		c.cached = time.Now()
		p.cache = append(p.cache, c)
		p.mu.Unlock()

		ch <- c
	}()
}

func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}

	return host
}
