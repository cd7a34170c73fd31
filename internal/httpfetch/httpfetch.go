// Package httpfetch implements a minimal HTTP/1.1 client with keep-alive,
// ranged GET, and multi-host failover, used for payload transfer (block
// checksum streams, upload/download bodies). This is distinct from the
// binary RPC protocol in internal/apiproto, which the API host speaks for
// everything else.
package httpfetch

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// Conn is one HTTP/1.1 connection, buffered so header lines parsed by
// connect remain available to later ReadAll calls.
type Conn struct {
	netConn   net.Conn
	reader    *bufio.Reader
	host      string
	keepalive int // seconds from Keep-Alive: timeout=N, 0 if absent/close
	remaining int64
}

// Response is the parsed response line and headers of one request.
type Response struct {
	StatusCode    int
	ContentLength int64 // -1 if absent
	Keepalive     int   // seconds; 0 means the server did not advertise keep-alive
	Header        textproto.MIMEHeader
}

// Client dials HTTP(S) connections on demand; it does not itself cache
// sockets, and ConnectMultihost simply dials each host in turn.
type Client struct {
	dialer    net.Dialer
	useTLS    bool
	keepalive int
}

// NewClient creates a Client. keepaliveTimeout is stored on the Client but
// not consulted: whether a connection is reusable depends only on the
// server's Keep-Alive: timeout=N header (see Conn.Close).
func NewClient(useTLS bool, keepaliveTimeout time.Duration) *Client {
	return &Client{useTLS: useTLS, keepalive: int(keepaliveTimeout.Seconds())}
}

// Connect dials host, sends a GET (optionally ranged) for path with
// extraHeaders, and consumes the response line and headers into conn's
// internal buffer (ReadAll callers never see them). Returns an
// error for any non-2xx status.
func (c *Client) Connect(ctx context.Context, host, path string, rangeFrom, rangeTo int64, extraHeaders map[string]string) (*Conn, *Response, error) {
	netConn, err := c.dial(ctx, host)
	if err != nil {
		return nil, nil, fmt.Errorf("httpfetch: dial %s: %w", host, err)
	}

	conn := &Conn{netConn: netConn, reader: bufio.NewReader(netConn), host: host}

	resp, err := conn.sendRequest(path, rangeFrom, rangeTo, extraHeaders)
	if err != nil {
		_ = netConn.Close()

		return nil, nil, err
	}

	return conn, resp, nil
}

// ConnectMultihost tries each host in order, returning the first successful
// connection. Each attempt is a fresh Connect; no cached or prewarmed
// sockets are consulted.
func (c *Client) ConnectMultihost(ctx context.Context, hosts []string, path string, rangeFrom, rangeTo int64, extraHeaders map[string]string) (*Conn, string, *Response, error) {
	var lastErr error

	for _, host := range hosts {
		conn, resp, err := c.Connect(ctx, host, path, rangeFrom, rangeTo, extraHeaders)
		if err == nil {
			return conn, host, resp, nil
		}

		lastErr = err
	}

	return nil, "", nil, fmt.Errorf("httpfetch: all hosts failed, last error: %w", lastErr)
}

func (c *Client) dial(ctx context.Context, host string) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, err
	}

	if !c.useTLS {
		return conn, nil
	}

	serverName := host
	if h, _, splitErr := net.SplitHostPort(host); splitErr == nil {
		serverName = h
	}

	tlsConn := tls.Client(conn, &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}

func (conn *Conn) sendRequest(path string, rangeFrom, rangeTo int64, extraHeaders map[string]string) (*Response, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", hostOnly(conn.host))
	b.WriteString("Connection: keep-alive\r\n")

	if rangeFrom > 0 || rangeTo > 0 {
		fmt.Fprintf(&b, "Range: bytes=%d-%d\r\n", rangeFrom, rangeTo)
	}

	for k, v := range extraHeaders {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}

	b.WriteString("\r\n")

	if _, err := io.WriteString(conn.netConn, b.String()); err != nil {
		return nil, fmt.Errorf("httpfetch: writing request: %w", err)
	}

	return conn.readResponse()
}

// RequestNext sends a pipelined subsequent request on the same connection
// (requires the prior response body to have been fully consumed first).
func (conn *Conn) RequestNext(path string, rangeFrom, rangeTo int64, extraHeaders map[string]string) (*Response, error) {
	return conn.sendRequest(path, rangeFrom, rangeTo, extraHeaders)
}

// NextResponse is an alias naming the read side of RequestNext explicitly,
// for callers that write the request themselves and only need the parse.
func (conn *Conn) NextResponse() (*Response, error) {
	return conn.readResponse()
}

func (conn *Conn) readResponse() (*Response, error) {
	tp := textproto.NewReader(conn.reader)

	statusLine, err := tp.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("httpfetch: reading status line: %w", err)
	}

	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("httpfetch: malformed status line %q", statusLine)
	}

	statusCode, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("httpfetch: malformed status code %q: %w", parts[1], err)
	}

	header, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("httpfetch: reading headers: %w", err)
	}

	resp := &Response{StatusCode: statusCode, ContentLength: -1, Header: header}

	if cl := header.Get("Content-Length"); cl != "" {
		n, convErr := strconv.ParseInt(cl, 10, 64)
		if convErr == nil {
			resp.ContentLength = n
		}
	}

	resp.Keepalive = parseKeepaliveTimeout(header.Get("Keep-Alive"))

	if statusCode < 200 || statusCode >= 300 {
		return resp, fmt.Errorf("httpfetch: non-2xx status %d", statusCode)
	}

	conn.remaining = resp.ContentLength
	conn.keepalive = resp.Keepalive

	return resp, nil
}

// parseKeepaliveTimeout extracts N from a header value like
// "timeout=5, max=100". Header parsing is deliberately narrow: only
// Content-Length and Keep-Alive: timeout=N are honored (per the minimal
// client's contract), everything else is left in Header for callers that
// need it but is not specially interpreted here.
func parseKeepaliveTimeout(value string) int {
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)

		k, v, ok := strings.Cut(field, "=")
		if !ok || strings.ToLower(strings.TrimSpace(k)) != "timeout" {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n
		}
	}

	return 0
}

// ReadAll returns exactly n bytes (or fewer if content-length is known to
// be less), drawing first from the buffered header reader, then the raw
// socket.
func (conn *Conn) ReadAll(n int) ([]byte, error) {
	if conn.remaining >= 0 && int64(n) > conn.remaining {
		n = int(conn.remaining)
	}

	buf := make([]byte, n)

	read, err := io.ReadFull(conn.reader, buf)
	if conn.remaining >= 0 {
		conn.remaining -= int64(read)
	}

	if err != nil && err != io.ErrUnexpectedEOF {
		return buf[:read], fmt.Errorf("httpfetch: read all: %w", err)
	}

	return buf[:read], nil
}

// Close caches the socket if keepalive > 5 seconds AND the full
// content-length was consumed; otherwise it closes the connection. Caller
// (internal/pool) is responsible for actually depositing the returned
// *net.Conn into its cache; Close here only decides fate and performs the
// teardown when reuse is not possible.
func (conn *Conn) Close() (reusable net.Conn, ok bool) {
	fullyConsumed := conn.remaining <= 0

	if conn.keepalive > 5 && fullyConsumed {
		return conn.netConn, true
	}

	_ = conn.netConn.Close()

	return nil, false
}

func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}

	return host
}
