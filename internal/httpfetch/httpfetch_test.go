package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (host string, closeFn func()) {
	t.Helper()

	srv := httptest.NewServer(handler)

	return strings.TrimPrefix(srv.URL, "http://"), srv.Close
}

func TestClient_Connect_ReadsBody(t *testing.T) {
	host, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	})
	defer closeSrv()

	c := NewClient(false, 30*time.Second)

	conn, resp, err := c.Connect(context.Background(), host, "/file", 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, int64(5), resp.ContentLength)

	body, err := conn.ReadAll(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestClient_Connect_NonTwoXXIsError(t *testing.T) {
	host, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer closeSrv()

	c := NewClient(false, 30*time.Second)

	_, resp, err := c.Connect(context.Background(), host, "/missing", 0, 0, nil)
	require.Error(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestClient_ConnectMultihost_FailsOverToSecondHost(t *testing.T) {
	host, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2")
		w.Write([]byte("ok"))
	})
	defer closeSrv()

	c := NewClient(false, 30*time.Second)

	conn, picked, resp, err := c.ConnectMultihost(context.Background(),
		[]string{"127.0.0.1:1", host}, "/x", 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, host, picked)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := conn.ReadAll(2)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestConn_ReadAll_TruncatesToContentLength(t *testing.T) {
	host, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "3")
		w.Write([]byte("abc"))
	})
	defer closeSrv()

	c := NewClient(false, 30*time.Second)

	conn, _, err := c.Connect(context.Background(), host, "/x", 0, 0, nil)
	require.NoError(t, err)

	body, err := conn.ReadAll(100)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(body))
}

func TestParseKeepaliveTimeout(t *testing.T) {
	assert.Equal(t, 5, parseKeepaliveTimeout("timeout=5, max=100"))
	assert.Equal(t, 0, parseKeepaliveTimeout(""))
	assert.Equal(t, 0, parseKeepaliveTimeout("max=100"))
}

func TestConn_Close_CachesWhenKeepaliveAndFullyConsumed(t *testing.T) {
	host, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2")
		w.Header().Set("Keep-Alive", "timeout=30")
		w.Write([]byte("ok"))
	})
	defer closeSrv()

	c := NewClient(false, 30*time.Second)

	conn, _, err := c.Connect(context.Background(), host, "/x", 0, 0, nil)
	require.NoError(t, err)

	_, err = conn.ReadAll(2)
	require.NoError(t, err)

	_, reusable := conn.Close()
	assert.True(t, reusable)
}

func TestConn_Close_ClosesWhenNotFullyConsumed(t *testing.T) {
	host, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		w.Header().Set("Keep-Alive", "timeout=30")
		w.Write([]byte("hello"))
	})
	defer closeSrv()

	c := NewClient(false, 30*time.Second)

	conn, _, err := c.Connect(context.Background(), host, "/x", 0, 0, nil)
	require.NoError(t, err)

	// Deliberately don't consume the body.
	_, reusable := conn.Close()
	assert.False(t, reusable)
}
