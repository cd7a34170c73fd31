//go:build linux || darwin

package pool

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// hasPendingBytes reports whether the socket has readable bytes buffered.
// An idle keep-alive connection must have zero bytes pending — any buffered
// data means the peer sent something the caller never consumed (a
// desynced request/response stream), and the socket must not be reused.
// Uses a non-blocking MSG_PEEK recv so no bytes are actually consumed.
func hasPendingBytes(conn net.Conn) bool {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return false
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return false
	}

	var buf [1]byte

	var n int

	var peekErr error

	controlErr := raw.Read(func(fd uintptr) bool {
		n, _, peekErr = unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)

		return true
	})

	if controlErr != nil || peekErr != nil {
		return false
	}

	return n > 0
}

// isClosed reports whether the peer has closed the connection, detected as
// a zero-length non-blocking peek read (EOF) rather than an error.
func isClosed(conn net.Conn) bool {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return false
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return false
	}

	var buf [1]byte

	var n int

	controlErr := raw.Read(func(fd uintptr) bool {
		n, _, _ = unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)

		return true
	})

	return controlErr == nil && n == 0
}
