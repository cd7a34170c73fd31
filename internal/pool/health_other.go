//go:build !linux && !darwin

package pool

import "net"

// hasPendingBytes and isClosed have no portable non-blocking peek
// equivalent outside unix; on other platforms every cached socket is
// assumed healthy and the TTL sweep is relied on instead.
func hasPendingBytes(conn net.Conn) bool { return false }

func isClosed(conn net.Conn) bool { return false }
