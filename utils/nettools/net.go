// Package nettools inspects sockets below the net.Conn abstraction.
package nettools

import (
	"net"
	"syscall"
)

// Alive reports whether the peer of c still looks connected: nothing
// pending on the socket, or pending data that is not an orderly
// shutdown. It never blocks and never consumes data. Connections that
// do not expose a file descriptor are assumed alive.
func Alive(c net.Conn) bool {
	if c == nil {
		return false
	}
	rc := rawConn(c)
	if rc == nil {
		return true
	}
	return probe(rc)
}

func rawConn(raw net.Conn) syscall.RawConn {
	for {
		t, ok := raw.(interface{ NetConn() net.Conn })
		if !ok {
			break
		}
		// is *tls.Conn or a wrapper around the dialed connection
		raw = t.NetConn()
	}
	if c, ok := raw.(syscall.Conn); ok {
		if c, err := c.SyscallConn(); err == nil {
			return c
		}
	}
	return nil
}
