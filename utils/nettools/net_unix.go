//go:build darwin || linux
// +build darwin linux

package nettools

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func probe(rc syscall.RawConn) bool {
	alive := true
	// Control only fails when the descriptor is already closed.
	if err := rc.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 0)
		if err != nil || n == 0 {
			return // quiet socket
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			alive = false
			return
		}
		var b [1]byte
		n, _, err = unix.Recvfrom(int(fd), b[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case err == nil:
			alive = n > 0 // 0 bytes readable means the peer sent FIN
		case err == unix.EAGAIN || err == unix.EINTR:
		default:
			alive = false
		}
	}); err != nil {
		return false
	}
	return alive
}
