package worker

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenReusePort opens a TCP listener with SO_REUSEPORT set on the raw
// socket before bind, so a new supervisor process can bind the same
// address while an old one (and its still-draining workers) is still
// holding it open during a rolling restart. Plain net.Listen refuses the
// second bind; the kernel option is reachable only through the raw
// syscall, not net's portable API.
func ListenReusePort(network, address string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.Listen(context.Background(), network, address)
}
