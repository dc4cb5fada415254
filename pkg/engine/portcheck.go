package engine

import (
	"context"
	"net"
	"strconv"
	"syscall"
)

// portBound reports whether port is already bound on 0.0.0.0 or :: by
// attempting a listen without SO_REUSEADDR (Go enables it on listeners by
// default, so the Control hook clears it before bind). spec.md §9's open
// question on this precheck is resolved in favor of the simpler, slightly
// racy check: a real bind-time EADDRINUSE from the daemon's own container
// is the authoritative signal regardless, so this is a best-effort early
// PortBusy rather than a guarantee.
func portBound(port int) bool {
	addr := net.JoinHostPort("", strconv.Itoa(port))
	lc := net.ListenConfig{Control: func(network, address string, c syscall.RawConn) error {
		var serr error
		if err := c.Control(func(fd uintptr) {
			serr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 0)
		}); err != nil {
			return err
		}
		return serr
	}}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return true
	}
	_ = ln.Close()
	return false
}
