package engine

import (
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"
)

// Conn is a handle to one accepted connection.
//
// Handles are small values and are passed by value. A handle is valid while
// the connection it names is in the engine's table; once the connection is
// closed the handle goes stale, and every engine call rejects it even if the
// kernel has since reused the descriptor number for a new connection.
type Conn struct {
	fd   int
	gen  uint32
	peer string
}

// Fd returns the socket descriptor. Only the goroutine that currently owns
// the connection may do I/O on it.
func (c Conn) Fd() int { return c.fd }

// Peer returns the remote address, for logging only.
func (c Conn) Peer() string { return c.peer }

func (c Conn) String() string {
	return fmt.Sprintf("fd=%d gen=%d peer=%s", c.fd, c.gen, c.peer)
}

// entry is the table record of a live connection.
type entry struct {
	conn       Conn
	detached   bool
	lastActive time.Time
}

// peerString renders an accept(2) peer address.
func peerString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port)).String()
	default:
		return "unknown"
	}
}
