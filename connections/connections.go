// Package connections provides the listener-side admission primitives used
// before a socket is handed to the inbound pipeline: accepting raw sockets,
// applying firewall/ban rules, and releasing sockets that get rejected.
package connections

import (
	"errors"
	"net"

	"github.com/quietpeer/torrent/internal/netx"
)

// Connection to a remote peer. Kept as an alias over net.Conn so callers can
// substitute fakes in tests without pulling in a real socket.
type Connection interface {
	net.Conn
}

// Handshaker accepts connections from a net.Listener and applies firewall
// rules before the connection manager ever sees the socket. The protocol
// handshake itself happens below the connection manager; by the time
// Accept returns, the remote address has already passed firewall checks.
type Handshaker interface {
	Accept(l net.Listener) (net.Conn, error)
	Release(c net.Conn, cause error) error
}

// NewHandshaker builds the default Handshaker backed by the given firewall.
func NewHandshaker(firewall FirewallStateful) Handshaker {
	return handshaker{Firewall: firewall}
}

type handshaker struct {
	Firewall FirewallStateful
}

func (t handshaker) Accept(l net.Listener) (c net.Conn, err error) {
	var (
		rip  net.IP
		port int
		conn net.Conn
	)

	for {
		if conn, err = l.Accept(); err != nil {
			return nil, err
		}

		if rip, port, err = netx.NetIPPort(conn.RemoteAddr()); err != nil {
			conn.Close()
			continue
		}

		if err = t.Firewall.Blocked(rip, port); err != nil {
			conn.Close()
			continue
		}

		return conn, nil
	}
}

func (t handshaker) Release(conn net.Conn, cause error) (err error) {
	var (
		rip  net.IP
		port int
	)

	if rip, port, err = netx.NetIPPort(conn.RemoteAddr()); err != nil {
		return err
	}

	var banned bannedConnection
	if errors.As(cause, &banned) {
		t.Firewall.Inhibit(rip, port, cause)
	}

	return conn.Close()
}
