package torrent

import (
	"context"
	"net"
	"time"

	"github.com/quietpeer/torrent/internal/errorsx"
)

// netDialHandle adapts a net.Dialer into a ConnHandle: Connect is the
// outbound pipeline's suspension point, Dispose is the cancellation
// primitive that makes any in-flight Connect/Read/Write fail. One handle
// per dial attempt, since dials race across torrents rather than within
// a single one.
type netDialHandle struct {
	network string
	addr    string
	dialer  net.Dialer

	conn     net.Conn
	disposed bool
	cancel   context.CancelFunc
}

func newNetDialHandle(network, addr string) *netDialHandle {
	return &netDialHandle{network: network, addr: addr}
}

func (h *netDialHandle) Connect(ctx context.Context) (err error) {
	ctx, h.cancel = context.WithCancel(ctx)
	conn, err := h.dialer.DialContext(ctx, h.network, h.addr)
	if err != nil {
		return errorsx.Wrapf(err, "dial %s %s", h.network, h.addr)
	}
	if h.disposed {
		conn.Close()
		return ErrDisposed
	}
	h.conn = conn
	return nil
}

func (h *netDialHandle) CanReconnect() bool { return true }

func (h *netDialHandle) Dispose() error {
	if h.disposed {
		return nil
	}
	h.disposed = true
	if h.cancel != nil {
		h.cancel()
	}
	if h.conn != nil {
		return h.conn.Close()
	}
	return nil
}

func (h *netDialHandle) Read(p []byte) (int, error) {
	if h.conn == nil {
		return 0, ErrDisposed
	}
	return h.conn.Read(p)
}

func (h *netDialHandle) Write(p []byte) (int, error) {
	if h.conn == nil {
		return 0, ErrDisposed
	}
	return h.conn.Write(p)
}

func (h *netDialHandle) Close() error { return h.Dispose() }

func (h *netDialHandle) LocalAddr() net.Addr {
	if h.conn == nil {
		return nil
	}
	return h.conn.LocalAddr()
}

func (h *netDialHandle) RemoteAddr() net.Addr {
	if h.conn == nil {
		return nil
	}
	return h.conn.RemoteAddr()
}

func (h *netDialHandle) SetDeadline(t time.Time) error {
	if h.conn == nil {
		return ErrDisposed
	}
	return h.conn.SetDeadline(t)
}

func (h *netDialHandle) SetReadDeadline(t time.Time) error {
	if h.conn == nil {
		return ErrDisposed
	}
	return h.conn.SetReadDeadline(t)
}

func (h *netDialHandle) SetWriteDeadline(t time.Time) error {
	if h.conn == nil {
		return ErrDisposed
	}
	return h.conn.SetWriteDeadline(t)
}

// NetConnFactory is the default ConnFactory, dialing peers over TCP.
type NetConnFactory struct {
	Network string
}

func NewNetConnFactory(network string) *NetConnFactory {
	if network == "" {
		network = "tcp"
	}
	return &NetConnFactory{Network: network}
}

func (f *NetConnFactory) New(peer *Peer) (ConnHandle, bool) {
	if peer.Addr == nil {
		return nil, false
	}
	return newNetDialHandle(f.Network, peer.Addr.String()), true
}
