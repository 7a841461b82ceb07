package torrent

import (
	"context"
	"net"

	"github.com/quietpeer/torrent/connections"
	"github.com/quietpeer/torrent/internal/errorsx"
	"github.com/quietpeer/torrent/mse"
	"github.com/quietpeer/torrent/option"
)

// Listener is the lower listener layer the Inbound Pipeline assumes
// already exists: it accepts raw sockets, applies firewall rules,
// negotiates inbound encryption, receives the handshake, and only then
// hands a populated PeerSession to the Inbound Pipeline. This is the one
// piece of wiring between the connections and mse packages and the
// Connection Manager: neither package needs to know about torrents or
// peer lists, they only need to produce a session-shaped bundle of
// (conn, enc, dec, mode, handshake).
type Listener struct {
	net.Listener
	Handshaker connections.Handshaker
	Codec      WireCodec

	// TorrentForInfoHash resolves an accepted handshake's info-hash to the
	// TorrentManager it belongs to; ok == false means "torrent unknown",
	// which drops the connection.
	TorrentForInfoHash func(InfoHash) (TorrentManager, bool)
}

// Serve accepts connections until the listener is closed, admitting each
// one through cm's Inbound Pipeline.
func (l *Listener) Serve(cm *ConnectionManager) error {
	for {
		conn, err := l.Handshaker.Accept(l.Listener)
		if err != nil {
			return err
		}
		go l.admit(cm, conn)
	}
}

func (l *Listener) admit(cm *ConnectionManager, conn net.Conn) {
	rw, err := mse.Handshake(conn, false, nil)
	if err != nil {
		errorsx.Ignore(l.Handshaker.Release(conn, err))
		return
	}

	hs, err := l.Codec.ReceiveHandshake(context.Background(), conn, passthroughDecryptor{rw})
	if err != nil {
		errorsx.Ignore(l.Handshaker.Release(conn, err))
		return
	}

	tm, ok := l.TorrentForInfoHash(hs.InfoHash)
	if !ok {
		errorsx.Ignore(l.Handshaker.Release(conn, ErrTorrentNotActive))
		return
	}

	handle := acceptedConnHandle{Conn: conn}
	s := newPeerSession(cm, tm, findOrCreatePeer(tm, conn.RemoteAddr()), handle, passthroughEncryptor{rw}, passthroughDecryptor{rw}, RC4Full)
	s.Peer.PeerID = option.Some(hs.PeerID)

	cm.IncomingConnectionAccepted(tm, s)
}

func findOrCreatePeer(tm TorrentManager, addr net.Addr) *Peer {
	lists := tm.Lists()
	for p := range lists.Connecting {
		if p.Addr != nil && addr != nil && p.Addr.String() == addr.String() {
			return p
		}
	}
	return NewPeer(addr)
}

// acceptedConnHandle wraps an already-connected net.Conn as a ConnHandle
// for a session admitted by the listener; Connect is a no-op since
// connect already happened below the Connection Manager.
type acceptedConnHandle struct {
	net.Conn
}

func (acceptedConnHandle) Connect(context.Context) error { return nil }
func (acceptedConnHandle) CanReconnect() bool             { return false }
func (h acceptedConnHandle) Dispose() error               { return h.Conn.Close() }

type passthroughEncryptor struct{ rw interface{ Write([]byte) (int, error) } }

func (e passthroughEncryptor) EncryptTo(_ net.Conn, p []byte) (int, error) { return e.rw.Write(p) }

type passthroughDecryptor struct{ rw interface{ Read([]byte) (int, error) } }

func (d passthroughDecryptor) DecryptFrom(_ net.Conn, p []byte) (int, error) { return d.rw.Read(p) }

