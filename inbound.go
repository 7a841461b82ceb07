package torrent

import (
	"context"
	"time"

	"github.com/quietpeer/torrent/internal/errorsx"
)

// admitInbound runs the Inbound Pipeline for a PeerSession whose socket
// has already been accepted and whose handshake has already been
// received by a lower listener layer — the caller is expected to have
// populated s.Enc/s.Dec/s.UsedMode/s.Peer.PeerID before calling this.
func (cm *ConnectionManager) admitInbound(tm TorrentManager, s *PeerSession) {
	lists := tm.Lists()

	// Check 1.
	maxOpen := cm.cfg.MaxOpen
	if tm.MaxConnections() < maxOpen {
		maxOpen = tm.MaxConnections()
	}
	if cm.openConnections() >= maxOpen {
		cm.cleanup(s)
		return
	}
	if s.Peer.PeerID.Ok() && s.Peer.PeerID.Value() == cm.localPeerID {
		errorsx.Log(ErrSelfConnect)
		cm.cleanup(s)
		return
	}

	// Check 2.
	for existing := range lists.Active() {
		if existing.Peer == s.Peer {
			s.Conn.Dispose()
			return
		}
	}

	// Check 3.
	if lists.InAvailable(s.Peer) {
		lists.PopAvailable(func(p *Peer) bool { return p == s.Peer })
	}
	lists.Connected[s] = struct{}{}
	now := time.Now()
	s.mu.Lock()
	s.WhenConnected = now
	s.LastBlockReceived = now
	s.mu.Unlock()
	tm.Mode().HandlePeerConnected(s)

	// Check 4.
	go s.runReceiveLoop(context.Background(), cm.onMessage)
}

// Active returns the union of Handshaking and Connected sessions, the
// torrent's Active set.
func (l *PeerLists) Active() map[*PeerSession]struct{} {
	out := make(map[*PeerSession]struct{}, len(l.Handshaking)+len(l.Connected))
	for s := range l.Handshaking {
		out[s] = struct{}{}
	}
	for s := range l.Connected {
		out[s] = struct{}{}
	}
	return out
}
