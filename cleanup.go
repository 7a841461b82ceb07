package torrent

import (
	"github.com/quietpeer/torrent/internal/errorsx"
)

// cleanup is the single choke point for terminating a peer session.
// Idempotent: a nil or already-disposed session is a no-op. Every step is
// best-effort; nothing here may panic out to the caller.
func (cm *ConnectionManager) cleanup(s *PeerSession) {
	if s == nil {
		return
	}
	if !s.disposed.Set() {
		// Already disposed by a concurrent cancellation or natural
		// completion; nothing left to do.
		return
	}

	tm := s.Torrent
	lists := tm.Lists()
	peer := s.Peer

	canReuse := s.Conn.CanReconnect()
	if _, inactive := lists.Inactive[peer]; inactive {
		canReuse = false
	}

	errorsx.Ignore(safeCancelPieceRequests(tm, s))

	peer.CleanedUpCount++

	errorsx.Ignore(safeDisposePEX(tm, s))

	if !s.Choking() {
		tm.UploadingToAdd(-1)
	}

	delete(lists.Connected, s)
	delete(lists.Handshaking, s)

	if canReuse && peer.PeerID.Ok() && peer.PeerID.Value() != cm.localPeerID &&
		!lists.InAvailable(peer) && peer.CleanedUpCount < cm.cfg.ReuseCap {
		lists.PushAvailableFront(peer)
	}

	tm.RaisePeerDisconnected(s)

	errorsx.Ignore(s.Conn.Dispose())
}

func safeCancelPieceRequests(tm TorrentManager, s *PeerSession) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errorsx.Errorf("cancel piece requests panic: %v", r)
		}
	}()
	tm.CancelPieceRequests(s)
	return nil
}

func safeDisposePEX(tm TorrentManager, s *PeerSession) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errorsx.Errorf("dispose pex panic: %v", r)
		}
	}()
	tm.DisposePEX(s)
	return nil
}
