package torrent

import (
	"context"
	"time"

	"github.com/quietpeer/torrent/internal/errorsx"
	"github.com/quietpeer/torrent/option"
)

// dial runs the outbound pipeline for one torrent/peer pair. It is
// invoked once selectDialCandidate has already removed peer from
// Available, so every exit path below must route through cleanup or an
// explicit Busy/discard rather than leaving peer in limbo.
func (cm *ConnectionManager) dial(tm TorrentManager, peer *Peer) {
	// Stage 1: create connection.
	handle, ok := cm.connFactory.New(peer)
	if !ok {
		return
	}

	// Stage 2: register pending dial, enter Connecting.
	pd := &PendingDial{Torrent: tm, Peer: peer, Handle: handle, StartedAt: time.Now()}
	cm.dials.add(pd)
	lists := tm.Lists()
	lists.Connecting[peer] = struct{}{}

	go cm.runOutboundConnect(tm, peer, handle, pd)
}

func (cm *ConnectionManager) runOutboundConnect(tm TorrentManager, peer *Peer, handle ConnHandle, pd *PendingDial) {
	ctx := context.Background()

	// Stage 3: connect (suspension point).
	err := handle.Connect(ctx)
	cm.dials.remove(pd)
	delete(tm.Lists().Connecting, peer)

	if err != nil {
		cm.onDialFailure(tm, peer, handle, err)
		return
	}

	// Stage 4: post-connect admission.
	if tm.Detached() || !tm.Mode().CanAcceptConnections() {
		handle.Dispose()
		return
	}

	cm.onDialConnected(tm, peer, handle, ctx)
}

// onDialFailure is stage 5: the connect failed.
func (cm *ConnectionManager) onDialFailure(tm TorrentManager, peer *Peer, handle ConnHandle, cause error) {
	peer.FailedAttempts++
	handle.Dispose()
	tm.Lists().Busy[peer] = time.Now()
	tm.RaiseConnectionAttemptFailed(peer, Unreachable, cause)
	cm.tryConnect()
}

// onDialConnected runs stages 6-11 of the outbound pipeline.
func (cm *ConnectionManager) onDialConnected(tm TorrentManager, peer *Peer, handle ConnHandle, ctx context.Context) {
	// Stage 6: create session.
	s := newPeerSession(cm, tm, peer, handle, nil, nil, 0)

	// Stage 7: admission gate.
	if cm.openConnections() > cm.cfg.MaxOpen {
		cm.cleanup(s)
		return
	}

	// Stage 8: enter Active/Handshaking.
	lists := tm.Lists()
	s.mu.Lock()
	s.processingQueue = true
	s.mu.Unlock()
	lists.Handshaking[s] = struct{}{}

	// Stage 9: encryption negotiation (initiator).
	prepared := tm.PrepareHandshake(cm.localPeerID)
	enc, dec, used, err := cm.negotiator.CheckOutgoing(ctx, handle, peer.AllowedEncryption, cm.cfg.Encryption, tm.InfoHash(), prepared)
	if err != nil {
		peer.FailedAttempts++
		peer.NarrowEncryption(RC4Full, RC4Header)
		tm.RaiseConnectionAttemptFailed(peer, EncryptionNegotiationFailed, err)
		cm.cleanup(s)
		return
	}
	s.Enc, s.Dec, s.UsedMode = enc, dec, used

	// Stage 10: receive remote handshake.
	hctx := ctx
	if cm.cfg.HandshakesTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, cm.cfg.HandshakesTimeout)
		defer cancel()
	}
	hs, err := cm.codec.ReceiveHandshake(hctx, handle, dec)
	if err != nil {
		peer.FailedAttempts++
		peer.NarrowEncryption(used)
		tm.RaiseConnectionAttemptFailed(peer, HandshakeFailed, err)
		cm.cleanup(s)
		return
	}
	peer.PeerID = option.Some(hs.PeerID)

	// Stage 11: promote.
	cm.promote(tm, s)
}

// promote is outbound stage 11 (the inbound pipeline promotes its sessions
// in admitInbound and does not call this): remove from Handshaking, hand off to the mode, start the pump or clear
// processing-queue, spawn the receive loop.
func (cm *ConnectionManager) promote(tm TorrentManager, s *PeerSession) {
	defer func() {
		if r := recover(); r != nil {
			tm.RaiseConnectionAttemptFailed(s.Peer, Unknown, errorsx.Errorf("promotion panic: %v", r))
			cm.cleanup(s)
		}
	}()

	lists := tm.Lists()
	delete(lists.Handshaking, s)

	tm.Mode().HandlePeerConnected(s)

	s.mu.Lock()
	hasQueued := len(s.queue) > 0
	if !hasQueued {
		s.processingQueue = false
	}
	s.mu.Unlock()
	if hasQueued {
		go s.runSendPump()
	}

	lists.Connected[s] = struct{}{}

	now := time.Now()
	s.mu.Lock()
	s.WhenConnected = now
	s.LastBlockReceived = now
	s.mu.Unlock()

	go s.runReceiveLoop(context.Background(), cm.onMessage)
}
