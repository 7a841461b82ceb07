package torrent

import (
	"github.com/anacrolix/sync"
)

// ConnectionManager owns the global dial budget, the registered torrent
// list, and the pending-dial set. All its mutating methods are meant to
// be called from a single logical thread.
type ConnectionManager struct {
	cfg *ManagerConfig

	localPeerID PeerID

	connFactory ConnFactory
	negotiator  EncryptionNegotiator
	codec       WireCodec
	disk        DiskManager
	bufferPool  BufferPool

	onMessage func(*PeerSession, PeerMessage)

	shouldBanPeer func(*Peer) bool

	mu       sync.Mutex
	torrents []TorrentManager

	dials *pendingDials
}

// ManagerDeps bundles the external collaborators a ConnectionManager needs.
type ManagerDeps struct {
	ConnFactory ConnFactory
	Negotiator  EncryptionNegotiator
	Codec       WireCodec
	Disk        DiskManager
	BufferPool  BufferPool
	// OnMessage dispatches a received, non-piece-buffer-owning message to
	// its per-message handler.
	OnMessage func(*PeerSession, PeerMessage)
}

// NewConnectionManager builds a ConnectionManager ready to register
// torrents.
func NewConnectionManager(local PeerID, cfg *ManagerConfig, deps ManagerDeps) *ConnectionManager {
	if cfg == nil {
		cfg = NewDefaultManagerConfig()
	}
	return &ConnectionManager{
		cfg:           cfg,
		localPeerID:   local,
		connFactory:   deps.ConnFactory,
		negotiator:    deps.Negotiator,
		codec:         deps.Codec,
		disk:          deps.Disk,
		bufferPool:    deps.BufferPool,
		onMessage:     deps.OnMessage,
		dials:         newPendingDials(),
	}
}

// Add registers a torrent manager with the scheduler, appending it to the
// tail of the rotation.
func (cm *ConnectionManager) Add(tm TorrentManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.torrents = append(cm.torrents, tm)
}

// Remove unregisters a torrent manager. Any of its pending dials and
// sessions are left to the caller to cancel/cleanup first; Remove itself
// only touches the rotation.
func (cm *ConnectionManager) Remove(tm TorrentManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for i, t := range cm.torrents {
		if t == tm {
			cm.torrents = append(cm.torrents[:i], cm.torrents[i+1:]...)
			return
		}
	}
}

// IncomingConnectionAccepted runs the Inbound Pipeline for a session whose
// socket a lower listener layer has already accepted and handshaken.
func (cm *ConnectionManager) IncomingConnectionAccepted(tm TorrentManager, s *PeerSession) {
	cm.admitInbound(tm, s)
}

// TryConnect is the Dial Scheduler's single entry point.
func (cm *ConnectionManager) TryConnect() {
	cm.tryConnect()
}

// CancelPendingConnects cancels pending dials globally (tm == nil) or
// restricted to one torrent manager, plus any dial that has gone stale
// regardless of owner.
func (cm *ConnectionManager) CancelPendingConnects(tm TorrentManager) {
	cm.cancelPending(tm)
}

// OpenConnections reports the current global Connected-peer count.
func (cm *ConnectionManager) OpenConnections() int {
	return cm.openConnections()
}

// SetShouldBanPeer installs the single-subscriber ban hook the dial
// scheduler consults before dialing a candidate.
func (cm *ConnectionManager) SetShouldBanPeer(f func(*Peer) bool) {
	cm.shouldBanPeer = f
}
