package torrent

// tryConnect attempts to saturate the global dial budget by starting as
// many outbound dials as the caps permit. It returns when the
// open-connection cap, the half-open cap, or the torrent list is
// exhausted without a dial.
func (cm *ConnectionManager) tryConnect() {
	for {
		if cm.openConnections() > cm.cfg.MaxOpen {
			return
		}
		if cm.dials.len() > cm.cfg.MaxHalfOpen {
			return
		}

		cm.mu.Lock()
		n := len(cm.torrents)
		cm.mu.Unlock()
		if n == 0 {
			return
		}

		if !cm.dialOneRotation() {
			return
		}
	}
}

// dialOneRotation walks the torrent list head to tail looking for the
// first torrent that yields a dial. On success it rotates that torrent to
// the tail and returns true. Returns false if the whole list was walked
// with nothing to dial.
func (cm *ConnectionManager) dialOneRotation() bool {
	cm.mu.Lock()
	torrents := make([]TorrentManager, len(cm.torrents))
	copy(torrents, cm.torrents)
	cm.mu.Unlock()

	for i, tm := range torrents {
		peer, ok := cm.selectDialCandidate(tm)
		if !ok {
			continue
		}
		cm.rotateToTail(i, tm)
		cm.dial(tm, peer)
		return true
	}
	return false
}

// selectDialCandidate runs one torrent's dial-attempt check: mode must
// accept connections, the torrent must be under its own cap, and the
// first Available peer the mode approves must not be banned.
func (cm *ConnectionManager) selectDialCandidate(tm TorrentManager) (*Peer, bool) {
	mode := tm.Mode()
	if !mode.CanAcceptConnections() {
		return nil, false
	}
	lists := tm.Lists()
	if len(lists.Connected) >= tm.MaxConnections() {
		return nil, false
	}

	peer := lists.PopAvailable(mode.ShouldConnect)
	if peer == nil {
		return nil, false
	}

	if cm.shouldBanPeer != nil && cm.shouldBanPeer(peer) {
		// Banned: the peer is consumed (not reinserted) and this dial
		// attempt fails for this torrent without counting as a failure.
		return nil, false
	}

	return peer, true
}

func (cm *ConnectionManager) rotateToTail(index int, tm TorrentManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for i, t := range cm.torrents {
		if t == tm {
			cm.torrents = append(cm.torrents[:i], cm.torrents[i+1:]...)
			cm.torrents = append(cm.torrents, tm)
			return
		}
	}
}

// openConnections is the global count of Connected peers across every
// registered torrent.
func (cm *ConnectionManager) openConnections() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	n := 0
	for _, tm := range cm.torrents {
		n += len(tm.Lists().Connected)
	}
	return n
}
