package torrent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestManager(factory *fakeConnFactory) *ConnectionManager {
	return NewConnectionManager(PeerID{}, NewDefaultManagerConfig(), ManagerDeps{
		ConnFactory: factory,
		BufferPool:  NewBufferPool(),
	})
}

func torrentWithOneAvailablePeer(connected int) *fakeTorrentManager {
	tm := newFakeTorrentManager()
	for i := 0; i < connected; i++ {
		tm.lists.Connected[&PeerSession{}] = struct{}{}
	}
	tm.lists.PushAvailableBack(NewPeer(nil))
	return tm
}

// A single rotation step dials the head-most torrent with a candidate and
// moves it to the tail.
func TestTryConnectRotatesDialedTorrentsToTail(t *testing.T) {
	t0 := torrentWithOneAvailablePeer(2)
	t1 := torrentWithOneAvailablePeer(0)
	t2 := torrentWithOneAvailablePeer(1)

	cm := newTestManager(&fakeConnFactory{accept: false})
	cm.Add(t0)
	cm.Add(t1)
	cm.Add(t2)

	cm.dialOneRotation()

	require.Equal(t, []TorrentManager{t1, t2, t0}, cm.torrents)
}

// Scenario: a torrent whose mode refuses connections never yields a dial
// and is skipped by the rotation.
func TestTryConnectSkipsTorrentsThatCannotAccept(t *testing.T) {
	blocked := torrentWithOneAvailablePeer(0)
	blocked.mode.accept = false
	open := torrentWithOneAvailablePeer(0)

	cm := newTestManager(&fakeConnFactory{accept: false})
	cm.Add(blocked)
	cm.Add(open)

	cm.TryConnect()

	// open was already at the tail when it yielded a dial, so rotation
	// leaves the order unchanged; the point of the test is that blocked
	// never yields (its mode refuses connections).
	require.Equal(t, []TorrentManager{blocked, open}, cm.torrents)
	require.Empty(t, blocked.lists.Connecting)
}

// A banned candidate is consumed (not reinserted into Available) and does
// not count as a failed attempt.
func TestBannedCandidateIsConsumedNotRetried(t *testing.T) {
	tm := torrentWithOneAvailablePeer(0)
	cm := newTestManager(&fakeConnFactory{accept: false})
	cm.SetShouldBanPeer(func(*Peer) bool { return true })
	cm.Add(tm)

	cm.TryConnect()

	require.Empty(t, tm.lists.Available)
	require.Empty(t, tm.failedLog)
}

// Cancel while connecting: disposing a pending dial's handle surfaces as
// a connect failure and raises Unreachable.
func TestCancelWhileConnectingSurfacesUnreachable(t *testing.T) {
	tm := torrentWithOneAvailablePeer(0)
	peer := tm.lists.Available[0]

	handle := newBlockingConnHandle()
	cm := newTestManager(&fakeConnFactory{accept: false})
	cm.connFactory = constFactory{handle}
	cm.Add(tm)

	cm.TryConnect()

	require.Contains(t, tm.lists.Connecting, peer)
	require.Equal(t, 1, cm.dials.len())

	cm.CancelPendingConnects(tm)

	waitForCondition(t, func() bool { return len(tm.failedLog) == 1 })
	require.Equal(t, Unreachable, tm.failedLog[0])
	require.NotContains(t, tm.lists.Connecting, peer)
	require.True(t, handle.disposed)
}
