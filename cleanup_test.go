package torrent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietpeer/torrent/option"
)

func newCleanupTestManager() *ConnectionManager {
	return NewConnectionManager(PeerID{1}, NewDefaultManagerConfig(), ManagerDeps{
		ConnFactory: &fakeConnFactory{},
		BufferPool:  NewBufferPool(),
	})
}

func TestCleanupIsIdempotent(t *testing.T) {
	cm := newCleanupTestManager()
	tm := newFakeTorrentManager()
	peer := NewPeer(nil)
	handle := &fakeConnHandle{}
	s := newPeerSession(cm, tm, peer, handle, nil, nil, RC4Full)
	tm.lists.Connected[s] = struct{}{}

	cm.cleanup(s)
	require.Len(t, tm.discoLog, 1)
	require.Equal(t, 1, peer.CleanedUpCount)
	require.True(t, handle.disposed)

	// A second cleanup on the same already-disposed session is a no-op.
	cm.cleanup(s)
	require.Len(t, tm.discoLog, 1)
	require.Equal(t, 1, peer.CleanedUpCount)
}

func TestCleanupReinsertsReusablePeerToFront(t *testing.T) {
	cm := newCleanupTestManager()
	tm := newFakeTorrentManager()
	existing := NewPeer(nil)
	tm.lists.PushAvailableBack(existing)

	peer := NewPeer(nil)
	peer.PeerID = option.Some(PeerID{2})
	s := newPeerSession(cm, tm, peer, &fakeConnHandle{}, nil, nil, RC4Full)
	tm.lists.Connected[s] = struct{}{}

	cm.cleanup(s)

	require.Len(t, tm.lists.Available, 2)
	require.Same(t, peer, tm.lists.Available[0])
}

func TestCleanupRespectsReuseCap(t *testing.T) {
	cm := newCleanupTestManager()
	cm.cfg.ReuseCap = 1
	tm := newFakeTorrentManager()

	peer := NewPeer(nil)
	peer.PeerID = option.Some(PeerID{2})
	peer.CleanedUpCount = 1
	s := newPeerSession(cm, tm, peer, &fakeConnHandle{}, nil, nil, RC4Full)
	tm.lists.Connected[s] = struct{}{}

	cm.cleanup(s)

	require.Empty(t, tm.lists.Available)
}

func TestCleanupNeverReinsertsLocalPeerID(t *testing.T) {
	local := PeerID{7}
	cm := NewConnectionManager(local, NewDefaultManagerConfig(), ManagerDeps{
		ConnFactory: &fakeConnFactory{},
		BufferPool:  NewBufferPool(),
	})
	tm := newFakeTorrentManager()

	peer := NewPeer(nil)
	peer.PeerID = option.Some(local)
	s := newPeerSession(cm, tm, peer, &fakeConnHandle{}, nil, nil, RC4Full)
	tm.lists.Connected[s] = struct{}{}

	cm.cleanup(s)

	require.Empty(t, tm.lists.Available)
}

func TestCleanupSkipsReinsertForInactivePeer(t *testing.T) {
	cm := newCleanupTestManager()
	tm := newFakeTorrentManager()

	peer := NewPeer(nil)
	peer.PeerID = option.Some(PeerID{2})
	tm.lists.Inactive[peer] = struct{}{}
	s := newPeerSession(cm, tm, peer, &fakeConnHandle{}, nil, nil, RC4Full)
	tm.lists.Connected[s] = struct{}{}

	cm.cleanup(s)

	require.Empty(t, tm.lists.Available)
}

func TestCleanupDecrementsUploadingWhenNotChoking(t *testing.T) {
	cm := newCleanupTestManager()
	tm := newFakeTorrentManager()
	tm.uploadingTo = 3

	peer := NewPeer(nil)
	s := newPeerSession(cm, tm, peer, &fakeConnHandle{}, nil, nil, RC4Full)
	s.SetChoking(false)
	tm.lists.Connected[s] = struct{}{}

	cm.cleanup(s)

	require.Equal(t, 2, tm.uploadingTo)
}

func TestSendOneFreesBufferExactlyOnceOnDiskReadFailure(t *testing.T) {
	pool := &countingBufferPool{}
	cm := NewConnectionManager(PeerID{1}, NewDefaultManagerConfig(), ManagerDeps{
		ConnFactory: &fakeConnFactory{},
		BufferPool:  pool,
		Disk:        fakeDisk{readErr: ErrDisposed},
	})
	tm := newFakeTorrentManager()
	peer := NewPeer(nil)
	s := newPeerSession(cm, tm, peer, &fakeConnHandle{}, nil, nil, RC4Full)
	tm.lists.Connected[s] = struct{}{}

	s.sendOne(context.Background(), PeerMessage{Kind: MessagePiece, PieceLength: 16})

	require.Equal(t, 1, pool.gets)
	require.Equal(t, 1, pool.frees)
	require.True(t, s.Disposed())
	require.Equal(t, ErrDisposed, tm.readFailure)
}
