package torrent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newOutboundTestManager(handle ConnHandle, negotiator EncryptionNegotiator, codec WireCodec) (*ConnectionManager, *fakeTorrentManager) {
	tm := newFakeTorrentManager()
	cm := NewConnectionManager(PeerID{1}, NewDefaultManagerConfig(), ManagerDeps{
		ConnFactory: constFactory{handle},
		Negotiator:  negotiator,
		Codec:       codec,
		BufferPool:  NewBufferPool(),
	})
	return cm, tm
}

func TestOutboundDialPromotesOnSuccess(t *testing.T) {
	peer := NewPeer(nil)
	cm, tm := newOutboundTestManager(
		&fakeConnHandle{},
		fakeNegotiator{usedMode: RC4Header},
		fakeCodec{handshake: HandshakeMessage{PeerID: PeerID{9}}},
	)

	cm.dial(tm, peer)

	waitForCondition(t, func() bool { return len(tm.lists.Connected) == 1 })
	require.Empty(t, tm.failedLog)
	require.True(t, peer.PeerID.Ok())
	require.Equal(t, PeerID{9}, peer.PeerID.Value())
	require.Len(t, tm.mode.connectedLog, 1)
}

func TestOutboundDialNarrowsEncryptionOnNegotiationFailure(t *testing.T) {
	peer := NewPeer(nil)
	cm, tm := newOutboundTestManager(
		&fakeConnHandle{},
		fakeNegotiator{failErr: ErrNoCandidate},
		fakeCodec{},
	)

	cm.dial(tm, peer)

	waitForCondition(t, func() bool { return len(tm.failedLog) == 1 })
	require.Equal(t, EncryptionNegotiationFailed, tm.failedLog[0])
	require.Equal(t, 1, peer.FailedAttempts)
	require.False(t, peer.AllowsMode(RC4Full))
	require.False(t, peer.AllowsMode(RC4Header))
	require.True(t, peer.AllowsMode(PlainText))
	require.False(t, tm.lists.InAvailable(peer))
}

func TestOutboundDialNarrowsUsedModeOnHandshakeFailure(t *testing.T) {
	peer := NewPeer(nil)
	cm, tm := newOutboundTestManager(
		&fakeConnHandle{},
		fakeNegotiator{usedMode: RC4Header},
		fakeCodec{handshakeErr: ErrDisposed},
	)

	cm.dial(tm, peer)

	waitForCondition(t, func() bool { return len(tm.failedLog) == 1 })
	require.Equal(t, HandshakeFailed, tm.failedLog[0])
	require.Equal(t, 1, peer.FailedAttempts)
	require.False(t, peer.AllowsMode(RC4Header))
	require.True(t, peer.AllowsMode(RC4Full))
	require.True(t, peer.AllowsMode(PlainText))
}

func TestOutboundDialReportsUnreachableOnConnectFailure(t *testing.T) {
	peer := NewPeer(nil)
	cm, tm := newOutboundTestManager(
		&fakeConnHandle{connectErr: ErrDisposed},
		fakeNegotiator{},
		fakeCodec{},
	)

	cm.dial(tm, peer)

	waitForCondition(t, func() bool { return len(tm.failedLog) == 1 })
	require.Equal(t, Unreachable, tm.failedLog[0])
	require.Equal(t, 1, peer.FailedAttempts)
	_, busy := tm.lists.Busy[peer]
	require.True(t, busy)
}
