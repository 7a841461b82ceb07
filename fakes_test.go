package torrent

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/time/rate"
)

// fakeMonitor discards observations; sufficient for tests that don't
// assert on byte accounting.
type fakeMonitor struct{}

func (fakeMonitor) Observe(int) {}

// fakeMode is a TorrentMode stub whose policy answers are configured per
// test.
type fakeMode struct {
	accept       bool
	shouldConn   func(*Peer) bool
	connectedLog []*PeerSession
}

func (m *fakeMode) CanAcceptConnections() bool { return m.accept }
func (m *fakeMode) ShouldConnect(p *Peer) bool {
	if m.shouldConn == nil {
		return true
	}
	return m.shouldConn(p)
}
func (m *fakeMode) HandlePeerConnected(s *PeerSession) {
	m.connectedLog = append(m.connectedLog, s)
}

// fakeTorrentManager is a minimal TorrentManager stub, built with
// newFakeTorrentManager; tests populate only the fields they exercise.
type fakeTorrentManager struct {
	infoHash    InfoHash
	mode        *fakeMode
	lists       *PeerLists
	maxConns    int
	detached    bool
	failedLog   []ConnectionAttemptFailedReason
	discoLog    []*PeerSession
	readFailure error
	uploadingTo int
}

func newFakeTorrentManager() *fakeTorrentManager {
	return &fakeTorrentManager{
		mode:     &fakeMode{accept: true},
		lists:    NewPeerLists(),
		maxConns: 100,
	}
}

func (t *fakeTorrentManager) InfoHash() InfoHash        { return t.infoHash }
func (t *fakeTorrentManager) Mode() TorrentMode         { return t.mode }
func (t *fakeTorrentManager) Lists() *PeerLists         { return t.lists }
func (t *fakeTorrentManager) MaxConnections() int       { return t.maxConns }
func (t *fakeTorrentManager) Detached() bool            { return t.detached }
func (t *fakeTorrentManager) RaiseConnectionAttemptFailed(p *Peer, reason ConnectionAttemptFailedReason, cause error) {
	t.failedLog = append(t.failedLog, reason)
}
func (t *fakeTorrentManager) RaisePeerDisconnected(s *PeerSession) { t.discoLog = append(t.discoLog, s) }
func (t *fakeTorrentManager) TrySetReadFailure(err error)          { t.readFailure = err }
func (t *fakeTorrentManager) UploadingToAdd(delta int)             { t.uploadingTo += delta }
func (t *fakeTorrentManager) CancelPieceRequests(s *PeerSession)   {}
func (t *fakeTorrentManager) DisposePEX(s *PeerSession)            {}
func (t *fakeTorrentManager) UploadRateLimiter() *rate.Limiter     { return rate.NewLimiter(rate.Inf, 0) }
func (t *fakeTorrentManager) DownloadRateLimiter() *rate.Limiter   { return rate.NewLimiter(rate.Inf, 0) }
func (t *fakeTorrentManager) Monitor() Monitor                     { return fakeMonitor{} }
func (t *fakeTorrentManager) PrepareHandshake(local PeerID) []byte { return nil }

// fakeConnFactory never actually connects; New reports ok per its accept
// field so tests can exercise the "factory declines" abort path.
type fakeConnFactory struct {
	accept bool
}

func (f *fakeConnFactory) New(p *Peer) (ConnHandle, bool) {
	if !f.accept {
		return nil, false
	}
	return &fakeConnHandle{}, true
}

// fakeConnHandle's Connect returns connectErr immediately, so it succeeds
// unless connectErr is set; its Read and Write move no bytes.
type fakeConnHandle struct {
	connectErr error
	disposed   bool
}

func (h *fakeConnHandle) Connect(ctx context.Context) error   { return h.connectErr }
func (h *fakeConnHandle) CanReconnect() bool                  { return true }
func (h *fakeConnHandle) Dispose() error                      { h.disposed = true; return nil }
func (h *fakeConnHandle) Read(p []byte) (int, error)          { return 0, nil }
func (h *fakeConnHandle) Write(p []byte) (int, error)         { return 0, nil }
func (h *fakeConnHandle) Close() error                        { return h.Dispose() }
func (h *fakeConnHandle) LocalAddr() net.Addr                 { return nil }
func (h *fakeConnHandle) RemoteAddr() net.Addr                { return nil }
func (h *fakeConnHandle) SetDeadline(t time.Time) error       { return nil }
func (h *fakeConnHandle) SetReadDeadline(t time.Time) error   { return nil }
func (h *fakeConnHandle) SetWriteDeadline(t time.Time) error  { return nil }

// constFactory always returns the same handle, letting a test observe
// exactly one dial attempt's lifecycle.
type constFactory struct{ handle ConnHandle }

func (f constFactory) New(p *Peer) (ConnHandle, bool) { return f.handle, true }

// fakeCodec never actually frames anything on the wire. ReceiveMessage
// blocks forever so admission tests can assert on state right after a
// session is promoted without racing the receive loop's own cleanup.
type fakeCodec struct {
	handshake    HandshakeMessage
	handshakeErr error
}

func (c fakeCodec) ReceiveHandshake(ctx context.Context, conn net.Conn, d Decryptor) (HandshakeMessage, error) {
	return c.handshake, c.handshakeErr
}
func (c fakeCodec) ReceiveMessage(ctx context.Context, conn net.Conn, d Decryptor, down *rate.Limiter, peerMon, torrentMon Monitor) (PeerMessage, error) {
	<-make(chan struct{})
	return PeerMessage{}, nil
}
func (c fakeCodec) SendMessage(ctx context.Context, conn net.Conn, e Encryptor, msg PeerMessage, up *rate.Limiter, peerMon, torrentMon Monitor) error {
	return nil
}

// fakeNegotiator resolves outbound encryption negotiation with a
// pre-configured outcome; failErr non-nil simulates every allowed tier
// being refused.
type fakeNegotiator struct {
	usedMode EncryptionMode
	failErr  error
}

func (n fakeNegotiator) CheckOutgoing(ctx context.Context, conn net.Conn, allowed *roaring.Bitmap, settings EncryptionPolicy, infoHash InfoHash, prepared []byte) (Encryptor, Decryptor, EncryptionMode, error) {
	if n.failErr != nil {
		return nil, nil, 0, n.failErr
	}
	return nil, nil, n.usedMode, nil
}

// blockingConnHandle's Connect blocks until Dispose is called, then
// returns a cancellation-class error, exercising disposal as the
// universal cancellation primitive.
type blockingConnHandle struct {
	fakeConnHandle
	done chan struct{}
}

func newBlockingConnHandle() *blockingConnHandle {
	return &blockingConnHandle{done: make(chan struct{})}
}

func (h *blockingConnHandle) Connect(ctx context.Context) error {
	<-h.done
	return ErrDisposed
}

func (h *blockingConnHandle) Dispose() error {
	h.disposed = true
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	return nil
}

// countingBufferPool tracks outstanding Get/Free calls so tests can assert
// on buffer conservation (exactly one Free per Get).
type countingBufferPool struct {
	gets, frees int
}

func (p *countingBufferPool) Get(length int) []byte {
	p.gets++
	return make([]byte, length)
}

func (p *countingBufferPool) Free(buf []byte) {
	p.frees++
}

// fakeDisk simulates the piece-read collaborator; readErr makes every
// read fail, exercising the sendOne failure path.
type fakeDisk struct {
	readErr error
}

func (d fakeDisk) Read(ctx context.Context, tm TorrentManager, absoluteOffset int64, buffer []byte, length int) error {
	return d.readErr
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
