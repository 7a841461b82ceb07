package torrent

import (
	"context"
	"net"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/time/rate"
)

// InfoHash identifies a torrent; kept as a distinct name from PeerID even
// though both are 20 bytes, since the two are never interchangeable
// despite sharing a representation.
type InfoHash [20]byte

// ConnHandle is a connection the outbound pipeline can connect, dispose,
// and read/write once negotiation completes. Disposing a handle is the
// universal cancellation primitive: every pending and future I/O on it
// fails.
type ConnHandle interface {
	net.Conn
	// Connect performs the TCP-equivalent connect. It is the outbound
	// pipeline's first suspension point.
	Connect(ctx context.Context) error
	// CanReconnect reports whether this transport supports being dialed
	// again later (used by cleanup's reuse decision).
	CanReconnect() bool
	// Dispose tears down the handle, causing any in-flight or future
	// Connect/Read/Write to fail. Idempotent.
	Dispose() error
}

// ConnFactory resolves a Peer's address to a not-yet-connected ConnHandle.
// Returning ok=false means the factory declined (e.g. no dialer for this
// network); the outbound pipeline aborts silently without touching any
// counters.
type ConnFactory interface {
	New(peer *Peer) (handle ConnHandle, ok bool)
}

// TorrentMode is the polymorphic policy object attached to a TorrentManager,
// deciding whether and which peers this torrent wants connected. The
// Connection Manager never second-guesses its answers.
type TorrentMode interface {
	CanAcceptConnections() bool
	ShouldConnect(p *Peer) bool
	HandlePeerConnected(s *PeerSession)
}

// Monitor is a torrent- or peer-level byte-accounting sink; sending and
// receiving a message reports transferred bytes to both a peer and a
// torrent Monitor.
type Monitor interface {
	Observe(n int)
}

// TorrentManager is the external collaborator owning one torrent's peer
// lists, mode, limiters, and event surfaces. The Connection Manager
// mutates peer lists only through the named hooks and the PeerLists
// accessor.
type TorrentManager interface {
	InfoHash() InfoHash
	Mode() TorrentMode
	Lists() *PeerLists
	// MaxConnections is this torrent's own per-torrent connected-peer cap.
	MaxConnections() int
	// Detached reports whether this torrent has left its engine; the
	// outbound pipeline's post-connect admission check consults it.
	Detached() bool

	RaiseConnectionAttemptFailed(peer *Peer, reason ConnectionAttemptFailedReason, cause error)
	RaisePeerDisconnected(s *PeerSession)
	TrySetReadFailure(err error)

	// UploadingToAdd adjusts the torrent's uploading-to counter; cleanup
	// decrements it for sessions that were not choking.
	UploadingToAdd(delta int)
	// CancelPieceRequests cancels any in-flight piece requests the given
	// session had registered with the piece picker.
	CancelPieceRequests(s *PeerSession)
	// DisposePEX tears down a per-session peer-exchange manager, if one
	// was attached.
	DisposePEX(s *PeerSession)

	UploadRateLimiter() *rate.Limiter
	DownloadRateLimiter() *rate.Limiter
	Monitor() Monitor

	// PrepareHandshake builds the outbound handshake payload for the
	// given local peer identifier.
	PrepareHandshake(local PeerID) []byte
}

// Encryptor and Decryptor are the product of encryption negotiation: a
// write-side and read-side transform over the raw connection. Concrete
// implementations live outside this package.
type Encryptor interface {
	EncryptTo(conn net.Conn, p []byte) (n int, err error)
}

type Decryptor interface {
	DecryptFrom(conn net.Conn, p []byte) (n int, err error)
}

// EncryptionNegotiator is the single external hook for outbound encryption
// negotiation. Inbound negotiation happens below the Connection Manager,
// already resolved by the time the Inbound Pipeline sees a PeerSession.
type EncryptionNegotiator interface {
	CheckOutgoing(
		ctx context.Context,
		conn net.Conn,
		allowed *roaring.Bitmap,
		settings EncryptionPolicy,
		infoHash InfoHash,
		preparedHandshake []byte,
	) (enc Encryptor, dec Decryptor, used EncryptionMode, err error)
}

// HandshakeMessage is the fixed-format message exchanged immediately after
// encryption negotiation.
type HandshakeMessage struct {
	InfoHash InfoHash
	PeerID   PeerID
}

// MessageKind distinguishes the one message shape the Connection Manager
// must special-case (carrying a pool-managed piece buffer) from every
// other protocol message, which it forwards opaquely.
type MessageKind int

const (
	MessageGeneric MessageKind = iota
	MessagePiece
)

// PeerMessage is a protocol message read from or destined for the wire.
// Only MessagePiece's Buffer is pool-managed; other kinds carry whatever
// opaque payload the wire codec produced.
type PeerMessage struct {
	Kind MessageKind

	// Valid when Kind == MessagePiece.
	PieceAbsoluteOffset int64
	PieceLength         int
	// Buffer is borrowed from the shared BufferPool for outbound piece
	// messages (populated by a disk read) and for inbound piece messages
	// (populated by the wire codec on receive). Ownership passes
	// pool -> message -> network (or network -> message -> handler) and
	// must be returned exactly once on every exit path.
	Buffer []byte

	Payload interface{}
}

// WireCodec frames and parses protocol messages over a negotiated cipher.
// Chunk size tuning is this codec's concern, not the Connection Manager's.
type WireCodec interface {
	ReceiveHandshake(ctx context.Context, conn net.Conn, d Decryptor) (HandshakeMessage, error)
	ReceiveMessage(ctx context.Context, conn net.Conn, d Decryptor, down *rate.Limiter, peerMon, torrentMon Monitor) (PeerMessage, error)
	SendMessage(ctx context.Context, conn net.Conn, e Encryptor, msg PeerMessage, up *rate.Limiter, peerMon, torrentMon Monitor) error
}

// DiskManager reads piece data for outbound piece messages.
type DiskManager interface {
	Read(ctx context.Context, tm TorrentManager, absoluteOffset int64, buffer []byte, length int) error
}

// BufferPool is the process-wide pool piece buffers are borrowed from and
// returned to; exactly one Free per Get on every exit path.
type BufferPool interface {
	Get(length int) []byte
	Free(buf []byte)
}
