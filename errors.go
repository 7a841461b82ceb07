package torrent

import (
	"github.com/quietpeer/torrent/internal/errorsx"
)

// ConnectionAttemptFailedReason classifies why an outbound dial never
// reached a live Peer Session. Carried on ConnectionAttemptFailed events so
// ban and retry policy upstream can tell a dead address from a peer that
// just doesn't speak our dialect.
type ConnectionAttemptFailedReason int

const (
	// Unreachable: the TCP-equivalent connect itself failed.
	Unreachable ConnectionAttemptFailedReason = iota
	// EncryptionNegotiationFailed: the encryption negotiator exhausted
	// every allowed mode.
	EncryptionNegotiationFailed
	// HandshakeFailed: encryption succeeded but the protocol handshake
	// did not complete.
	HandshakeFailed
	// Unknown: promotion to a live session failed for an undiagnosed
	// reason after handshake succeeded.
	Unknown
)

func (r ConnectionAttemptFailedReason) String() string {
	switch r {
	case Unreachable:
		return "unreachable"
	case EncryptionNegotiationFailed:
		return "encryption negotiation failed"
	case HandshakeFailed:
		return "handshake failed"
	case Unknown:
		return "unknown"
	default:
		return "invalid reason"
	}
}

// ErrBanned names a dial attempt rejected by the ban hook. The dial
// scheduler itself reports a ban by selecting no candidate and does not
// return this value; a ban never increments a peer's failed-attempt
// counter.
var ErrBanned = errorsx.String("peer banned")

// ErrNoCandidate names the case of a torrent with no dialable peer. The
// dial scheduler reports that case by selecting no candidate and does not
// return this value.
var ErrNoCandidate = errorsx.String("no dialable peer")

// ErrDisposed marks a connection handle, session, or pending dial that has
// already been torn down; handles return it from I/O attempted after
// Dispose.
var ErrDisposed = errorsx.String("disposed")

// ErrSelfConnect is raised by the inbound pipeline when a peer's
// self-reported identifier equals the local peer identifier.
var ErrSelfConnect = errorsx.String("self connect")

// ErrTorrentClosed builds an error for an operation attempted against a
// torrent manager that has detached from its engine. The outbound
// pipeline does not use it: a detached torrent's dial is disposed
// silently.
func ErrTorrentClosed() error {
	return errorsx.New("torrent closed")
}

// ErrTorrentNotActive marks a torrent whose mode no longer accepts
// connections.
const ErrTorrentNotActive = errorsx.String("torrent not active")
