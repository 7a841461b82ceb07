package torrent

import (
	"net"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/quietpeer/torrent/internal/x/bitmapx"
	"github.com/quietpeer/torrent/option"
)

// EncryptionMode identifies one tier of the RC4-based message stream
// encryption negotiation. Bits in a Peer's allowed-mode set, narrowed
// monotonically as negotiations fail so a retried dial never offers a
// tier that has already been refused.
type EncryptionMode int

const (
	RC4Full EncryptionMode = iota
	RC4Header
	PlainText
)

// AllEncryptionModes is the full tier set a freshly-discovered peer starts
// with.
func AllEncryptionModes() *roaring.Bitmap {
	m := roaring.New()
	m.AddInt(int(RC4Full))
	m.AddInt(int(RC4Header))
	m.AddInt(int(PlainText))
	return m
}

// Peer is the network identity of a remote endpoint, as tracked by a
// torrent's peer lists.
type Peer struct {
	// ID is a correlation identifier for this candidate's lifetime in a
	// single process, independent of pointer reuse once a Peer is dropped
	// and regenerated by discovery.
	ID uuid.UUID

	// Addr is the connection URI; for this implementation a net.Addr is
	// enough to resolve through a ConnFactory.
	Addr net.Addr

	// PeerID is the remote's self-reported identifier, known only once
	// the handshake has been received.
	PeerID option.T[PeerID]

	// FailedAttempts counts failed outbound attempts: connect, encryption
	// negotiation, and handshake failures alike. It is never reset.
	FailedAttempts int
	// CleanedUpCount counts how many times this peer's session has been
	// through cleanup; capped reinsertion into Available at ReuseCap.
	CleanedUpCount int

	// AllowedEncryption is the set of encryption tiers still worth
	// offering this peer.
	AllowedEncryption *roaring.Bitmap
}

// NewPeer creates a Peer ready for its first dial attempt.
func NewPeer(addr net.Addr) *Peer {
	return &Peer{
		ID:                uuid.New(),
		Addr:              addr,
		AllowedEncryption: AllEncryptionModes(),
	}
}

// NarrowEncryption removes the given modes from the peer's allowed set,
// leaving a strict subset behind whenever at least one of them was still
// allowed; removing modes already gone is a no-op. Uses the same bitmap helpers
// piece-selection code elsewhere uses for larger bitmaps, applied here to
// a 3-element tier set.
func (p *Peer) NarrowEncryption(remove ...EncryptionMode) {
	excl := roaring.New()
	for _, m := range remove {
		excl.AddInt(int(m))
	}
	p.AllowedEncryption = bitmapx.AndNot(p.AllowedEncryption, excl)
}

// AllowsMode reports whether m is still in the peer's allowed-encryption
// set.
func (p *Peer) AllowsMode(m EncryptionMode) bool {
	return bitmapx.Contains(p.AllowedEncryption, int(m))
}

// PeerLists holds one torrent's mutually-exclusive peer buckets. Available
// is ordered; reinserted-after-cleanup peers go to the front, so it is a
// simple slice used as a deque rather than a map.
type PeerLists struct {
	Available   []*Peer
	Connecting  map[*Peer]struct{}
	Handshaking map[*PeerSession]struct{}
	Connected   map[*PeerSession]struct{}
	Busy        map[*Peer]time.Time
	Inactive    map[*Peer]struct{}
}

// NewPeerLists returns an empty PeerLists with its maps initialized.
func NewPeerLists() *PeerLists {
	return &PeerLists{
		Connecting:  make(map[*Peer]struct{}),
		Handshaking: make(map[*PeerSession]struct{}),
		Connected:   make(map[*PeerSession]struct{}),
		Busy:        make(map[*Peer]time.Time),
		Inactive:    make(map[*Peer]struct{}),
	}
}

// ActiveCount returns |Handshaking ∪ Connected|, the torrent's Active
// peer count.
func (l *PeerLists) ActiveCount() int {
	return len(l.Handshaking) + len(l.Connected)
}

// PopAvailable removes and returns the first peer in Available for which
// accept returns true, or nil if none qualifies. Linear scan preserves
// discovery/reinsertion order.
func (l *PeerLists) PopAvailable(accept func(*Peer) bool) *Peer {
	for i, p := range l.Available {
		if !accept(p) {
			continue
		}
		l.Available = append(l.Available[:i], l.Available[i+1:]...)
		return p
	}
	return nil
}

// PushAvailableFront inserts p at the head of Available, giving the
// scheduler a preference for recently-dropped peers.
func (l *PeerLists) PushAvailableFront(p *Peer) {
	l.Available = append([]*Peer{p}, l.Available...)
}

// PushAvailableBack appends p to Available, used for freshly-discovered
// peers.
func (l *PeerLists) PushAvailableBack(p *Peer) {
	l.Available = append(l.Available, p)
}

// InAvailable reports whether p is currently in Available.
func (l *PeerLists) InAvailable(p *Peer) bool {
	for _, q := range l.Available {
		if q == p {
			return true
		}
	}
	return false
}
