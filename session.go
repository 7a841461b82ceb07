package torrent

import (
	"context"
	"time"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"github.com/anacrolix/sync"
	"github.com/google/uuid"
)

// PeerSession is the per-peer runtime state created on a successful
// handshake. One session owns exactly one send-queue pump and one receive
// loop; both run concurrently but every mutation of session lists and
// counters is serialized by the main loop.
type PeerSession struct {
	ID       uuid.UUID
	Torrent  TorrentManager
	Peer     *Peer
	Conn     ConnHandle
	Enc      Encryptor
	Dec      Decryptor
	UsedMode EncryptionMode

	manager *ConnectionManager
	codec   WireCodec
	disk    DiskManager
	pool    BufferPool
	logger  log.Logger

	mu              sync.Mutex
	queue           []PeerMessage
	processingQueue bool
	choking         bool
	interested      bool

	disposed  chansync.SetOnce
	queueCond chansync.BroadcastCond

	WhenConnected         time.Time
	LastMessageSent       time.Time
	LastMessageReceived   time.Time
	LastBlockReceived     time.Time
	PiecesSent            int
	RequestingPiecesCount int
}

func newPeerSession(cm *ConnectionManager, tm TorrentManager, p *Peer, h ConnHandle, enc Encryptor, dec Decryptor, mode EncryptionMode) *PeerSession {
	now := time.Now()
	return &PeerSession{
		ID:                  uuid.New(),
		Torrent:             tm,
		Peer:                p,
		Conn:                h,
		Enc:                 enc,
		Dec:                 dec,
		UsedMode:            mode,
		manager:             cm,
		codec:               cm.codec,
		disk:                cm.disk,
		pool:                cm.bufferPool,
		logger:              cm.cfg.Logger.WithNames("session", p.ID.String()),
		LastMessageSent:     now,
		LastMessageReceived: now,
	}
}

// Disposed reports whether cleanup has already torn this session down.
func (s *PeerSession) Disposed() bool {
	return s.disposed.IsSet()
}

// Choking reports the session's local choke state toward the remote peer.
func (s *PeerSession) Choking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.choking
}

// SetChoking updates the local choke state.
func (s *PeerSession) SetChoking(v bool) {
	s.mu.Lock()
	s.choking = v
	s.mu.Unlock()
}

// Enqueue appends msg to the send queue and starts the pump if it isn't
// already running. At most one pump goroutine runs per session at a time.
func (s *PeerSession) Enqueue(msg PeerMessage) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	start := !s.processingQueue
	if start {
		s.processingQueue = true
	}
	s.mu.Unlock()
	s.queueCond.Broadcast()
	if start {
		go s.runSendPump()
	}
}

func (s *PeerSession) dequeue() (PeerMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		s.processingQueue = false
		return PeerMessage{}, false
	}
	m := s.queue[0]
	s.queue = s.queue[1:]
	return m, true
}

// runSendPump drains the send queue, one message at a time, until it is
// empty or a message fails to send. Every exit path frees a piece
// message's buffer exactly once; a failed sendOne has already disposed
// the session, so the pump must not dequeue anything further.
func (s *PeerSession) runSendPump() {
	ctx := context.Background()
	for {
		msg, ok := s.dequeue()
		if !ok {
			return
		}
		if !s.sendOne(ctx, msg) {
			return
		}
	}
}

// sendOne sends msg and reports whether it succeeded. On failure it has
// already called cleanup; the caller must stop pumping.
func (s *PeerSession) sendOne(ctx context.Context, msg PeerMessage) bool {
	var freed bool
	free := func() {
		if !freed && msg.Kind == MessagePiece && msg.Buffer != nil {
			s.pool.Free(msg.Buffer)
			freed = true
		}
	}
	defer free()

	if msg.Kind == MessagePiece {
		msg.Buffer = s.pool.Get(msg.PieceLength)
		if err := s.disk.Read(ctx, s.Torrent, msg.PieceAbsoluteOffset, msg.Buffer, msg.PieceLength); err != nil {
			s.Torrent.TrySetReadFailure(err)
			s.manager.cleanup(s)
			return false
		}
	}

	err := s.codec.SendMessage(ctx, s.Conn, s.Enc, msg, s.manager.cfg.UploadRateLimiter, sessionMonitor{s}, s.Torrent.Monitor())
	if err != nil {
		s.manager.cleanup(s)
		return false
	}

	if msg.Kind == MessagePiece {
		s.mu.Lock()
		s.RequestingPiecesCount--
		s.PiecesSent++
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.LastMessageSent = time.Now()
	s.mu.Unlock()
	return true
}

// runReceiveLoop reads framed messages until error or disposal, dispatching
// each to its per-message handler.
func (s *PeerSession) runReceiveLoop(ctx context.Context, handle func(*PeerSession, PeerMessage)) {
	for {
		msg, err := s.codec.ReceiveMessage(ctx, s.Conn, s.Dec, s.manager.cfg.DownloadRateLimiter, sessionMonitor{s}, s.Torrent.Monitor())
		if err != nil {
			s.manager.cleanup(s)
			return
		}

		if s.Disposed() {
			if msg.Kind == MessagePiece && msg.Buffer != nil {
				s.pool.Free(msg.Buffer)
			}
			continue
		}

		s.mu.Lock()
		s.LastMessageReceived = time.Now()
		if msg.Kind == MessagePiece {
			s.LastBlockReceived = time.Now()
		}
		s.mu.Unlock()

		if handle != nil {
			handle(s, msg)
		}
	}
}

// sessionMonitor adapts a PeerSession into the per-peer Monitor the wire
// codec expects for byte accounting.
type sessionMonitor struct{ s *PeerSession }

func (m sessionMonitor) Observe(n int) {}
