package torrent

import (
	"time"

	"github.com/anacrolix/sync"
)

// PendingDial records one in-flight outbound connect attempt. The set of
// pending dials is global, not per-torrent, so cancellation can be scoped
// to "everything" or "one torrent" uniformly.
type PendingDial struct {
	Torrent   TorrentManager
	Peer      *Peer
	Handle    ConnHandle
	StartedAt time.Time
}

func (d *PendingDial) stale(threshold time.Duration, now time.Time) bool {
	return now.Sub(d.StartedAt) > threshold
}

// pendingDials is the Connection Manager's registry of PendingDial
// records. Entries are added by the scheduler and removed by each dial's
// own goroutine once Connect returns, so every access takes mu.
type pendingDials struct {
	mu      sync.Mutex
	entries map[*PendingDial]struct{}
}

func newPendingDials() *pendingDials {
	return &pendingDials{entries: make(map[*PendingDial]struct{})}
}

func (p *pendingDials) add(d *PendingDial) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[d] = struct{}{}
}

func (p *pendingDials) remove(d *PendingDial) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, d)
}

func (p *pendingDials) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// snapshot returns the currently pending dials. Taken under lock but
// iterated outside it, since disposing a handle may itself trigger
// removal from this set on the failure path; the snapshot itself never
// mutates the registry.
func (p *pendingDials) snapshot() []*PendingDial {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*PendingDial, 0, len(p.entries))
	for d := range p.entries {
		out = append(out, d)
	}
	return out
}
