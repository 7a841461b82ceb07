package torrent

import (
	"time"
	"unsafe"

	"github.com/anacrolix/multiless"
)

// cancelPending walks the global Pending Dial set and disposes the
// underlying connection handle for every entry when tm is nil, for any
// entry owned by tm otherwise, and for any entry whose stopwatch exceeds
// the stale-dial threshold. No entries
// are removed here; removal happens on each pipeline's own failure path
// once Dispose causes the in-flight Connect to fail.
func (cm *ConnectionManager) cancelPending(tm TorrentManager) {
	now := time.Now()
	for _, pd := range cm.orderedPendingDials() {
		if tm == nil || pd.Torrent == tm {
			pd.Handle.Dispose()
			continue
		}
		if pd.stale(cm.cfg.StaleDialThreshold, now) {
			pd.Handle.Dispose()
		}
	}
}

// orderedPendingDials returns the pending-dial snapshot sorted oldest
// first, breaking ties on pointer identity so the sweep order is
// deterministic across runs given the same set of entries.
func (cm *ConnectionManager) orderedPendingDials() []*PendingDial {
	entries := cm.dials.snapshot()
	sortByAgeThenIdentity(entries)
	return entries
}

func sortByAgeThenIdentity(entries []*PendingDial) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && pendingDialLess(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func pendingDialLess(l, r *PendingDial) bool {
	less, ok := multiless.New().CmpInt64(
		l.StartedAt.Sub(r.StartedAt).Nanoseconds()).Uintptr(
		uintptr(unsafe.Pointer(l)), uintptr(unsafe.Pointer(r))).LessOk()
	if !ok {
		// Identical pointer: no ordering needed.
		return false
	}
	return less
}
