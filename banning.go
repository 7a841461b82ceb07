package torrent

import (
	"github.com/quietpeer/torrent/connections"
	"github.com/quietpeer/torrent/internal/netx"
)

// ShouldBanPeerFromFirewall adapts a connections.Firewall into the
// should-ban-peer hook the Dial Scheduler consults before dialing a
// candidate. A peer whose address can't be resolved to an IP/port is
// never banned by this adapter — resolution failure is not the
// firewall's concern.
func ShouldBanPeerFromFirewall(fw connections.Firewall) func(*Peer) bool {
	return func(p *Peer) bool {
		if p.Addr == nil {
			return false
		}
		ip, port, err := netx.NetIPPort(p.Addr)
		if err != nil {
			return false
		}
		return fw.Blocked(ip, port) != nil
	}
}
