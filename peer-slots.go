package pkgdist

import (
	"time"

	"github.com/anacrolix/sync"
)

// Tracks a peer's choke signals. A choke expires after a while, and slots we give back to the
// peer while choked are credited so we don't wait out the whole expiry.
type PeerSlots struct {
	mu          sync.Mutex
	policy      PeerPolicy
	chokedUntil time.Time
	released    int
}

func NewPeerSlots(policy PeerPolicy) *PeerSlots {
	return &PeerSlots{policy: policy}
}

func (ps *PeerSlots) MarkChoked() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.released = 0
	ps.chokedUntil = ps.policy.now().Add(ps.policy.ChokeExpiry)
}

// Called when we stop using a slot at the peer.
func (ps *PeerSlots) ReleaseSlot() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.policy.now().Before(ps.chokedUntil) {
		ps.released++
	}
}

// Whether a request may be made. Consumes a credited slot if the peer is still choked.
func (ps *PeerSlots) TryObtainSlot() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if !ps.policy.now().Before(ps.chokedUntil) {
		return true
	}
	if ps.released > 0 {
		ps.released--
		return true
	}
	return false
}

func (ps *PeerSlots) Choked() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.policy.now().Before(ps.chokedUntil)
}
