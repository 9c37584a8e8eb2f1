package pkgdist

import (
	"fmt"
	"time"

	"github.com/anacrolix/sync"
)

// A direction of communication with a peer.
type Channel int

const (
	// Announcements heard from the peer.
	Discovery Channel = iota
	// Requests we make to the peer.
	Outgoing
	// Requests the peer makes to us.
	Incoming
	numChannels
)

func (c Channel) String() string {
	switch c {
	case Discovery:
		return "discovery"
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Communication outcomes with a peer, and the resulting backoff. Deadlines are evaluated when
// asked, there are no timers. Safe for concurrent use.
type PeerHealth struct {
	mu          sync.Mutex
	policy      PeerPolicy
	lastSuccess [numChannels]time.Time
	lastFailure [numChannels]time.Time
	failures    int
	ignoreUntil time.Time
	dead        bool
}

func NewPeerHealth(policy PeerPolicy) *PeerHealth {
	return &PeerHealth{policy: policy}
}

// Outgoing successes inside an ignore window are dropped, so a flaky peer doesn't flap between
// usable and ignored.
func (ph *PeerHealth) ReportSuccess(ch Channel) {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	now := ph.policy.now()
	if ch != Outgoing {
		ph.lastSuccess[ch] = now
		return
	}
	if now.Before(ph.ignoreUntil) {
		return
	}
	ph.lastSuccess[ch] = now
	ph.failures = 0
	ph.ignoreUntil = time.Time{}
}

// Outgoing failures outside an ignore window extend the backoff.
func (ph *PeerHealth) ReportFailure(ch Channel) {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	now := ph.policy.now()
	if ch != Outgoing {
		ph.lastFailure[ch] = now
		return
	}
	if now.Before(ph.ignoreUntil) {
		return
	}
	ph.lastFailure[ch] = now
	ph.failures++
	ph.ignoreUntil = now.Add(ph.policy.backoff(ph.failures))
}

// The peer can never be talked to, such as when it speaks an incompatible protocol version.
func (ph *PeerHealth) MarkDead() {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	ph.dead = true
}

func (ph *PeerHealth) Dead() bool {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	return ph.dead
}

// Consecutive outgoing failures.
func (ph *PeerHealth) Failures() int {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	return ph.failures
}

func (ph *PeerHealth) IgnoreUntil() time.Time {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	return ph.ignoreUntil
}

func (ph *PeerHealth) Ignored() bool {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	return ph.policy.now().Before(ph.ignoreUntil)
}

// Not dead and not backing off.
func (ph *PeerHealth) Usable() bool {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	return !ph.dead && !ph.policy.now().Before(ph.ignoreUntil)
}

func (ph *PeerHealth) LastSuccess(ch Channel) time.Time {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	return ph.lastSuccess[ch]
}

func (ph *PeerHealth) LastFailure(ch Channel) time.Time {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	return ph.lastFailure[ch]
}

// True only when the peer has been silent on every channel for the retention window. Outgoing
// failures alone never make a peer evictable while it still talks to us.
func (ph *PeerHealth) ShouldEvict() bool {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	cutoff := ph.policy.now().Add(-ph.policy.EvictionRetention)
	for _, t := range []time.Time{
		ph.lastSuccess[Discovery],
		ph.lastFailure[Incoming],
		ph.lastSuccess[Incoming],
		ph.lastSuccess[Outgoing],
	} {
		if t.After(cutoff) {
			return false
		}
	}
	return true
}

func (ph *PeerHealth) String() string {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	if ph.dead {
		return "dead"
	}
	if ph.failures == 0 {
		return "healthy"
	}
	return fmt.Sprintf("%v failures, ignored until %v", ph.failures, ph.ignoreUntil.Format(time.TimeOnly))
}
