package pkgdist

import (
	"time"
)

// Tuning for peer backoff, choking and eviction. The zero value is not useful, start from
// NewDefaultPeerPolicy.
type PeerPolicy struct {
	// Each consecutive outgoing failure ignores the peer for this much longer.
	BackoffStep time.Duration
	BackoffCap  time.Duration
	// How long a choke is believed without the peer releasing slots.
	ChokeExpiry time.Duration
	// A peer silent on every channel for this long can be evicted.
	EvictionRetention time.Duration
	// Defaults to time.Now.
	Now func() time.Time
}

func NewDefaultPeerPolicy() PeerPolicy {
	return PeerPolicy{
		BackoffStep:       20 * time.Second,
		BackoffCap:        5 * time.Minute,
		ChokeExpiry:       20 * time.Second,
		EvictionRetention: 10 * time.Minute,
	}
}

func (p *PeerPolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *PeerPolicy) backoff(failures int) time.Duration {
	return min(p.BackoffStep*time.Duration(failures), p.BackoffCap)
}
