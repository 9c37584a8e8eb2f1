package pkgdist

import (
	"errors"

	"github.com/anacrolix/log"
)

// A remote node, keyed by its address, with its health and slot state.
type Peer struct {
	Addr   string
	Health *PeerHealth
	Slots  *PeerSlots
	logger log.Logger
}

func NewPeer(addr string, policy PeerPolicy) *Peer {
	return &Peer{
		Addr:   addr,
		Health: NewPeerHealth(policy),
		Slots:  NewPeerSlots(policy),
		logger: log.Default.WithNames("pkgdist", "peer"),
	}
}

// Records the outcome of a request to the peer. A choke only affects slots, an incompatible version
// kills the peer, and anything else backs it off. Nil is a success.
func (p *Peer) ReportOutgoingError(err error) {
	switch {
	case err == nil:
		p.Health.ReportSuccess(Outgoing)
		peerOutcomes.WithLabelValues("success").Inc()
	case errors.Is(err, ErrChoked):
		p.Slots.MarkChoked()
		peerOutcomes.WithLabelValues("choked").Inc()
	case errors.Is(err, ErrIncompatibleVersion):
		p.Health.MarkDead()
		peerOutcomes.WithLabelValues("incompatible").Inc()
		p.logger.Levelf(log.Warning, "peer %v is incompatible: %v", p.Addr, err)
	default:
		p.Health.ReportFailure(Outgoing)
		peerOutcomes.WithLabelValues("failure").Inc()
		p.logger.WithDefaultLevel(log.Debug).Printf("request to %v failed: %v", p.Addr, err)
	}
}

// Whether a request can be made to the peer right now. Consumes a credited slot if the peer is
// choked.
func (p *Peer) TryRequest() bool {
	return p.Health.Usable() && p.Slots.TryObtainSlot()
}

func (p *Peer) String() string {
	return p.Addr + ": " + p.Health.String()
}
