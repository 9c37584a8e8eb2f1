package pkgdist

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	peerOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pkgdist",
		Name:      "peer_outgoing_outcomes_total",
		Help:      "Outcomes of requests made to peers.",
	}, []string{"outcome"})
	peersEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pkgdist",
		Name:      "peers_evicted_total",
		Help:      "Peers removed from registries for being silent.",
	})
	segmentBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pkgdist",
		Name:      "segment_bytes_total",
		Help:      "Verified segment bytes moved, by direction.",
	}, []string{"direction"})
)

// Registers the package's collectors. Registering more than once is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{peerOutcomes, peersEvicted, segmentBytes} {
		err := reg.Register(c)
		var are prometheus.AlreadyRegisteredError
		if err != nil && !errors.As(err, &are) {
			return err
		}
	}
	return nil
}
