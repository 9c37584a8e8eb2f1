package pkgdist

import (
	"expvar"
)

func init() {
	pkgdist.Set("segments committed", &segmentsCommitted)
	pkgdist.Set("segments rejected", &segmentsRejected)
	pkgdist.Set("segments served", &segmentsServed)
}

var (
	pkgdist = expvar.NewMap("pkgdist")

	segmentsCommitted expvar.Int
	// Received segments that failed verification.
	segmentsRejected expvar.Int
	segmentsServed   expvar.Int
	// Requests received for segments we don't have.
	requestsForMissingSegments = expvar.NewInt("pkgdistRequestsForMissingSegments")
)
