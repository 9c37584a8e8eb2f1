/*
Package pkgdist distributes immutable, content-addressed packages between peers.

A package is an opaque payload cut into fixed-size segments, and identified by the hash of its
concatenated segment hashes (see the metainfo package). This package tracks which segments are held
locally and which are in flight (DownloadState), how healthy each peer is (PeerHealth, PeerSlots,
PeerRegistry), and glues these to verified streams over data files (Package).

Simple example:

	state := pkgdist.NewPendingDownloadState(def)
	state.SetDownloading(true)
	indices, _ := state.Reserve(remoteStatus, 4)
	committed, err := pkg.ReceiveSegments(ctx, response, indices)
	peer.ReportOutgoingError(err)
*/
package pkgdist
