package blockstream

import (
	"expvar"
)

var (
	blockstream = expvar.NewMap("blockstream")

	blocksHashed     expvar.Int
	blocksMismatched expvar.Int
	bytesCommitted   expvar.Int
	shortStreams     expvar.Int

	// Capacity of buffers currently lent out by class pools.
	pooledBufferBytes expvar.Int
)

func init() {
	blockstream.Set("blocks hashed", &blocksHashed)
	blockstream.Set("blocks mismatched", &blocksMismatched)
	blockstream.Set("bytes committed", &bytesCommitted)
	blockstream.Set("short streams", &shortStreams)
	blockstream.Set("pooled buffer bytes", &pooledBufferBytes)
}
