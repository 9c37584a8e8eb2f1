package blockstream

import (
	"fmt"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/missinggo/v2/panicif"

	"github.com/anacrolix/pkgdist/metainfo"
	"github.com/anacrolix/pkgdist/types/pkghash"
)

// Decides how a stream is cut into blocks and what happens to each block's hash. The set of
// behaviours is closed: *Compute, *Verify and *VerifySubset.
type Behavior interface {
	// The stream length if it's known up front.
	TotalLength() g.Option[int64]
	// The length of the given block. None ends the stream.
	NextBlockMaxSize(block int) g.Option[int64]
	// Called once all of a block's bytes have passed through. A returned error fails the stream,
	// and with buffering the block is never committed.
	OnBlockHashComputed(hash pkghash.T, block int, length int64) error
	// The buffer capacity if blocks are held until their hash is accepted.
	Buffering() g.Option[int64]

	behavior()
}

var (
	_ Behavior = (*Compute)(nil)
	_ Behavior = (*Verify)(nil)
	_ Behavior = (*VerifySubset)(nil)
)

// Records block hashes. Used when authoring a package, or rechecking data of unknown integrity.
type Compute struct {
	segmentLength int64
	totalLength   g.Option[int64]
	hashes        []pkghash.T
	length        int64
}

// Total length may be unknown, in which case the stream ends when the writer is closed.
func NewCompute(segmentLength int64, totalLength g.Option[int64]) *Compute {
	panicif.True(segmentLength <= 0)
	return &Compute{
		segmentLength: segmentLength,
		totalLength:   totalLength,
	}
}

func (me *Compute) TotalLength() g.Option[int64] {
	return me.totalLength
}

func (me *Compute) NextBlockMaxSize(block int) g.Option[int64] {
	if !me.totalLength.Ok {
		return g.Some(me.segmentLength)
	}
	off := int64(block) * me.segmentLength
	if off >= me.totalLength.Value {
		return g.None[int64]()
	}
	return g.Some(min(me.segmentLength, me.totalLength.Value-off))
}

func (me *Compute) OnBlockHashComputed(hash pkghash.T, block int, length int64) error {
	panicif.NotEq(block, len(me.hashes))
	me.hashes = append(me.hashes, hash)
	me.length += length
	return nil
}

// Computed hashes are never rejected, so there's nothing to hold back.
func (me *Compute) Buffering() g.Option[int64] {
	return g.None[int64]()
}

// Hashes of the blocks seen so far, in order.
func (me *Compute) Hashes() []pkghash.T {
	return me.hashes
}

// Bytes hashed so far.
func (me *Compute) Length() int64 {
	return me.length
}

func (*Compute) behavior() {}

func verifyBlock(def *metainfo.Definition, segment int64, hash pkghash.T, length int64) error {
	expectedLength := def.Layout().SegmentLengthAt(segment)
	expected := def.SegmentHash(segment)
	if length == expectedLength && hash == expected {
		return nil
	}
	blocksMismatched.Add(1)
	return &HashMismatchError{
		Segment:        segment,
		Expected:       expected,
		Actual:         hash,
		ExpectedLength: expectedLength,
		ActualLength:   length,
	}
}

// Checks a whole package against its definition.
type Verify struct {
	def      *metainfo.Definition
	buffered bool
}

func NewVerify(def *metainfo.Definition, buffered bool) *Verify {
	return &Verify{def: def, buffered: buffered}
}

func (me *Verify) TotalLength() g.Option[int64] {
	return g.Some(me.def.Size)
}

func (me *Verify) NextBlockMaxSize(block int) g.Option[int64] {
	if int64(block) >= me.def.SegmentCount() {
		return g.None[int64]()
	}
	return g.Some(me.def.Layout().SegmentLengthAt(int64(block)))
}

func (me *Verify) OnBlockHashComputed(hash pkghash.T, block int, length int64) error {
	return verifyBlock(me.def, int64(block), hash, length)
}

func (me *Verify) Buffering() g.Option[int64] {
	if me.buffered {
		return g.Some(min(me.def.Split.SegmentLength, me.def.Size))
	}
	return g.None[int64]()
}

func (*Verify) behavior() {}

// Checks a sequence of segments, in the order they were requested. Block i of the stream is
// segment indices[i].
type VerifySubset struct {
	def      *metainfo.Definition
	indices  []int64
	buffered bool
	total    int64
	maxBlock int64
}

func NewVerifySubset(def *metainfo.Definition, indices []int64, buffered bool) (*VerifySubset, error) {
	layout := def.Layout()
	count := layout.SegmentCount()
	var total, maxBlock int64
	for _, i := range indices {
		if i < 0 || i >= count {
			return nil, fmt.Errorf("%w: segment %v not in [0, %v)", ErrInvalidStream, i, count)
		}
		length := layout.SegmentLengthAt(i)
		total += length
		maxBlock = max(maxBlock, length)
	}
	return &VerifySubset{
		def:      def,
		indices:  indices,
		buffered: buffered,
		total:    total,
		maxBlock: maxBlock,
	}, nil
}

func (me *VerifySubset) TotalLength() g.Option[int64] {
	return g.Some(me.total)
}

func (me *VerifySubset) NextBlockMaxSize(block int) g.Option[int64] {
	if block >= len(me.indices) {
		return g.None[int64]()
	}
	return g.Some(me.def.Layout().SegmentLengthAt(me.indices[block]))
}

func (me *VerifySubset) OnBlockHashComputed(hash pkghash.T, block int, length int64) error {
	return verifyBlock(me.def, me.indices[block], hash, length)
}

// Sized to the longest requested segment, which is less than the segment length when only the
// final segment is requested.
func (me *VerifySubset) Buffering() g.Option[int64] {
	if me.buffered {
		return g.Some(me.maxBlock)
	}
	return g.None[int64]()
}

// The segment index carried by the given block.
func (me *VerifySubset) Segment(block int) int64 {
	return me.indices[block]
}

func (*VerifySubset) behavior() {}
