package segments

import (
	"errors"
	"fmt"
	"iter"

	"github.com/anacrolix/missinggo/v2/panicif"
	"golang.org/x/exp/constraints"
)

var ErrInvalidSplit = errors.New("invalid split")

// a/b rounding up
func intCeilDiv[T constraints.Integer](a, b T) T {
	// Only meaningful for non-negative a and positive b, which is all we deal with.
	return (a + b - 1) / b
}

// Describes how a package's bytes are cut into segments, and how segments are grouped into data
// files. DataFileLength is always an exact multiple of SegmentLength.
type Split struct {
	SegmentLength  Length `bencode:"segment length"`
	DataFileLength Length `bencode:"data file length"`
}

func NewSplit(segmentLength, dataFileLength Length) (ret Split, err error) {
	ret = Split{
		SegmentLength:  segmentLength,
		DataFileLength: dataFileLength,
	}
	err = ret.Validate()
	return
}

func (s Split) Validate() error {
	if s.SegmentLength <= 0 {
		return fmt.Errorf("%w: segment length %v must be positive", ErrInvalidSplit, s.SegmentLength)
	}
	if s.DataFileLength <= 0 || s.DataFileLength%s.SegmentLength != 0 {
		return fmt.Errorf(
			"%w: data file length %v must be a positive multiple of segment length %v",
			ErrInvalidSplit, s.DataFileLength, s.SegmentLength)
	}
	return nil
}

func (s Split) SegmentsPerDataFile() int64 {
	return s.DataFileLength / s.SegmentLength
}

// Binds the split to a package size.
func (s Split) Layout(size Length) (ret Layout, err error) {
	err = s.Validate()
	if err != nil {
		return
	}
	if size < 0 {
		err = fmt.Errorf("%w: negative package size %v", ErrInvalidSplit, size)
		return
	}
	ret = Layout{Split: s, Size: size}
	return
}

// Where a segment lives. Offset is relative to the start of the data file.
type Address struct {
	Index    int64
	DataFile int
	Offset   Int
	Length   Length
}

// The bounds of the segment within its data file.
func (a Address) Extent() Extent {
	return Extent{a.Offset, a.Length}
}

func (a Address) String() string {
	return fmt.Sprintf("segment %v: %v bytes at %v in data file %v", a.Index, a.Length, a.Offset, a.DataFile)
}

// A Split bound to a package size. The zero value is an empty layout with no segments, and is not
// useful.
type Layout struct {
	Split
	Size Length
}

func (l Layout) SegmentCount() int64 {
	return intCeilDiv(l.Size, l.SegmentLength)
}

func (l Layout) DataFileCount() int {
	return int(intCeilDiv(l.Size, l.DataFileLength))
}

func lastLength(size, unit Length) Length {
	if rem := size % unit; rem != 0 {
		return rem
	}
	return unit
}

func (l Layout) SegmentLengthAt(i int64) Length {
	n := l.SegmentCount()
	panicif.True(i < 0 || i >= n)
	if i == n-1 {
		return lastLength(l.Size, l.SegmentLength)
	}
	return l.SegmentLength
}

func (l Layout) DataFileLengthAt(f int) Length {
	n := l.DataFileCount()
	panicif.True(f < 0 || f >= n)
	if f == n-1 {
		return lastLength(l.Size, l.DataFileLength)
	}
	return l.DataFileLength
}

// Byte offset of the segment within the package.
func (l Layout) SegmentOffset(i int64) Int {
	return i * l.SegmentLength
}

func (l Layout) AddressOf(i int64) Address {
	per := l.SegmentsPerDataFile()
	return Address{
		Index:    i,
		DataFile: int(i / per),
		Offset:   (i % per) * l.SegmentLength,
		Length:   l.SegmentLengthAt(i),
	}
}

// All segment addresses in ascending index order. The sequence can be iterated any number of
// times.
func (l Layout) Addresses() iter.Seq[Address] {
	return func(yield func(Address) bool) {
		for i := range l.SegmentCount() {
			if !yield(l.AddressOf(i)) {
				return
			}
		}
	}
}

// Addresses for the given segment indices, in the order given. Indices must be valid for the
// layout.
func (l Layout) AddressesFor(indices []int64) iter.Seq[Address] {
	return func(yield func(Address) bool) {
		for _, i := range indices {
			if !yield(l.AddressOf(i)) {
				return
			}
		}
	}
}

func (l Layout) DataFileLengths() LengthIter {
	return func(yield func(Length) bool) {
		for f := range l.DataFileCount() {
			if !yield(l.DataFileLengthAt(f)) {
				return
			}
		}
	}
}

// An extent index over the data files, for locating package byte ranges within them.
func (l Layout) DataFileIndex() Index {
	return NewIndex(l.DataFileLengths())
}
