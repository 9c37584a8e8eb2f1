package segments

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/go-quicktest/qt"
)

const mib = 1 << 20

func mustLayout(t testing.TB, segmentLength, dataFileLength, size Length) Layout {
	s, err := NewSplit(segmentLength, dataFileLength)
	qt.Assert(t, qt.IsNil(err))
	l, err := s.Layout(size)
	qt.Assert(t, qt.IsNil(err))
	return l
}

func TestNewSplitValidation(t *testing.T) {
	for _, c := range []struct {
		segment, dataFile Length
	}{
		{0, 10},
		{-1, 10},
		{4, 0},
		{4, 10},
		{4, -8},
	} {
		_, err := NewSplit(c.segment, c.dataFile)
		qt.Check(t, qt.IsTrue(errors.Is(err, ErrInvalidSplit)), qt.Commentf("%+v", c))
	}
	s, err := NewSplit(4, 12)
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.Equals(s.SegmentsPerDataFile(), int64(3)))
	_, err = s.Layout(-1)
	qt.Check(t, qt.ErrorIs(err, ErrInvalidSplit))
}

func TestFractionalLastSegment(t *testing.T) {
	size := Length(mib * 22 / 10)
	l := mustLayout(t, mib, 4*mib, size)
	addrs := slices.Collect(l.Addresses())
	qt.Assert(t, qt.HasLen(addrs, 3))
	qt.Check(t, qt.Equals(addrs[0].Length, Length(mib)))
	qt.Check(t, qt.Equals(addrs[1].Length, Length(mib)))
	qt.Check(t, qt.Equals(addrs[2].Length, Length(209715)))
	qt.Check(t, qt.Equals(l.DataFileCount(), 1))
	qt.Check(t, qt.Equals(l.DataFileLengthAt(0), size))
}

func TestAddressOf(t *testing.T) {
	l := mustLayout(t, 4, 12, 30)
	qt.Check(t, qt.Equals(l.SegmentCount(), int64(8)))
	qt.Check(t, qt.Equals(l.DataFileCount(), 3))
	qt.Check(t, qt.Equals(l.AddressOf(0), Address{Index: 0, DataFile: 0, Offset: 0, Length: 4}))
	qt.Check(t, qt.Equals(l.AddressOf(4), Address{Index: 4, DataFile: 1, Offset: 4, Length: 4}))
	qt.Check(t, qt.Equals(l.AddressOf(7), Address{Index: 7, DataFile: 2, Offset: 4, Length: 2}))
	qt.Check(t, qt.Equals(l.DataFileLengthAt(2), Length(6)))
	qt.Check(t, qt.Equals(l.DataFileLengthAt(1), Length(12)))
}

func TestAddressesForKeepsOrder(t *testing.T) {
	l := mustLayout(t, 4, 8, 30)
	var got []int64
	for a := range l.AddressesFor([]int64{5, 0, 7, 5}) {
		got = append(got, a.Index)
	}
	qt.Check(t, qt.DeepEquals(got, []int64{5, 0, 7, 5}))
}

func TestAddressesRestartable(t *testing.T) {
	l := mustLayout(t, 3, 9, 20)
	first := slices.Collect(l.Addresses())
	second := slices.Collect(l.Addresses())
	qt.Check(t, qt.DeepEquals(first, second))
}

func TestEmptyPackage(t *testing.T) {
	l := mustLayout(t, 4, 8, 0)
	qt.Check(t, qt.Equals(l.SegmentCount(), int64(0)))
	qt.Check(t, qt.Equals(l.DataFileCount(), 0))
	qt.Check(t, qt.HasLen(slices.Collect(l.Addresses()), 0))
}

// Address lengths sum to the size, there is one address per segment, and every address sits inside
// its data file.
func TestLayoutProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		segmentLength := Length(r.IntN(64) + 1)
		dataFileLength := segmentLength * Length(r.IntN(8)+1)
		size := Length(r.IntN(4096))
		l := mustLayout(t, segmentLength, dataFileLength, size)
		var sum Length
		var count int64
		for a := range l.Addresses() {
			qt.Assert(t, qt.Equals(a.Index, count))
			qt.Assert(t, qt.IsTrue(a.Length > 0))
			qt.Assert(t, qt.IsTrue(a.Offset+a.Length <= l.DataFileLengthAt(a.DataFile)))
			sum += a.Length
			count++
		}
		qt.Assert(t, qt.Equals(sum, size))
		qt.Assert(t, qt.Equals(count, (size+segmentLength-1)/segmentLength))
		var fileSum Length
		for fl := range l.DataFileLengths() {
			fileSum += fl
		}
		qt.Assert(t, qt.Equals(fileSum, size))
	}
}

func TestDataFileIndexLocatesSegments(t *testing.T) {
	l := mustLayout(t, 4, 8, 30)
	index := l.DataFileIndex()
	for a := range l.Addresses() {
		var hits []Extent
		index.Locate(Extent{l.SegmentOffset(a.Index), a.Length}, func(i int, e Extent) bool {
			qt.Check(t, qt.Equals(i, a.DataFile))
			hits = append(hits, e)
			return true
		})
		qt.Check(t, qt.DeepEquals(hits, []Extent{a.Extent()}))
	}
}
