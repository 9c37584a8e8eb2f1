package segments

import (
	"iter"
	"sort"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/missinggo/v2/panicif"
)

func NewIndex(lengths LengthIter) (ret Index) {
	var start Length
	for l := range lengths {
		ret.segments = append(ret.segments, Extent{start, l})
		start += l
	}
	return
}

// Locates extents over consecutive segments, such as the data files of a package.
type Index struct {
	segments []Extent
}

func NewIndexFromSegments(segments []Extent) Index {
	return Index{segments}
}

// Yields the gap to each segment from the end of the previous one, and its length. This is the
// form scanConsecutive consumes.
func (me Index) relativeSegments() iter.Seq[Extent] {
	return func(yield func(Extent) bool) {
		var lastEnd g.Option[Int]
		for _, cur := range me.segments {
			ret := Extent{
				Start:  cur.Start - lastEnd.UnwrapOr(cur.Start),
				Length: cur.Length,
			}
			lastEnd.Set(cur.End())
			if !yield(ret) {
				return
			}
		}
	}
}

// Returns true if the callback never returns false, and extents are found in the index for all
// parts of the given extent.
func (me Index) Locate(e Extent, output Callback) bool {
	found := Length(0)
	for i, e1 := range me.LocateIter(e) {
		if !output(i, e1) {
			return true
		}
		found += e1.Length
	}
	return found == e.Length
}

func (me Index) LocateIter(e Extent) iter.Seq2[int, Extent] {
	return func(yield func(int, Extent) bool) {
		first := sort.Search(len(me.segments), func(i int) bool {
			_e := me.segments[i]
			return _e.End() > e.Start
		})
		if first == len(me.segments) {
			return
		}
		e.Start -= me.segments[first].Start
		// The extent is before the first segment.
		if e.Start < 0 {
			e.Length += e.Start
			e.Start = 0
		}
		rest := Index{me.segments[first:]}
		i := first
		for e1 := range scanConsecutive(rest.relativeSegments(), e) {
			if !yield(i, e1) {
				return
			}
			i++
		}
	}
}

type IndexAndOffset struct {
	Index  int
	Offset int64
}

// Returns the segment containing the given offset, and the offset within it.
func (me Index) LocateOffset(off int64) (ret g.Option[IndexAndOffset]) {
	for i, e := range me.LocateIter(Extent{off, 1}) {
		panicif.True(ret.Ok)
		panicif.NotEq(e.Length, 1)
		ret.Set(IndexAndOffset{
			Index:  i,
			Offset: e.Start,
		})
	}
	return
}

func (me Index) Index(i int) Extent {
	return me.segments[i]
}

func (me Index) Len() int {
	return len(me.segments)
}
