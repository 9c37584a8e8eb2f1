package segments

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

type ScanCallbackValue struct {
	Index int
	Extent
}

type collectExtents []ScanCallbackValue

func (me *collectExtents) scanCallback(i int, e Extent) bool {
	*me = append(*me, ScanCallbackValue{
		Index:  i,
		Extent: e,
	})
	return true
}

type newLocater func(LengthIter) Locater

func assertLocate(t *testing.T, nl newLocater, ls []Length, needle Extent, firstExpectedIndex int, expectedExtents []Extent) {
	var actual collectExtents
	var expected collectExtents
	for i, e := range expectedExtents {
		expected.scanCallback(firstExpectedIndex+i, e)
	}
	nl(slices.Values(ls))(needle, actual.scanCallback)
	assert.EqualValues(t, expected, actual)
}

func testLocater(t *testing.T, newLocater newLocater) {
	assertLocate(t, newLocater,
		[]Length{1, 0, 2, 0, 3},
		Extent{2, 2},
		2,
		[]Extent{{1, 1}, {0, 0}, {0, 1}})
	assertLocate(t, newLocater,
		[]Length{1, 0, 2, 0, 3},
		Extent{6, 2},
		2,
		[]Extent{})
	assertLocate(t, newLocater,
		[]Length{4, 4, 4},
		Extent{3, 6},
		0,
		[]Extent{{3, 1}, {0, 4}, {0, 1}})
}

func TestScan(t *testing.T) {
	testLocater(t, LocaterFromLengthIter)
}

func TestIndex(t *testing.T) {
	testLocater(t, func(li LengthIter) Locater {
		return NewIndex(li).Locate
	})
}

func TestLocateOffset(t *testing.T) {
	index := NewIndex(slices.Values([]Length{3, 0, 5}))
	ret := index.LocateOffset(4)
	assert.True(t, ret.Ok)
	assert.Equal(t, IndexAndOffset{Index: 2, Offset: 1}, ret.Value)
	assert.False(t, index.LocateOffset(8).Ok)
}
