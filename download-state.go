package pkgdist

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
	"slices"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/chansync/events"
	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/anacrolix/sync"
	"github.com/dustin/go-humanize"

	"github.com/anacrolix/pkgdist/metainfo"
	"github.com/anacrolix/pkgdist/segments"
	typedRoaring "github.com/anacrolix/pkgdist/typed-roaring"
)

// A source of uniformly distributed ints in [0, n). Must be safe for concurrent use if shared.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int {
	return rand.IntN(n)
}

// A peer's advertised possession of a package.
type RemoteStatus struct {
	// MSB-first, one bit per segment. Nil if the remote has the whole package.
	Bitmap          []byte
	DownloadedBytes int64
}

func (me RemoteStatus) Complete() bool {
	return me.Bitmap == nil
}

// The status of a peer that has all of the package.
func CompleteStatus(def *metainfo.Definition) RemoteStatus {
	return RemoteStatus{DownloadedBytes: def.Size}
}

func bitmapLen(segmentCount int64) int {
	return int((segmentCount + 7) / 8)
}

func bitMask(i int64) byte {
	return 0x80 >> (i % 8)
}

func bitSet(bm []byte, i int64) bool {
	return bm[i/8]&bitMask(i) != 0
}

// Bits of the bitmap byte that correspond to real segments.
func byteMask(segmentCount int64, byteIndex int) byte {
	if rem := segmentCount - int64(byteIndex)*8; rem < 8 {
		return ^(0xff >> rem)
	}
	return 0xff
}

// Local possession of a package's segments, and the segments currently being fetched. Safe for
// concurrent use.
type DownloadState struct {
	mu           sync.Mutex
	def          *metainfo.Definition
	layout       segments.Layout
	segmentCount int64
	// Nil once complete.
	bitmap      []byte
	downloaded  int64
	downloading bool

	reserved      typedRoaring.Bitmap[int64]
	reservedBytes int64

	rand      Rand
	changed   chansync.BroadcastCond
	completed chansync.SetOnce
}

func newDownloadState(def *metainfo.Definition) *DownloadState {
	count := def.SegmentCount()
	panicif.True(count > math.MaxUint32)
	return &DownloadState{
		def:          def,
		layout:       def.Layout(),
		segmentCount: count,
		rand:         globalRand{},
	}
}

// A package with no segments held. Empty packages start complete.
func NewPendingDownloadState(def *metainfo.Definition) *DownloadState {
	ds := newDownloadState(def)
	if def.Size == 0 {
		ds.completed.Set()
		return ds
	}
	ds.bitmap = make([]byte, bitmapLen(ds.segmentCount))
	return ds
}

// A package that is fully held.
func NewCompleteDownloadState(def *metainfo.Definition) *DownloadState {
	ds := newDownloadState(def)
	ds.downloaded = def.Size
	ds.completed.Set()
	return ds
}

// A state holding exactly the given segments, such as after rechecking data files.
func NewDownloadStateWithSegments(def *metainfo.Definition, have []int64) (*DownloadState, error) {
	ds := NewPendingDownloadState(def)
	if ds.bitmap == nil {
		return ds, nil
	}
	for _, i := range have {
		if i < 0 || i >= ds.segmentCount {
			return nil, fmt.Errorf("%w: %v not in [0, %v)", ErrOutOfRange, i, ds.segmentCount)
		}
		if bitSet(ds.bitmap, i) {
			continue
		}
		ds.bitmap[i/8] |= bitMask(i)
		ds.downloaded += ds.layout.SegmentLengthAt(i)
	}
	ds.checkComplete()
	return ds, nil
}

// Replaces the source used to pick where reservation scans start.
func (ds *DownloadState) SetRand(r Rand) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.rand = r
}

func (ds *DownloadState) Definition() *metainfo.Definition {
	return ds.def
}

// Reserves up to maxCount segments that are held by the remote, and not held or reserved locally.
// The scan starts at a random bitmap byte so concurrent downloaders spread out. Returns an empty
// slice if nothing is eligible.
func (ds *DownloadState) Reserve(remote RemoteStatus, maxCount int) ([]int64, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.bitmap == nil {
		return nil, fmt.Errorf("%w: package is complete", ErrInvalidState)
	}
	if !ds.downloading {
		return nil, fmt.Errorf("%w: package is not downloading", ErrInvalidState)
	}
	err := ds.validateRemoteStatus(remote)
	if err != nil {
		return nil, err
	}
	ret := []int64{}
	if maxCount <= 0 {
		return ret, nil
	}
	n := len(ds.bitmap)
	start := ds.rand.IntN(n)
	for k := range n {
		byteIndex := (start + k) % n
		candidates := ^ds.bitmap[byteIndex] & byteMask(ds.segmentCount, byteIndex)
		if !remote.Complete() {
			candidates &= remote.Bitmap[byteIndex]
		}
		for candidates != 0 {
			bit := bits.LeadingZeros8(candidates)
			candidates &^= 0x80 >> bit
			i := int64(byteIndex)*8 + int64(bit)
			if !ds.reserved.CheckedAdd(i) {
				continue
			}
			ds.reservedBytes += ds.layout.SegmentLengthAt(i)
			ret = append(ret, i)
			if len(ret) == maxCount {
				ds.checkInvariants()
				return ret, nil
			}
		}
	}
	ds.checkInvariants()
	return ret, nil
}

// Drops reservations. If committed, the segments are marked held. Returns true if this completed
// the package. Releasing a segment that isn't reserved is an error, and nothing is changed.
func (ds *DownloadState) Release(indices []int64, committed bool) (completed bool, err error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	err = ds.checkReserved(indices)
	if err != nil {
		return
	}
	for _, i := range indices {
		ds.reserved.Remove(i)
		length := ds.layout.SegmentLengthAt(i)
		ds.reservedBytes -= length
		if !committed {
			continue
		}
		panicif.True(bitSet(ds.bitmap, i))
		ds.bitmap[i/8] |= bitMask(i)
		ds.downloaded += length
	}
	if committed && len(indices) != 0 {
		completed = ds.checkComplete()
		ds.changed.Broadcast()
	}
	ds.checkInvariants()
	return
}

// Checks every index is reserved, and appears once.
func (ds *DownloadState) ValidateReserved(indices []int64) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.checkReserved(indices)
}

func (ds *DownloadState) checkReserved(indices []int64) error {
	var seen typedRoaring.Bitmap[int64]
	for _, i := range indices {
		if i < 0 || i >= ds.segmentCount || !ds.reserved.Contains(i) || !seen.CheckedAdd(i) {
			return fmt.Errorf("%w: segment %v is not reserved", ErrInvalidState, i)
		}
	}
	return nil
}

// Returns true if the package just completed.
func (ds *DownloadState) checkComplete() bool {
	if ds.bitmap == nil || ds.downloaded != ds.def.Size {
		return false
	}
	panicif.NotEq(ds.reserved.Len(), 0)
	ds.bitmap = nil
	ds.downloading = false
	ds.completed.Set()
	return true
}

func (ds *DownloadState) checkInvariants() {
	panicif.True(ds.reservedBytes < 0)
	panicif.True(ds.reservedBytes+ds.downloaded > ds.def.Size)
}

// Checks a peer's advertised status before it's trusted for reservations.
func (ds *DownloadState) ValidateRemoteStatus(remote RemoteStatus) error {
	return ds.validateRemoteStatus(remote)
}

func (ds *DownloadState) validateRemoteStatus(remote RemoteStatus) error {
	return validateStatus(ds.def, ds.segmentCount, remote)
}

func validateStatus(def *metainfo.Definition, segmentCount int64, status RemoteStatus) error {
	if status.DownloadedBytes < 0 || status.DownloadedBytes > def.Size {
		return fmt.Errorf(
			"%w: downloaded bytes %v not in [0, %v]",
			ErrInvalidData, status.DownloadedBytes, def.Size)
	}
	if status.Complete() {
		if status.DownloadedBytes != def.Size {
			return fmt.Errorf(
				"%w: no bitmap but only %v of %v bytes downloaded",
				ErrInvalidData, status.DownloadedBytes, def.Size)
		}
		return nil
	}
	if status.DownloadedBytes == def.Size {
		return fmt.Errorf("%w: bitmap present but all bytes downloaded", ErrInvalidData)
	}
	if expected := bitmapLen(segmentCount); len(status.Bitmap) != expected {
		return fmt.Errorf(
			"%w: bitmap has %v bytes, expected %v",
			ErrInvalidData, len(status.Bitmap), expected)
	}
	last := len(status.Bitmap) - 1
	if status.Bitmap[last]&^byteMask(segmentCount, last) != 0 {
		return fmt.Errorf("%w: bits set beyond segment %v", ErrInvalidData, segmentCount)
	}
	return nil
}

// Checks segments requested by a peer can be served.
func (ds *DownloadState) ValidateRequestedSegments(indices []int64) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, i := range indices {
		if i < 0 || i >= ds.segmentCount {
			return fmt.Errorf("%w: %v not in [0, %v)", ErrOutOfRange, i, ds.segmentCount)
		}
		if ds.bitmap != nil && !bitSet(ds.bitmap, i) {
			return fmt.Errorf("%w: segment %v", ErrNotAvailable, i)
		}
	}
	return nil
}

// Starts or pauses downloading. Starting a complete package is an error, pausing one does
// nothing.
func (ds *DownloadState) SetDownloading(downloading bool) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.bitmap == nil {
		if downloading {
			return fmt.Errorf("%w: package is complete", ErrInvalidState)
		}
		return nil
	}
	if ds.downloading != downloading {
		ds.downloading = downloading
		ds.changed.Broadcast()
	}
	return nil
}

// Signaled when segments are committed or downloading is toggled. Get the channel before
// inspecting state to avoid missing a change.
func (ds *DownloadState) Changed() events.Signaled {
	return ds.changed.Signaled()
}

// Closed once the package is complete.
func (ds *DownloadState) Completed() events.Done {
	return ds.completed.Done()
}

func (ds *DownloadState) Complete() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.bitmap == nil
}

func (ds *DownloadState) Downloading() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.downloading
}

func (ds *DownloadState) DownloadedBytes() int64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.downloaded
}

func (ds *DownloadState) ReservedBytes() int64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.reservedBytes
}

// Bytes neither held nor in flight.
func (ds *DownloadState) RemainingBytes() int64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.def.Size - ds.downloaded - ds.reservedBytes
}

func (ds *DownloadState) HaveSegment(i int64) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if i < 0 || i >= ds.segmentCount {
		return false
	}
	return ds.bitmap == nil || bitSet(ds.bitmap, i)
}

// Reserved segment indices in ascending order.
func (ds *DownloadState) Reserved() []int64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return slices.Collect(ds.reserved.All())
}

// A snapshot suitable for advertising to peers.
func (ds *DownloadState) Status() RemoteStatus {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return RemoteStatus{
		Bitmap:          slices.Clone(ds.bitmap),
		DownloadedBytes: ds.downloaded,
	}
}

func (ds *DownloadState) String() string {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	state := "paused"
	switch {
	case ds.bitmap == nil:
		state = "complete"
	case ds.downloading:
		state = "downloading"
	}
	return fmt.Sprintf(
		"%v: %s of %s, %s reserved, %s",
		ds.def.ID.ShortString(),
		humanize.Bytes(uint64(ds.downloaded)),
		humanize.Bytes(uint64(ds.def.Size)),
		humanize.Bytes(uint64(ds.reservedBytes)),
		state)
}
