package pkgdist

import (
	"fmt"

	"github.com/anacrolix/torrent/bencode"

	"github.com/anacrolix/pkgdist/metainfo"
	"github.com/anacrolix/pkgdist/types/pkghash"
)

// Bump when the persisted form changes. Old forms are rejected, not upgraded.
const DownloadStateVersion = 1

type persistedDownloadState struct {
	Version     int       `bencode:"v"`
	ID          pkghash.T `bencode:"id"`
	Downloading bool      `bencode:"downloading"`
	Downloaded  int64     `bencode:"downloaded"`
	// Absent when complete.
	Bitmap []byte `bencode:"bitmap,omitempty"`
}

// Reservations aren't persisted.
func (ds *DownloadState) MarshalBinary() ([]byte, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return bencode.Marshal(persistedDownloadState{
		Version:     DownloadStateVersion,
		ID:          ds.def.ID,
		Downloading: ds.downloading,
		Downloaded:  ds.downloaded,
		Bitmap:      ds.bitmap,
	})
}

// Restores a state written by MarshalBinary for the given package. The result is validated as
// strictly as a peer's status.
func UnmarshalDownloadState(def *metainfo.Definition, b []byte) (*DownloadState, error) {
	var p persistedDownloadState
	err := bencode.Unmarshal(b, &p)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding download state: %w", ErrInvalidData, err)
	}
	if p.Version != DownloadStateVersion {
		return nil, fmt.Errorf("%w: got %v, expected %v", ErrVersionMismatch, p.Version, DownloadStateVersion)
	}
	if p.ID != def.ID {
		return nil, fmt.Errorf("%w: state is for %v, not %v", metainfo.ErrIDMismatch, p.ID, def.ID)
	}
	ds := newDownloadState(def)
	status := RemoteStatus{Bitmap: p.Bitmap, DownloadedBytes: p.Downloaded}
	if def.Size == 0 {
		status.Bitmap = nil
	}
	err = validateStatus(def, ds.segmentCount, status)
	if err != nil {
		return nil, err
	}
	if status.Complete() {
		ds.downloaded = def.Size
		ds.completed.Set()
		return ds, nil
	}
	var sum int64
	for i := range ds.segmentCount {
		if bitSet(status.Bitmap, i) {
			sum += ds.layout.SegmentLengthAt(i)
		}
	}
	if sum != status.DownloadedBytes {
		return nil, fmt.Errorf(
			"%w: bitmap holds %v bytes, state claims %v",
			ErrInvalidData, sum, status.DownloadedBytes)
	}
	ds.bitmap = status.Bitmap
	ds.downloaded = sum
	ds.downloading = p.Downloading
	return ds, nil
}
