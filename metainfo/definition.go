package metainfo

import (
	"errors"
	"fmt"

	"github.com/anacrolix/pkgdist/segments"
	"github.com/anacrolix/pkgdist/types/pkghash"
)

type Hash = pkghash.T

var (
	ErrInvalidDefinition = errors.New("invalid package definition")
	// The identifier doesn't match the hash of the segment hashes.
	ErrIDMismatch = errors.New("package id mismatch")
)

// The immutable content definition of a package. The ID is the hash of the concatenated segment
// hashes, so a definition vouches for itself once validated.
type Definition struct {
	ID            Hash           `bencode:"id"`
	Size          int64          `bencode:"size"`
	Split         segments.Split `bencode:"split"`
	SegmentHashes []Hash         `bencode:"segment hashes"`
}

// Creates a definition from authored segment hashes, deriving the ID.
func New(size int64, split segments.Split, segmentHashes []Hash) (*Definition, error) {
	d := &Definition{
		ID:            pkghash.Concat(segmentHashes),
		Size:          size,
		Split:         split,
		SegmentHashes: segmentHashes,
	}
	err := d.Validate()
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Definition) Validate() error {
	layout, err := d.Split.Layout(d.Size)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if n := layout.SegmentCount(); int64(len(d.SegmentHashes)) != n {
		return fmt.Errorf(
			"%w: have %v segment hashes, expected %v",
			ErrInvalidDefinition, len(d.SegmentHashes), n)
	}
	if actual := pkghash.Concat(d.SegmentHashes); actual != d.ID {
		return fmt.Errorf("%w: id %v, segment hashes give %v", ErrIDMismatch, d.ID, actual)
	}
	return nil
}

// Only valid on validated definitions.
func (d *Definition) Layout() segments.Layout {
	return segments.Layout{Split: d.Split, Size: d.Size}
}

func (d *Definition) SegmentCount() int64 {
	return int64(len(d.SegmentHashes))
}

func (d *Definition) SegmentHash(i int64) Hash {
	return d.SegmentHashes[i]
}

func (d *Definition) String() string {
	return fmt.Sprintf("package %v (%v bytes, %v segments)", d.ID.ShortString(), d.Size, len(d.SegmentHashes))
}
