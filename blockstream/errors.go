package blockstream

import (
	"errors"
	"fmt"

	"github.com/anacrolix/pkgdist/types/pkghash"
)

var (
	// The stream was driven past its parts or its behaviour's blocks, or contains a zero-length
	// part.
	ErrInvalidStream = errors.New("invalid stream")
	ErrHashMismatch  = errors.New("hash mismatch")
	ErrClosed        = errors.New("stream closed")
)

// A block failed verification. A length difference is reported without comparing hashes.
type HashMismatchError struct {
	Segment        int64
	Expected       pkghash.T
	Actual         pkghash.T
	ExpectedLength int64
	ActualLength   int64
}

func (me *HashMismatchError) Error() string {
	if me.ExpectedLength != me.ActualLength {
		return fmt.Sprintf(
			"segment %v: got %v bytes, expected %v",
			me.Segment, me.ActualLength, me.ExpectedLength)
	}
	return fmt.Sprintf(
		"segment %v: hash %v, expected %v",
		me.Segment, me.Actual.ShortString(), me.Expected.ShortString())
}

func (me *HashMismatchError) Unwrap() error {
	return ErrHashMismatch
}
