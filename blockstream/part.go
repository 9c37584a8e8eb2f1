package blockstream

import (
	"io"
	"iter"
	"slices"
)

// A physical region of a stream. Parts are opened lazily, in order, and closed once their length
// has passed through.
type Part interface {
	Length() int64
	OpenWriter() (io.WriteCloser, error)
	OpenReader() (io.ReadCloser, error)
}

type discardPart int64

// A part that drops writes and reads as zeroes. Used for ranges a stream needs to skip.
func Discard(length int64) Part {
	return discardPart(length)
}

func (me discardPart) Length() int64 {
	return int64(me)
}

func (me discardPart) OpenWriter() (io.WriteCloser, error) {
	return nopWriteCloser{io.Discard}, nil
}

func (me discardPart) OpenReader() (io.ReadCloser, error) {
	return io.NopCloser(io.LimitReader(zeroReader, int64(me))), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

var zeroReader zeroReaderType

type zeroReaderType struct{}

func (me zeroReaderType) Read(b []byte) (n int, err error) {
	clear(b)
	n = len(b)
	return
}

func Parts(parts ...Part) iter.Seq[Part] {
	return slices.Values(parts)
}
