package storage

import (
	"io"
	"iter"
	"os"

	"github.com/anacrolix/pkgdist/blockstream"
	"github.com/anacrolix/pkgdist/segments"
)

// A region of one data file.
type fileRegion struct {
	path   string
	io     FileIO
	offset int64
	length int64
}

var _ blockstream.Part = fileRegion{}

func (me fileRegion) Length() int64 {
	return me.length
}

type fileRegionWriter struct {
	*io.OffsetWriter
	f *os.File
}

func (me fileRegionWriter) Close() error {
	return me.f.Close()
}

func (me fileRegion) OpenWriter() (io.WriteCloser, error) {
	f, err := openFileExtra(me.path, os.O_WRONLY)
	if err != nil {
		return nil, err
	}
	return fileRegionWriter{io.NewOffsetWriter(f, me.offset), f}, nil
}

type fileRegionReader struct {
	*io.SectionReader
	io.Closer
}

// A region past the end of a short file ends early.
func (me fileRegion) OpenReader() (io.ReadCloser, error) {
	f, err := me.io.openForRead(me.path)
	if err != nil {
		return nil, err
	}
	return fileRegionReader{io.NewSectionReader(f, me.offset, me.length), f}, nil
}

// Parts for the given segments, in the order given. Pair with a VerifySubset behaviour over the
// same indices.
func (me *DataFiles) Parts(addresses iter.Seq[segments.Address]) iter.Seq[blockstream.Part] {
	return func(yield func(blockstream.Part) bool) {
		for a := range addresses {
			if !yield(fileRegion{
				path:   me.Path(a.DataFile),
				io:     me.opts.IO,
				offset: a.Offset,
				length: a.Length,
			}) {
				return
			}
		}
	}
}

// One part per data file, for streaming the whole package.
func (me *DataFiles) FileParts() iter.Seq[blockstream.Part] {
	return func(yield func(blockstream.Part) bool) {
		for f := range me.layout.DataFileCount() {
			if !yield(me.filePart(f)) {
				return
			}
		}
	}
}

func (me *DataFiles) filePart(f int) fileRegion {
	return fileRegion{
		path:   me.Path(f),
		io:     me.opts.IO,
		length: me.layout.DataFileLengthAt(f),
	}
}
