package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/edsrzf/mmap-go"
)

type fileReader interface {
	io.ReaderAt
	io.Closer
}

// How data files are opened for reading. Writes always go through the OS file.
type FileIO interface {
	openForRead(name string) (fileReader, error)
}

// Reads with pread on the OS file.
func ClassicFileIO() FileIO {
	return classicFileIo{}
}

type classicFileIo struct{}

func (classicFileIo) openForRead(name string) (fileReader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Reads through a read-only memory map of the file, mapped for as long as the reader is open.
func MmapFileIO() FileIO {
	return mmapFileIo{}
}

type mmapFileIo struct{}

func (mmapFileIo) openForRead(name string) (_ fileReader, err error) {
	f, err := os.Open(name)
	if err != nil {
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return
	}
	if fi.Size() == 0 {
		// Empty files can't be mapped.
		return mmapFileReader{}, nil
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		err = fmt.Errorf("mapping file: %w", err)
		return
	}
	return mmapFileReader{mm}, nil
}

type mmapFileReader struct {
	m mmap.MMap
}

func (me mmapFileReader) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		err = fs.ErrInvalid
		return
	}
	if off >= int64(len(me.m)) {
		err = io.EOF
		return
	}
	n = copy(p, me.m[off:])
	if n < len(p) {
		err = io.EOF
	}
	return
}

func (me mmapFileReader) Close() error {
	if me.m == nil {
		return nil
	}
	return me.m.Unmap()
}
