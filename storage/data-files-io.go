package storage

import (
	"io"
	"io/fs"
	"os"

	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/pkg/errors"

	"github.com/anacrolix/pkgdist/segments"
)

var _ interface {
	io.ReaderAt
	io.WriterAt
} = (*DataFiles)(nil)

// Returns EOF on short or missing file.
func (me *DataFiles) readFileAt(dataFile int, b []byte, off int64) (n int, err error) {
	length := me.layout.DataFileLengthAt(dataFile)
	f, err := me.opts.IO.openForRead(me.Path(dataFile))
	if errors.Is(err, fs.ErrNotExist) {
		// File missing is treated the same as a short file.
		err = io.EOF
		return
	}
	if err != nil {
		return
	}
	defer f.Close()
	// Limit the read to within the expected bounds of this file.
	if int64(len(b)) > length-off {
		b = b[:length-off]
	}
	for off < length && len(b) != 0 {
		n1, err1 := f.ReadAt(b, off)
		b = b[n1:]
		n += n1
		off += int64(n1)
		if n1 == 0 {
			err = err1
			break
		}
	}
	return
}

// Reads package bytes across data files. Only returns EOF at the end of the package. Premature
// EOF is ErrUnexpectedEOF.
func (me *DataFiles) ReadAt(b []byte, off int64) (n int, err error) {
	for i, e := range me.index.LocateIter(segments.Extent{Start: off, Length: int64(len(b))}) {
		n1, err1 := me.readFileAt(i, b[:e.Length], e.Start)
		n += n1
		b = b[n1:]
		if segments.Int(n1) == e.Length {
			switch err1 {
			// ReaderAt.ReadAt contract.
			case nil, io.EOF:
			default:
				err = err1
				return
			}
		} else {
			panicif.Nil(err1)
			if err1 == io.EOF {
				err1 = io.ErrUnexpectedEOF
			}
			err = err1
			return
		}
	}
	if len(b) != 0 {
		// We're at the end of the package.
		err = io.EOF
	}
	return
}

// Writes package bytes across data files, creating them as needed.
func (me *DataFiles) WriteAt(p []byte, off int64) (n int, err error) {
	for i, e := range me.index.LocateIter(segments.Extent{Start: off, Length: int64(len(p))}) {
		var f *os.File
		f, err = openFileExtra(me.Path(i), os.O_WRONLY)
		if err != nil {
			return
		}
		var n1 int
		n1, err = f.WriteAt(p[:e.Length], e.Start)
		closeErr := f.Close()
		n += n1
		p = p[n1:]
		if err == nil {
			err = closeErr
		}
		if err == nil && int64(n1) != e.Length {
			err = io.ErrShortWrite
		}
		if err != nil {
			return
		}
	}
	if len(p) != 0 {
		err = errors.Errorf("write of %v bytes past end of package", len(p))
	}
	return
}
