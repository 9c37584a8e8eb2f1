package storage

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/pkg/errors"
)

// Default file permissions for writable OS files.
const (
	filePerm os.FileMode = 0o644
	dirPerm  os.FileMode = 0o755
)

// Opens file for write, creating dirs and fixing permissions as necessary.
func openFileExtra(p string, osRdwr int) (f *os.File, err error) {
	panicif.NotZero(osRdwr & ^(os.O_RDONLY | os.O_RDWR | os.O_WRONLY))
	flag := osRdwr | os.O_CREATE
	f, err = os.OpenFile(p, flag, filePerm)
	if err == nil {
		return
	}
	if errors.Is(err, fs.ErrNotExist) {
		err = os.MkdirAll(filepath.Dir(p), dirPerm)
		if err != nil {
			return
		}
	} else if errors.Is(err, fs.ErrPermission) {
		err = os.Chmod(p, filePerm)
		if err != nil {
			return
		}
	} else {
		return
	}
	f, err = os.OpenFile(p, flag, filePerm)
	return
}

// Creates the file if needed and sets its length.
func ensureFileLength(p string, length int64) error {
	f, err := openFileExtra(p, os.O_RDWR)
	if err != nil {
		return errors.Wrapf(err, "opening %q", p)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "statting %q", p)
	}
	if fi.Size() == length {
		return nil
	}
	return errors.Wrapf(f.Truncate(length), "truncating %q to %v", p, length)
}
