package storage

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/anacrolix/pkgdist/blockstream"
	"github.com/anacrolix/pkgdist/metainfo"
	"github.com/anacrolix/pkgdist/segments"
)

// Data files for a package whose size and identity aren't known yet. Content is streamed into
// full-length staging files, then moved into place once the definition exists.
type Authoring struct {
	dir   string
	split segments.Split
	files []string
}

func NewAuthoring(stagingDir string, split segments.Split) (*Authoring, error) {
	err := split.Validate()
	if err != nil {
		return nil, err
	}
	return &Authoring{dir: stagingDir, split: split}, nil
}

// An unbounded sequence of full-length data file parts. Files are only created when written to.
func (me *Authoring) Parts() iter.Seq[blockstream.Part] {
	return func(yield func(blockstream.Part) bool) {
		for f := 0; ; f++ {
			p := filepath.Join(me.dir, fmt.Sprintf("%d.dat", f))
			me.files = append(me.files, p)
			if !yield(fileRegion{
				path:   p,
				io:     ClassicFileIO(),
				length: me.split.DataFileLength,
			}) {
				return
			}
		}
	}
}

// Trims the staged files to the definition's layout, and moves them to their final paths.
func (me *Authoring) Finish(def *metainfo.Definition, opts DataFilesOpts) (*DataFiles, error) {
	df := NewDataFiles(def, opts)
	layout := def.Layout()
	for f, staged := range me.files {
		if f >= layout.DataFileCount() {
			// Pulled but never written, or past the end.
			err := os.Remove(staged)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
			continue
		}
		err := ensureFileLength(staged, layout.DataFileLengthAt(f))
		if err != nil {
			return nil, err
		}
		final := df.Path(f)
		err = os.MkdirAll(filepath.Dir(final), dirPerm)
		if err != nil {
			return nil, err
		}
		err = os.Rename(staged, final)
		if err != nil {
			return nil, errors.Wrapf(err, "moving data file %v into place", f)
		}
	}
	me.files = nil
	return df, nil
}

// Removes any staged files.
func (me *Authoring) Abort() error {
	for _, p := range me.files {
		err := os.Remove(p)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	me.files = nil
	return nil
}
