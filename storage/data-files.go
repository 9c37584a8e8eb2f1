package storage

import (
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/anacrolix/pkgdist/metainfo"
	"github.com/anacrolix/pkgdist/segments"
	"github.com/anacrolix/pkgdist/types/pkghash"
)

// Determines the path of a package's data file.
type PathMaker func(base string, id pkghash.T, dataFile int) string

// <base>/<id hex>/<n>.dat
func DefaultPathMaker(base string, id pkghash.T, dataFile int) string {
	return filepath.Join(base, id.HexString(), fmt.Sprintf("%d.dat", dataFile))
}

type DataFilesOpts struct {
	Base      string
	PathMaker PathMaker
	// Defaults to ClassicFileIO.
	IO     FileIO
	Logger *slog.Logger
}

func (opts *DataFilesOpts) setDefaults() {
	if opts.PathMaker == nil {
		opts.PathMaker = DefaultPathMaker
	}
	if opts.IO == nil {
		opts.IO = ClassicFileIO()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
}

// The data files holding one package on disk.
type DataFiles struct {
	opts   DataFilesOpts
	id     pkghash.T
	layout segments.Layout
	index  segments.Index
}

func NewDataFiles(def *metainfo.Definition, opts DataFilesOpts) *DataFiles {
	opts.setDefaults()
	layout := def.Layout()
	return &DataFiles{
		opts:   opts,
		id:     def.ID,
		layout: layout,
		index:  layout.DataFileIndex(),
	}
}

func (me *DataFiles) logger() *slog.Logger {
	return me.opts.Logger
}

func (me *DataFiles) Layout() segments.Layout {
	return me.layout
}

func (me *DataFiles) Path(dataFile int) string {
	return me.opts.PathMaker(me.opts.Base, me.id, dataFile)
}

// All data file paths in order.
func (me *DataFiles) Paths() iter.Seq[string] {
	return func(yield func(string) bool) {
		for f := range me.layout.DataFileCount() {
			if !yield(me.Path(f)) {
				return
			}
		}
	}
}

// Creates the data files, and sets each to its layout length. Existing contents are kept.
func (me *DataFiles) Allocate() error {
	for f := range me.layout.DataFileCount() {
		err := ensureFileLength(me.Path(f), me.layout.DataFileLengthAt(f))
		if err != nil {
			return errors.Wrapf(err, "allocating data file %v", f)
		}
	}
	me.logger().Debug("allocated data files", "id", me.id.ShortString(), "count", me.layout.DataFileCount())
	return nil
}

// Removes the data files. Missing files are ignored.
func (me *DataFiles) Remove() error {
	for p := range me.Paths() {
		err := os.Remove(p)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
