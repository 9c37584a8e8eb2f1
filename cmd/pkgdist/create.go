package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/anacrolix/pkgdist"
	"github.com/anacrolix/pkgdist/segments"
	"github.com/anacrolix/pkgdist/storage"
)

type createCmd struct {
	SegmentLength  string `arg:"--segment-length" default:"1MiB"`
	DataFileLength string `arg:"--data-file-length" default:"64MiB"`
	Data           string `arg:"--data,required" help:"base directory for data files"`
	Out            string `arg:"--out" default:"-" help:"where to write the definition"`
	Input          string `arg:"positional" default:"-" help:"file to package, or - for stdin"`
}

func parseSplit(segmentLength, dataFileLength string) (split segments.Split, err error) {
	sl, err := humanize.ParseBytes(segmentLength)
	if err != nil {
		err = fmt.Errorf("parsing segment length: %w", err)
		return
	}
	dfl, err := humanize.ParseBytes(dataFileLength)
	if err != nil {
		err = fmt.Errorf("parsing data file length: %w", err)
		return
	}
	return segments.NewSplit(int64(sl), int64(dfl))
}

func (me *createCmd) run() (err error) {
	split, err := parseSplit(me.SegmentLength, me.DataFileLength)
	if err != nil {
		return
	}
	var r io.Reader = os.Stdin
	if me.Input != "-" {
		f, err := os.Open(me.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	err = os.MkdirAll(me.Data, 0o750)
	if err != nil {
		return
	}
	staging, err := os.MkdirTemp(me.Data, ".staging-")
	if err != nil {
		return
	}
	defer os.RemoveAll(staging)
	def, _, err := pkgdist.Author(context.Background(), r, split, staging, storage.DataFilesOpts{
		Base:   me.Data,
		Logger: slogger(),
	})
	if err != nil {
		return
	}
	logger().Printf("authored %v", def)
	if me.Out == "-" {
		return def.Write(os.Stdout)
	}
	f, err := os.Create(me.Out)
	if err != nil {
		return
	}
	err = def.Write(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return
}

type showCmd struct {
	Definition string `arg:"positional,required"`
}

func (me *showCmd) run() error {
	def, err := loadDefinition(me.Definition)
	if err != nil {
		return err
	}
	layout := def.Layout()
	fmt.Printf("id: %v\n", def.ID)
	fmt.Printf("size: %v\n", humanize.IBytes(uint64(def.Size)))
	fmt.Printf("segment length: %v\n", humanize.IBytes(uint64(layout.SegmentLength)))
	fmt.Printf("data file length: %v\n", humanize.IBytes(uint64(layout.DataFileLength)))
	fmt.Printf("segments: %v\n", def.SegmentCount())
	fmt.Printf("data files: %v\n", layout.DataFileCount())
	return nil
}
