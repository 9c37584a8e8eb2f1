package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/anacrolix/pkgdist"
	"github.com/anacrolix/pkgdist/storage"
)

type verifyCmd struct {
	Data       string `arg:"--data,required" help:"base directory for data files"`
	Save       bool   `help:"store the rechecked download state in the data directory"`
	Definition string `arg:"positional,required"`
}

func (me *verifyCmd) run() error {
	def, err := loadDefinition(me.Definition)
	if err != nil {
		return err
	}
	files := storage.NewDataFiles(def, storage.DataFilesOpts{
		Base:   me.Data,
		Logger: slogger(),
	})
	cfg := pkgdist.NewDefaultConfig()
	cfg.Logger = logger()
	p := pkgdist.NewPackage(def, files, pkgdist.NewPendingDownloadState(def), cfg)
	state, err := p.Recheck(context.Background())
	if err != nil {
		return err
	}
	var verified int64
	for i := range def.SegmentCount() {
		if state.HaveSegment(i) {
			verified++
		}
	}
	fmt.Printf(
		"%v: %v of %v, %v/%v segments verified\n",
		def.ID.ShortString(),
		humanize.Bytes(uint64(state.DownloadedBytes())),
		humanize.Bytes(uint64(def.Size)),
		verified,
		def.SegmentCount(),
	)
	if !me.Save {
		return nil
	}
	store := storage.NewStateStoreForDir(me.Data, slogger())
	defer store.Close()
	return pkgdist.NewPackage(def, files, state, cfg).Persist(store)
}
