package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"github.com/anacrolix/pkgdist"
	"github.com/anacrolix/pkgdist/storage"
)

type stateCmd struct {
	Data       string `arg:"--data,required" help:"directory holding the state database"`
	Spew       bool   `help:"dump the remote status in full"`
	Definition string `arg:"positional,required"`
}

func (me *stateCmd) run() error {
	def, err := loadDefinition(me.Definition)
	if err != nil {
		return err
	}
	store, err := storage.NewBoltStateStore(me.Data)
	if err != nil {
		return err
	}
	defer store.Close()
	state, err := pkgdist.LoadState(store, def)
	if err != nil {
		return err
	}
	fmt.Println(state)
	if me.Spew {
		spew.Dump(state.Status())
	}
	return nil
}
