package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/anacrolix/log"
	"golang.org/x/sync/errgroup"

	"github.com/anacrolix/pkgdist"
	"github.com/anacrolix/pkgdist/storage"
)

type copyCmd struct {
	From       string `arg:"--from,required" help:"data directory of a complete package"`
	To         string `arg:"--to,required" help:"data directory to download into"`
	Batch      int    `default:"8" help:"segments reserved per request"`
	Definition string `arg:"positional,required"`
}

func (me *copyCmd) run() (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	def, err := loadDefinition(me.Definition)
	if err != nil {
		return
	}
	cfg := pkgdist.NewDefaultConfig()
	cfg.Logger = logger()
	source := pkgdist.NewPackage(
		def,
		storage.NewDataFiles(def, storage.DataFilesOpts{Base: me.From, Logger: slogger()}),
		pkgdist.NewCompleteDownloadState(def),
		cfg)
	store := storage.NewStateStoreForDir(me.To, slogger())
	defer store.Close()
	state, err := pkgdist.LoadState(store, def)
	if err != nil {
		return
	}
	files := storage.NewDataFiles(def, storage.DataFilesOpts{Base: me.To, Logger: slogger()})
	err = files.Allocate()
	if err != nil {
		return
	}
	dest := pkgdist.NewPackage(def, files, state, cfg)
	defer func() {
		persistErr := dest.Persist(store)
		if persistErr != nil {
			cfg.Logger.Levelf(log.Warning, "persisting download state: %v", persistErr)
		}
	}()
	if state.Complete() {
		cfg.Logger.Printf("already complete: %v", state)
		return nil
	}
	err = state.SetDownloading(true)
	if err != nil {
		return
	}
	policy := pkgdist.NewDefaultPeerPolicy()
	peers := pkgdist.NewPeerRegistry(policy)
	src, _ := peers.GetOrAdd(me.From)
	for !state.Complete() {
		candidates := peers.Candidates(1)
		if len(candidates) == 0 || !candidates[0].TryRequest() {
			if src.Health.Dead() {
				return errors.New("no usable source")
			}
			wait := policy.ChokeExpiry
			if d := time.Until(src.Health.IgnoreUntil()); d > 0 {
				wait = min(wait, d)
			}
			select {
			case <-ctx.Done():
				return context.Cause(ctx)
			case <-time.After(wait):
			}
			continue
		}
		peer := candidates[0]
		indices, err := state.Reserve(source.State().Status(), me.Batch)
		if err != nil {
			return err
		}
		if len(indices) == 0 {
			return errors.New("source has nothing left to offer")
		}
		err = transfer(ctx, source, dest, indices)
		peer.ReportOutgoingError(err)
		peer.Slots.ReleaseSlot()
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if err != nil {
			cfg.Logger.Levelf(log.Warning, "transferring %v segments: %v", len(indices), err)
		}
		cfg.Logger.Levelf(log.Debug, "%v", state)
	}
	cfg.Logger.Printf("complete: %v", state)
	return nil
}

func transfer(ctx context.Context, source, dest *pkgdist.Package, indices []int64) error {
	pr, pw := io.Pipe()
	var eg errgroup.Group
	eg.Go(func() error {
		_, err := source.ServeSegments(ctx, pw, indices)
		pw.CloseWithError(err)
		return err
	})
	eg.Go(func() error {
		_, err := dest.ReceiveSegments(ctx, pr, indices)
		pr.CloseWithError(err)
		return err
	})
	return eg.Wait()
}
