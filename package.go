package pkgdist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/anacrolix/pkgdist/blockstream"
	"github.com/anacrolix/pkgdist/internal/ctxrw"
	"github.com/anacrolix/pkgdist/internal/errorsx"
	"github.com/anacrolix/pkgdist/metainfo"
	"github.com/anacrolix/pkgdist/segments"
	"github.com/anacrolix/pkgdist/storage"
)

var tracer = otel.Tracer("github.com/anacrolix/pkgdist")

// A package's definition, data files and download state together. Moves verified segments
// between streams and data files.
type Package struct {
	def    *metainfo.Definition
	files  *storage.DataFiles
	state  *DownloadState
	cfg    *Config
	logger log.Logger
}

// A nil config uses NewDefaultConfig.
func NewPackage(def *metainfo.Definition, files *storage.DataFiles, state *DownloadState, cfg *Config) *Package {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	return &Package{
		def:    def,
		files:  files,
		state:  state,
		cfg:    cfg,
		logger: cfg.Logger.WithNames(def.ID.ShortString()),
	}
}

func (p *Package) Definition() *metainfo.Definition {
	return p.def
}

func (p *Package) State() *DownloadState {
	return p.state
}

func (p *Package) Files() *storage.DataFiles {
	return p.files
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Writes segments from r into the data files. Indices must be reserved, and r must carry them in
// the same order. Each segment is committed as soon as it verifies, and everything not committed
// is released. A stream that ends early is io.ErrUnexpectedEOF.
func (p *Package) ReceiveSegments(ctx context.Context, r io.Reader, indices []int64) (committed []int64, err error) {
	ctx, span := tracer.Start(ctx, "ReceiveSegments", trace.WithAttributes(
		attribute.String("package", p.def.ID.HexString()),
		attribute.Int("segments", len(indices)),
	))
	defer func() {
		span.SetAttributes(attribute.Int("committed", len(committed)))
		endSpan(span, err)
	}()
	err = p.state.ValidateReserved(indices)
	if err != nil {
		return
	}
	sub, err := blockstream.NewVerifySubset(p.def, indices, true)
	if err != nil {
		p.state.Release(indices, false)
		return
	}
	layout := p.def.Layout()
	w, err := blockstream.NewWriter(ctx, p.files.Parts(layout.AddressesFor(indices)), sub, blockstream.Opts{
		Logger: g.Some(p.logger),
		Pool:   p.cfg.BufferPool,
		OnCommit: func(block int) {
			i := sub.Segment(block)
			completed, err := p.state.Release([]int64{i}, true)
			if err != nil {
				panic(err)
			}
			committed = append(committed, i)
			segmentsCommitted.Add(1)
			segmentBytes.WithLabelValues("received").Add(float64(layout.SegmentLengthAt(i)))
			if completed {
				p.logger.Levelf(log.Info, "package complete")
			}
		},
	})
	if err != nil {
		p.state.Release(indices, false)
		return
	}
	_, copyErr := io.Copy(w, ctxrw.WrapReader(ctx, r))
	err = errorsx.Compact(copyErr, w.Close())
	if err == nil && w.Short() {
		err = io.ErrUnexpectedEOF
	}
	if errors.Is(err, blockstream.ErrHashMismatch) {
		segmentsRejected.Add(1)
	}
	// Blocks commit in order.
	rest := indices[len(committed):]
	if len(rest) != 0 {
		_, releaseErr := p.state.Release(rest, false)
		if releaseErr != nil {
			panic(releaseErr)
		}
	}
	return
}

// Streams the requested segments to w in the order given, verifying each on the way out. Segments
// must be held.
func (p *Package) ServeSegments(ctx context.Context, w io.Writer, indices []int64) (n int64, err error) {
	ctx, span := tracer.Start(ctx, "ServeSegments", trace.WithAttributes(
		attribute.String("package", p.def.ID.HexString()),
		attribute.Int("segments", len(indices)),
	))
	defer func() {
		span.SetAttributes(attribute.Int64("bytes", n))
		endSpan(span, err)
	}()
	err = p.state.ValidateRequestedSegments(indices)
	if err != nil {
		if errors.Is(err, ErrNotAvailable) {
			requestsForMissingSegments.Add(1)
		}
		return
	}
	sub, err := blockstream.NewVerifySubset(p.def, indices, true)
	if err != nil {
		return
	}
	r, err := blockstream.NewReader(ctx, p.files.Parts(p.def.Layout().AddressesFor(indices)), sub, blockstream.Opts{
		Logger: g.Some(p.logger),
		Pool:   p.cfg.BufferPool,
	})
	if err != nil {
		return
	}
	defer r.Close()
	dst := ctxrw.WrapWriter(ctx, w)
	if p.cfg.UploadRateLimiter != nil {
		dst = rateLimitedWriter{ctx, p.cfg.UploadRateLimiter, dst}
	}
	n, err = io.Copy(dst, r)
	segmentsServed.Add(int64(r.Blocks()))
	segmentBytes.WithLabelValues("served").Add(float64(n))
	if errors.Is(err, blockstream.ErrHashMismatch) {
		p.logger.Levelf(log.Warning, "held segment failed verification while serving: %v", err)
	}
	return
}

// Hashes every data file and returns a state holding exactly the segments that verify. Missing or
// short data files contribute what they have.
func (p *Package) Recheck(ctx context.Context) (*DownloadState, error) {
	ctx, span := tracer.Start(ctx, "Recheck", trace.WithAttributes(
		attribute.String("package", p.def.ID.HexString()),
	))
	layout := p.def.Layout()
	verified := make([][]int64, layout.DataFileCount())
	var eg errgroup.Group
	eg.SetLimit(max(1, p.cfg.RecheckConcurrency))
	for f := range layout.DataFileCount() {
		eg.Go(func() (err error) {
			verified[f], err = p.recheckDataFile(ctx, layout, f)
			return
		})
	}
	err := eg.Wait()
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	var have []int64
	for _, v := range verified {
		have = append(have, v...)
	}
	span.SetAttributes(attribute.Int("verified", len(have)))
	endSpan(span, nil)
	p.logger.Levelf(log.Debug, "recheck verified %v of %v segments", len(have), layout.SegmentCount())
	return NewDownloadStateWithSegments(p.def, have)
}

func (p *Package) recheckDataFile(ctx context.Context, layout segments.Layout, f int) (have []int64, err error) {
	first := int64(f) * layout.SegmentsPerDataFile()
	compute := blockstream.NewCompute(layout.SegmentLength, g.Some(layout.DataFileLengthAt(f)))
	file := p.files.Parts(func(yield func(segments.Address) bool) {
		yield(segments.Address{
			Index:    first,
			DataFile: f,
			Length:   layout.DataFileLengthAt(f),
		})
	})
	r, err := blockstream.NewReader(ctx, file, compute, blockstream.Opts{
		Logger: g.Some(p.logger),
	})
	if err != nil {
		return
	}
	_, err = io.Copy(io.Discard, ctxrw.WrapReader(ctx, r))
	r.Close()
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("hashing data file %v: %w", f, err)
	}
	for k, h := range compute.Hashes() {
		i := first + int64(k)
		if h == p.def.SegmentHash(i) {
			have = append(have, i)
		}
	}
	return
}

// Saves the download state.
func (p *Package) Persist(store storage.StateStore) error {
	b, err := p.state.MarshalBinary()
	if err != nil {
		return err
	}
	return store.Set(p.def.ID, b)
}

// Loads a package's download state, or a pending one if nothing is stored.
func LoadState(store storage.StateStore, def *metainfo.Definition) (*DownloadState, error) {
	b, ok, err := store.Get(def.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewPendingDownloadState(def), nil
	}
	return UnmarshalDownloadState(def, b)
}

// Streams r into new data files, computing segment hashes as it goes, and returns the resulting
// definition along with the data files moved into place.
func Author(
	ctx context.Context,
	r io.Reader,
	split segments.Split,
	stagingDir string,
	opts storage.DataFilesOpts,
) (*metainfo.Definition, *storage.DataFiles, error) {
	ctx, span := tracer.Start(ctx, "Author")
	def, files, err := author(ctx, r, split, stagingDir, opts)
	endSpan(span, err)
	return def, files, err
}

func author(
	ctx context.Context,
	r io.Reader,
	split segments.Split,
	stagingDir string,
	opts storage.DataFilesOpts,
) (_ *metainfo.Definition, _ *storage.DataFiles, err error) {
	a, err := storage.NewAuthoring(stagingDir, split)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			a.Abort()
		}
	}()
	compute := blockstream.NewCompute(split.SegmentLength, g.None[int64]())
	w, err := blockstream.NewWriter(ctx, a.Parts(), compute, blockstream.Opts{})
	if err != nil {
		return
	}
	_, err = io.Copy(w, ctxrw.WrapReader(ctx, r))
	err = errorsx.Compact(err, w.Close())
	if err != nil {
		return
	}
	def, err := metainfo.New(compute.Length(), split, compute.Hashes())
	if err != nil {
		return
	}
	files, err := a.Finish(def, opts)
	if err != nil {
		return
	}
	return def, files, nil
}
