package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	g "github.com/anacrolix/generics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/pkgdist/blockstream"
	"github.com/anacrolix/pkgdist/metainfo"
	"github.com/anacrolix/pkgdist/segments"
	"github.com/anacrolix/pkgdist/types/pkghash"
)

// 20 bytes in 4 byte segments, 8 byte data files.
func testPackage(t testing.TB) (*metainfo.Definition, []byte) {
	data := []byte("abcdefghijklmnopqrst")
	split, err := segments.NewSplit(4, 8)
	require.NoError(t, err)
	var hashes []pkghash.T
	for chunk := range slices.Chunk(data, 4) {
		hashes = append(hashes, pkghash.HashBytes(chunk))
	}
	def, err := metainfo.New(int64(len(data)), split, hashes)
	require.NoError(t, err)
	return def, data
}

func TestDataFilesReadWriteAcrossFiles(t *testing.T) {
	def, data := testPackage(t)
	for _, fio := range []FileIO{ClassicFileIO(), MmapFileIO()} {
		df := NewDataFiles(def, DataFilesOpts{Base: t.TempDir(), IO: fio})
		n, err := df.WriteAt(data, 0)
		require.NoError(t, err)
		require.EqualValues(t, len(data), n)
		for f := range def.Layout().DataFileCount() {
			fi, err := os.Stat(df.Path(f))
			require.NoError(t, err)
			assert.EqualValues(t, def.Layout().DataFileLengthAt(f), fi.Size())
		}
		b := make([]byte, 6)
		n, err = df.ReadAt(b, 6)
		require.NoError(t, err)
		assert.Equal(t, 6, n)
		assert.Equal(t, data[6:12], b)
		n, err = df.ReadAt(b, 16)
		assert.Equal(t, io.EOF, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, data[16:], b[:n])
	}
}

func TestDataFilesDefaultPaths(t *testing.T) {
	def, _ := testPackage(t)
	base := t.TempDir()
	df := NewDataFiles(def, DataFilesOpts{Base: base})
	assert.Equal(t, filepath.Join(base, def.ID.HexString(), "2.dat"), df.Path(2))
	assert.Len(t, slices.Collect(df.Paths()), 3)
}

func TestDataFilesMissingFileIsShort(t *testing.T) {
	def, _ := testPackage(t)
	df := NewDataFiles(def, DataFilesOpts{Base: t.TempDir()})
	_, err := df.ReadAt(make([]byte, 4), 0)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	require.NoError(t, df.Allocate())
	b := make([]byte, 20)
	n, err := df.ReadAt(b, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, make([]byte, 20), b)
	require.NoError(t, df.Remove())
	require.NoError(t, df.Remove())
}

func TestWritePastEnd(t *testing.T) {
	def, data := testPackage(t)
	df := NewDataFiles(def, DataFilesOpts{Base: t.TempDir()})
	n, err := df.WriteAt(append(slices.Clone(data), 'x'), 0)
	assert.Error(t, err)
	assert.Equal(t, len(data), n)
}

func TestPartsServeSubset(t *testing.T) {
	def, data := testPackage(t)
	df := NewDataFiles(def, DataFilesOpts{Base: t.TempDir(), IO: MmapFileIO()})
	_, err := df.WriteAt(data, 0)
	require.NoError(t, err)
	indices := []int64{4, 1}
	sub, err := blockstream.NewVerifySubset(def, indices, true)
	require.NoError(t, err)
	r, err := blockstream.NewReader(
		context.Background(),
		df.Parts(def.Layout().AddressesFor(indices)),
		sub,
		blockstream.Opts{})
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "qrstefgh", string(b))
}

func TestAuthoringFinish(t *testing.T) {
	wantDef, data := testPackage(t)
	staging := t.TempDir()
	a, err := NewAuthoring(staging, wantDef.Split)
	require.NoError(t, err)
	compute := blockstream.NewCompute(wantDef.Split.SegmentLength, g.None[int64]())
	w, err := blockstream.NewWriter(context.Background(), a.Parts(), compute, blockstream.Opts{})
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	def, err := metainfo.New(compute.Length(), wantDef.Split, compute.Hashes())
	require.NoError(t, err)
	assert.Equal(t, wantDef.ID, def.ID)
	df, err := a.Finish(def, DataFilesOpts{Base: t.TempDir()})
	require.NoError(t, err)
	r, err := blockstream.NewReader(context.Background(), df.FileParts(), blockstream.NewVerify(def, false), blockstream.Opts{})
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, data, b)
	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
