package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/pkgdist/types/pkghash"
)

func testStateStore(t *testing.T, ss StateStore) {
	id := pkghash.HashBytes([]byte("package"))
	_, ok, err := ss.Get(id)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, ss.Set(id, []byte("state")))
	b, ok, err := ss.Get(id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "state", string(b))
	require.NoError(t, ss.Delete(id))
	_, ok, err = ss.Get(id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMapStateStore(t *testing.T) {
	ss := NewMapStateStore()
	defer ss.Close()
	assert.False(t, ss.Persistent())
	testStateStore(t, ss)
}

func TestBoltStateStore(t *testing.T) {
	dir := t.TempDir()
	ss, err := NewBoltStateStore(dir)
	require.NoError(t, err)
	assert.True(t, ss.Persistent())
	testStateStore(t, ss)
	id := pkghash.HashBytes([]byte("kept"))
	require.NoError(t, ss.Set(id, []byte("v1")))
	require.NoError(t, ss.Close())

	ss, err = NewBoltStateStore(dir)
	require.NoError(t, err)
	defer ss.Close()
	b, ok, err := ss.Get(id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", string(b))
}

func TestStateStoreForDirFallsBack(t *testing.T) {
	ss := NewStateStoreForDir(filepath.Join(t.TempDir(), "missing", "dir"), nil)
	defer ss.Close()
	assert.False(t, ss.Persistent())
	testStateStore(t, ss)
}
