package storage

import (
	"bytes"
	"sync"

	"github.com/anacrolix/pkgdist/types/pkghash"
)

// Persists download state per package, as the opaque bytes the state marshals to.
type StateStore interface {
	// Returns ok false if there's nothing stored.
	Get(id pkghash.T) (b []byte, ok bool, err error)
	Set(id pkghash.T, b []byte) error
	Delete(id pkghash.T) error
	// Whether values survive a restart.
	Persistent() bool
	Close() error
}

type mapStateStore struct {
	mu sync.RWMutex
	m  map[pkghash.T][]byte
}

// A StateStore that keeps nothing across restarts.
func NewMapStateStore() StateStore {
	return &mapStateStore{m: make(map[pkghash.T][]byte)}
}

func (me *mapStateStore) Get(id pkghash.T) ([]byte, bool, error) {
	me.mu.RLock()
	defer me.mu.RUnlock()
	b, ok := me.m[id]
	return bytes.Clone(b), ok, nil
}

func (me *mapStateStore) Set(id pkghash.T, b []byte) error {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.m[id] = bytes.Clone(b)
	return nil
}

func (me *mapStateStore) Delete(id pkghash.T) error {
	me.mu.Lock()
	defer me.mu.Unlock()
	delete(me.m, id)
	return nil
}

func (me *mapStateStore) Persistent() bool {
	return false
}

func (me *mapStateStore) Close() error {
	me.mu.Lock()
	defer me.mu.Unlock()
	clear(me.m)
	return nil
}
