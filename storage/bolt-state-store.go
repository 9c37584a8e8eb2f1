package storage

import (
	"bytes"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/anacrolix/pkgdist/types/pkghash"
)

const boltDbFileName = ".pkgdist.bolt.db"

var stateBucketKey = []byte("download-state")

type boltStateStore struct {
	db *bbolt.DB
}

// Opens or creates a bbolt database in dir.
func NewBoltStateStore(dir string) (StateStore, error) {
	db, err := bbolt.Open(filepath.Join(dir, boltDbFileName), 0o600, &bbolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening bolt db in %q", dir)
	}
	db.NoSync = true
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucketKey)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating bucket")
	}
	return &boltStateStore{db}, nil
}

func (me *boltStateStore) Get(id pkghash.T) (b []byte, ok bool, err error) {
	err = me.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(stateBucketKey).Get(id[:])
		if v == nil {
			return nil
		}
		// Values are only valid for the life of the transaction.
		b = bytes.Clone(v)
		ok = true
		return nil
	})
	return
}

func (me *boltStateStore) Set(id pkghash.T, b []byte) error {
	return me.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(stateBucketKey).Put(id[:], b)
	})
}

func (me *boltStateStore) Delete(id pkghash.T) error {
	return me.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(stateBucketKey).Delete(id[:])
	})
}

func (me *boltStateStore) Persistent() bool {
	return true
}

func (me *boltStateStore) Close() error {
	return me.db.Close()
}
