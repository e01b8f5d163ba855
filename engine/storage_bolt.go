package engine

import (
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

type boltStorage struct {
	bdb *bbolt.DB
}

func newBoltStorage(bdb *bbolt.DB) storage {
	return &boltStorage{bdb: bdb}
}

func (s *boltStorage) BeginTx(writable bool) (storageTx, error) {
	btx, err := s.bdb.Begin(writable)
	if err != nil {
		return nil, errors.Wrap(err, "bolt: begin")
	}
	return &boltStorageTx{btx: btx}, nil
}

func (s *boltStorage) Close() error {
	return s.bdb.Close()
}

type boltStorageTx struct {
	btx *bbolt.Tx
}

func (tx *boltStorageTx) Writable() bool { return tx.btx.Writable() }

func (tx *boltStorageTx) Bucket(name, sub []byte) storageBucket {
	root := tx.btx.Bucket(name)
	if root == nil {
		return nil
	}
	if len(sub) == 0 {
		return boltBucket{b: root}
	}
	leaf := root.Bucket(sub)
	if leaf == nil {
		return nil
	}
	return boltBucket{b: leaf}
}

func (tx *boltStorageTx) CreateBucket(name, sub []byte) (storageBucket, error) {
	root, err := tx.btx.CreateBucketIfNotExists(name)
	if err != nil {
		return nil, errors.Wrapf(err, "bolt: create bucket %x", name)
	}
	if len(sub) == 0 {
		return boltBucket{b: root}, nil
	}
	leaf, err := root.CreateBucketIfNotExists(sub)
	if err != nil {
		return nil, errors.Wrapf(err, "bolt: create bucket %x/%x", name, sub)
	}
	return boltBucket{b: leaf}, nil
}

func (tx *boltStorageTx) DeleteBucket(name, sub []byte) error {
	var err error
	if len(sub) == 0 {
		err = tx.btx.DeleteBucket(name)
	} else {
		root := tx.btx.Bucket(name)
		if root == nil {
			return errBucketNotFound
		}
		err = root.DeleteBucket(sub)
	}
	if err == bbolt.ErrBucketNotFound {
		return errBucketNotFound
	}
	return errors.Wrapf(err, "bolt: delete bucket %x/%x", name, sub)
}

func (tx *boltStorageTx) Commit() error {
	return errors.Wrap(tx.btx.Commit(), "bolt: commit")
}

func (tx *boltStorageTx) Rollback() error {
	err := tx.btx.Rollback()
	if err == bbolt.ErrTxClosed {
		return nil
	}
	return err
}

type boltBucket struct {
	b *bbolt.Bucket
}

func (b boltBucket) Get(key []byte) []byte { return b.b.Get(key) }

func (b boltBucket) Put(key, value []byte) error { return b.b.Put(key, value) }

func (b boltBucket) Delete(key []byte) error { return b.b.Delete(key) }

func (b boltBucket) Cursor() storageCursor { return boltCursor{c: b.b.Cursor()} }

func (b boltBucket) KeyCount() int { return b.b.Stats().KeyN }

type boltCursor struct {
	c *bbolt.Cursor
}

func (c boltCursor) First() ([]byte, []byte) { return c.c.First() }

func (c boltCursor) Seek(seek []byte) ([]byte, []byte) { return c.c.Seek(seek) }

func (c boltCursor) Next() ([]byte, []byte) { return c.c.Next() }
