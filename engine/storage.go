package engine

import "errors"

var errBucketNotFound = errors.New("bucket not found")

// storage is a sorted key-value backend with two-level buckets (bbolt or in-memory).
type storage interface {
	BeginTx(writable bool) (storageTx, error)
	Close() error
}

type storageTx interface {
	Writable() bool

	// Bucket returns a bucket. Use sub="" for a root bucket, non-empty for a nested bucket.
	// Returns nil if the bucket doesn't exist.
	Bucket(name, sub []byte) storageBucket

	// CreateBucket creates a bucket if it doesn't exist, creating the root as needed.
	CreateBucket(name, sub []byte) (storageBucket, error)

	// DeleteBucket deletes a nested bucket, or a root bucket with all of its
	// nested buckets when sub is empty.
	DeleteBucket(name, sub []byte) error

	Commit() error

	// Rollback aborts the transaction. Safe to call after Commit.
	Rollback() error
}

type storageBucket interface {
	// Get returns nil if not found. The result is only valid until the tx ends.
	Get(key []byte) []byte
	Put(key, value []byte) error
	Delete(key []byte) error
	Cursor() storageCursor
	KeyCount() int
}

// storageCursor iterates over a sorted bucket. Nil key means no more items.
type storageCursor interface {
	First() (key, value []byte)
	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
}
