// Package kv adapts go.etcd.io/bbolt to the ordered byte-key/byte-value
// contract C1 of the node: get/put/delete, prefix scan, and atomic batch
// commit. The four key families (proj, tkey, coll, doc) each live in their
// own bbolt bucket so prefix scans never cross families.
package kv

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/mb0/xelf/cor"
	"go.etcd.io/bbolt"
)

// Bucket names the key families described in spec §4.1.
type Bucket string

const (
	BucketProj Bucket = "proj"
	BucketTkey Bucket = "tkey"
	BucketColl Bucket = "coll"
	BucketDoc  Bucket = "doc"
)

var allBuckets = []Bucket{BucketProj, BucketTkey, BucketColl, BucketDoc}

// DB is the embedded key-value store backing a single node.
type DB struct {
	bolt *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at dir/triggr.db.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cor.Errorf("kv: create data dir: %w", err)
	}
	b, err := bbolt.Open(filepath.Join(dir, "triggr.db"), 0o644, nil)
	if err != nil {
		return nil, cor.Errorf("kv: open: %w", err)
	}
	err = b.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Close()
		return nil, cor.Errorf("kv: init buckets: %w", err)
	}
	return &DB{bolt: b}, nil
}

func (db *DB) Close() error { return db.bolt.Close() }

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = cor.Error("kv: not found")

// Get returns a copy of the value stored at key, or ErrNotFound.
func (db *DB) Get(bucket Bucket, key []byte) ([]byte, error) {
	var val []byte
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucket)).Get(key)
		if v == nil {
			return ErrNotFound
		}
		val = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Put stores value at key in a single committed transaction.
func (db *DB) Put(bucket Bucket, key, value []byte) error {
	return db.Batch([]Op{{Bucket: bucket, Key: key, Value: value}})
}

// Delete removes key from bucket; absent keys are not an error.
func (db *DB) Delete(bucket Bucket, key []byte) error {
	return db.Batch([]Op{{Bucket: bucket, Key: key, Delete: true}})
}

// Op is one write in a Batch: a Put (Delete=false, Value set) or a Delete.
type Op struct {
	Bucket Bucket
	Key    []byte
	Value  []byte
	Delete bool
}

// Batch applies ops atomically in a single bbolt transaction. bbolt fsyncs
// on Commit, so a successful return means the batch is durable.
func (db *DB) Batch(ops []Op) error {
	return db.bolt.Update(func(tx *bbolt.Tx) error {
		for _, op := range ops {
			b := tx.Bucket([]byte(op.Bucket))
			if b == nil {
				return cor.Errorf("kv: unknown bucket %s", op.Bucket)
			}
			var err error
			if op.Delete {
				err = b.Delete(op.Key)
			} else {
				err = b.Put(op.Key, op.Value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Item is one key/value pair yielded by ScanPrefix.
type Item struct {
	Key   []byte
	Value []byte
}

// ScanPrefix calls fn for every key in bucket with the given prefix, in
// ascending lexicographic key order, stopping early if fn returns false.
func (db *DB) ScanPrefix(bucket Bucket, prefix []byte, fn func(Item) bool) error {
	return db.bolt.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !fn(Item{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)}) {
				break
			}
		}
		return nil
	})
}
