package kv

import (
	"testing"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetDelete(t *testing.T) {
	db := openTest(t)
	if err := db.Put(BucketDoc, []byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := db.Get(BucketDoc, []byte("a"))
	if err != nil || string(v) != "1" {
		t.Fatalf("get: got %q, %v", v, err)
	}
	if err := db.Delete(BucketDoc, []byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(BucketDoc, []byte("a")); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestScanPrefixOrder(t *testing.T) {
	db := openTest(t)
	keys := []string{"doc/p1/c/1", "doc/p1/c/2", "doc/p1/c/3", "doc/p2/c/1"}
	for _, k := range keys {
		if err := db.Put(BucketDoc, []byte(k), []byte("v")); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	var got []string
	err := db.ScanPrefix(BucketDoc, []byte("doc/p1/"), func(it Item) bool {
		got = append(got, string(it.Key))
		return true
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{"doc/p1/c/1", "doc/p1/c/2", "doc/p1/c/3"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestBatchAtomic(t *testing.T) {
	db := openTest(t)
	err := db.Batch([]Op{
		{Bucket: BucketDoc, Key: []byte("a"), Value: []byte("1")},
		{Bucket: BucketColl, Key: []byte("meta"), Value: []byte("m")},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if _, err := db.Get(BucketDoc, []byte("a")); err != nil {
		t.Fatalf("doc missing: %v", err)
	}
	if _, err := db.Get(BucketColl, []byte("meta")); err != nil {
		t.Fatalf("coll missing: %v", err)
	}
}
