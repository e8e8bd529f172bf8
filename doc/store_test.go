package doc

import (
	"testing"

	"github.com/algorealm/triggr/errs"
	"github.com/algorealm/triggr/kv"
)

type recordingPub struct {
	recs []ChangeRecord
}

func (p *recordingPub) PublishChange(cr ChangeRecord) { p.recs = append(p.recs, cr) }

func newTestStore(t *testing.T) (*Store, *recordingPub) {
	t.Helper()
	db, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	pub := &recordingPub{}
	return New(db, pub), pub
}

func TestInsertDocConflict(t *testing.T) {
	s, pub := newTestStore(t)
	if _, err := s.InsertDoc("p1", "users", "u1", StrValue("a")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := s.InsertDoc("p1", "users", "u1", StrValue("b"))
	if errs.KindOf(err) != errs.Conflict {
		t.Fatalf("want Conflict, got %v", err)
	}
	if len(pub.recs) != 1 || pub.recs[0].Op != OpInsert {
		t.Fatalf("want one insert change record, got %v", pub.recs)
	}
}

func TestPutDocVersioning(t *testing.T) {
	s, pub := newTestStore(t)
	d1, err := s.PutDoc("p1", "users", "u1", StrValue("a"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if d1.Version != 1 {
		t.Fatalf("want version 1, got %d", d1.Version)
	}
	d2, err := s.PutDoc("p1", "users", "u1", StrValue("b"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if d2.Version != 2 {
		t.Fatalf("want version 2, got %d", d2.Version)
	}
	if !d2.CreatedAt.Equal(d1.CreatedAt) {
		t.Fatalf("created_at should be preserved across updates")
	}
	if d2.UpdatedAt.Before(d1.UpdatedAt) {
		t.Fatalf("updated_at should not regress")
	}
	if len(pub.recs) != 2 || pub.recs[1].Op != OpUpdate {
		t.Fatalf("want insert then update change records, got %v", pub.recs)
	}
}

func TestPatchDocNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.PatchDoc("p1", "users", "missing", StrValue("x"))
	if errs.KindOf(err) != errs.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestPatchDocMergesShallow(t *testing.T) {
	s, _ := newTestStore(t)
	obj := Value{Kind: Obj, O: []Field{{Key: "a", Val: IntValue(1)}, {Key: "b", Val: IntValue(2)}}}
	if _, err := s.InsertDoc("p1", "users", "u1", obj); err != nil {
		t.Fatalf("insert: %v", err)
	}
	patch := Value{Kind: Obj, O: []Field{{Key: "b", Val: IntValue(9)}}}
	got, err := s.PatchDoc("p1", "users", "u1", patch)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	a, _ := got.Data.Get("a")
	b, _ := got.Data.Get("b")
	if a.N.String() != "1" || b.N.String() != "9" {
		t.Fatalf("merge mismatch: a=%v b=%v", a, b)
	}
}

func TestDeleteDocCountNeverNegative(t *testing.T) {
	s, pub := newTestStore(t)
	if _, err := s.InsertDoc("p1", "users", "u1", StrValue("a")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.DeleteDoc("p1", "users", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteDoc("p1", "users", "u1"); errs.KindOf(err) != errs.NotFound {
		t.Fatalf("want NotFound on second delete, got %v", err)
	}
	metas, err := s.ListCollections("p1")
	if err != nil {
		t.Fatalf("list collections: %v", err)
	}
	if len(metas) != 1 || metas[0].Count != 0 {
		t.Fatalf("want count 0, got %+v", metas)
	}
	if len(pub.recs) != 2 || pub.recs[1].Op != OpDelete {
		t.Fatalf("want insert then delete change records, got %v", pub.recs)
	}
}

func TestListDocsOrder(t *testing.T) {
	s, _ := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.InsertDoc("p1", "users", id, StrValue(id)); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	docs, err := s.ListDocs("p1", "users")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("want 3 docs, got %d", len(docs))
	}
}
