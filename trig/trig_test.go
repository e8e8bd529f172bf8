package trig

import (
	"testing"
	"time"

	"github.com/algorealm/triggr/chain"
	"github.com/algorealm/triggr/doc"
	"github.com/algorealm/triggr/kv"
	"github.com/algorealm/triggr/log"
	"github.com/algorealm/triggr/reg"
)

func testSchema() reg.Schema {
	return reg.Schema{Events: []reg.EventDecl{
		{Name: "Transfer", Fields: []reg.FieldDecl{
			{Name: "amount", Type: reg.TypeU64},
		}},
	}}
}

func TestStoreCreateGetDelete(t *testing.T) {
	db, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	s := NewStore(db)
	tr := Trigger{ID: "t1", ProjectID: "p1", Source: "fn main(events) {}", Active: true, CreatedAt: time.Now()}
	if err := s.Create(tr); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Get("p1", "t1")
	if err != nil || got.ID != "t1" {
		t.Fatalf("get: %v, %+v", err, got)
	}
	if err := s.Delete("p1", "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("p1", "t1"); err == nil {
		t.Fatal("want error after delete")
	}
}

func TestRouterDispatchesInTriggerIDOrder(t *testing.T) {
	db, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	docs := doc.New(db, nil)
	tstore := NewStore(db)

	src1 := `fn main(events) { insert @log { step: "b", amount: events.Transfer.amount } }`
	src2 := `fn main(events) { insert @log { step: "a", amount: events.Transfer.amount } }`
	tr1 := Trigger{ID: "b_trigger", ProjectID: "p1", Source: src1, Active: true}
	tr2 := Trigger{ID: "a_trigger", ProjectID: "p1", Source: src2, Active: true}
	if err := tstore.Create(tr1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tstore.Create(tr2); err != nil {
		t.Fatalf("create: %v", err)
	}

	idx := NewIndex()
	idx.Rebuild([]Trigger{tr1, tr2}, tstore, func(string) (reg.Schema, bool) { return testSchema(), true }, &log.Default{})

	intake := make(chan chain.DecodedEvent, 1)
	router, err := NewRouter(idx, tstore, docs, &log.Default{}, intake, 2)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	defer router.Stop()

	done := make(chan struct{})
	go func() {
		router.dispatch(chain.DecodedEvent{ProjectID: "p1", Name: "Transfer", Fields: map[string]doc.Value{"amount": doc.IntValue(7)}})
		close(done)
	}()
	<-done

	got, err := tstore.Get("p1", "a_trigger")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastRunAt.IsZero() {
		t.Fatal("want last_run_at updated")
	}
	gotB, err := tstore.Get("p1", "b_trigger")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotB.LastRunAt.Before(got.LastRunAt) {
		t.Fatalf("want a_trigger to run before b_trigger, got a=%v b=%v", got.LastRunAt, gotB.LastRunAt)
	}
	docsList, err := docs.ListDocs("p1", "log")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docsList) != 2 {
		t.Fatalf("want 2 docs inserted, got %d", len(docsList))
	}
}

func TestRebuildDeactivatesTriggerOnCompileFailure(t *testing.T) {
	db, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	tstore := NewStore(db)

	bad := Trigger{ID: "t1", ProjectID: "p1", Source: "fn main(events) { not valid daql", Active: true}
	if err := tstore.Create(bad); err != nil {
		t.Fatalf("create: %v", err)
	}

	idx := NewIndex()
	idx.Rebuild([]Trigger{bad}, tstore, func(string) (reg.Schema, bool) { return testSchema(), true }, &log.Default{})

	got, err := tstore.Get("p1", "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Active {
		t.Fatal("want trigger deactivated after parse failure")
	}
	if len(idx.Lookup("p1", "Transfer")) != 0 {
		t.Fatal("want no compiled entry for a trigger that failed to parse")
	}
}
