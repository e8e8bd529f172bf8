package dsl

import (
	"context"
	"testing"

	"github.com/algorealm/triggr/doc"
	"github.com/algorealm/triggr/kv"
	"github.com/algorealm/triggr/reg"
)

const src = `
// trigger comment
const events = [
  Transfer { from, to, amount }
]

fn main(events) {
  if (events.Transfer.amount > 100) {
    insert @payments { from: events.Transfer.from, to: events.Transfer.to, amount: events.Transfer.amount }
  } else {
    update @payments:events.Transfer.from { status: "small" }
  }
}
`

func testSchema() reg.Schema {
	return reg.Schema{Events: []reg.EventDecl{
		{Name: "Transfer", Fields: []reg.FieldDecl{
			{Name: "from", Type: reg.TypeAccount},
			{Name: "to", Type: reg.TypeAccount},
			{Name: "amount", Type: reg.TypeU128},
		}},
	}}
}

func TestParseAndCompile(t *testing.T) {
	script, stripped, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if stripped == src {
		t.Fatal("expected comments to be stripped")
	}
	bound, err := Compile(script, testSchema())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if bound != "Transfer" {
		t.Fatalf("want bound event Transfer, got %s", bound)
	}
}

func TestCompileRejectsUnknownField(t *testing.T) {
	script, _, err := Parse(`fn main(events) { insert @p { x: events.Transfer.nope } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Compile(script, testSchema()); err == nil {
		t.Fatal("want error for unknown field")
	}
}

func TestCompileRejectsMultipleEvents(t *testing.T) {
	script, _, err := Parse(`fn main(events) { if (events.A.x == events.B.y) { delete @p:1 } }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	schema := reg.Schema{Events: []reg.EventDecl{
		{Name: "A", Fields: []reg.FieldDecl{{Name: "x", Type: reg.TypeU32}}},
		{Name: "B", Fields: []reg.FieldDecl{{Name: "y", Type: reg.TypeU32}}},
	}}
	if _, err := Compile(script, schema); err == nil {
		t.Fatal("want error for multiple bound events")
	}
}

func TestUnbalancedBracesReportsLine(t *testing.T) {
	_, _, err := Parse("fn main(events) {\n  insert @p { a: 1 \n")
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("want *ParseError, got %T (%v)", err, err)
	}
	if pe.Line == 0 {
		t.Fatalf("want a non-zero line number")
	}
}

func TestEvaluatorInsertAndUpdate(t *testing.T) {
	script, _, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Compile(script, testSchema()); err != nil {
		t.Fatalf("compile: %v", err)
	}

	db, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	store := doc.New(db, nil)
	evalr := &Evaluator{Store: store, Project: "p1"}

	fields := map[string]doc.Value{
		"from":   doc.StrValue("alice"),
		"to":     doc.StrValue("bob"),
		"amount": doc.IntValue(500),
	}
	if err := evalr.Run(context.Background(), script, fields); err != nil {
		t.Fatalf("run: %v", err)
	}
	docs, err := store.ListDocs("p1", "payments")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("want 1 doc inserted, got %d", len(docs))
	}

	fields["amount"] = doc.IntValue(10)
	if _, err := store.InsertDoc("p1", "payments", "alice", doc.StrValue("seed")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := evalr.Run(context.Background(), script, fields); err != nil {
		t.Fatalf("run else branch: %v", err)
	}
	got, err := store.GetDoc("p1", "payments", "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	status, ok := got.Data.Get("status")
	if !ok || status.S != "small" {
		t.Fatalf("want status=small, got %+v", got.Data)
	}
}

func TestEvaluatorRunAbortsOnExpiredBudget(t *testing.T) {
	script, _, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Compile(script, testSchema()); err != nil {
		t.Fatalf("compile: %v", err)
	}
	db, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	evalr := &Evaluator{Store: doc.New(db, nil), Project: "p1"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fields := map[string]doc.Value{
		"from":   doc.StrValue("alice"),
		"to":     doc.StrValue("bob"),
		"amount": doc.IntValue(500),
	}
	err = evalr.Run(ctx, script, fields)
	if err == nil {
		t.Fatal("want error for an already-expired budget")
	}
}
