package dsl

// Script is the parsed program: an optional const events declaration and
// the body of fn main(events). Per spec §4.4 rule 6, the body references
// at most one event name; BoundEvent holds it once validation resolves it.
type Script struct {
	Decls      []EventDecl
	Body       Node
	BoundEvent string
}

// EventDecl is one `Name { f1, f2, ... }` entry of a const events block.
// It is informational only — the runtime authoritatively resolves fields
// against the project's contract schema, per spec §4.4.
type EventDecl struct {
	Name   string
	Fields []string
	Line   int
}

// Node is one statement of a RuleTree: If, Insert, Update, Delete, or a
// Seq of them.
type Node interface{ node() }

type Seq struct{ Stmts []Node }

type If struct {
	Cond Expr
	Then Node
	Else Node // nil if no else branch
	Line int
}

type FieldExpr struct {
	Name string
	Val  Expr
	Line int
}

// Insert is `insert @<coll>[:<id>] { fields }`.
type Insert struct {
	Collection string
	ID         Expr // nil when absent (auto-generate UUID)
	Fields     []FieldExpr
	Line       int
}

// Update is `update @<coll>:<id> { fields }`.
type Update struct {
	Collection string
	ID         Expr
	Fields     []FieldExpr
	Line       int
}

// Delete is `delete @<coll>:<id>`.
type Delete struct {
	Collection string
	ID         Expr
	Line       int
}

func (Seq) node()    {}
func (If) node()     {}
func (Insert) node() {}
func (Update) node() {}
func (Delete) node() {}

// Expr is one expression node: a literal, a field reference, a
// comparison, or a boolean composition.
type Expr interface{ expr() }

type LitExpr struct {
	Kind Kind // Number, String, or Bool
	Text string
	Line int
}

// FieldRef is `events.<Event>.<field>` or the legacy `event.<field>`.
type FieldRef struct {
	Event string // "" when using the legacy short form
	Field string
	Line  int
}

type CompareExpr struct {
	Op    Kind // Eq, Ne, Lt, Le, Gt, Ge
	Left  Expr
	Right Expr
	Line  int
}

// BoolExpr is `a && b` or `a || b` — the composition noted as "not
// required at v1" by spec §4.4 but added here (see SPEC_FULL.md).
type BoolExpr struct {
	Op    Kind // And, Or
	Left  Expr
	Right Expr
	Line  int
}

func (LitExpr) expr()     {}
func (FieldRef) expr()    {}
func (CompareExpr) expr() {}
func (BoolExpr) expr()    {}
