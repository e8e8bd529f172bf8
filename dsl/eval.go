package dsl

import (
	"context"
	"encoding/json"

	"github.com/algorealm/triggr/doc"
	"github.com/algorealm/triggr/errs"
)

// Evaluator executes a compiled Script against one decoded event, applying
// mutations through a project-scoped doc.Store (C5).
type Evaluator struct {
	Store   *doc.Store
	Project string
}

// Run executes script.Body against fields, the bound event's decoded
// field values. Statements execute in textual order; a failing statement
// aborts the remaining statements of this invocation, per spec §4.5. ctx
// carries the per-invocation wall-clock budget (spec §5); it is checked
// at each statement boundary so a script that has already run past its
// budget aborts before starting its next statement.
func (ev *Evaluator) Run(ctx context.Context, script *Script, fields map[string]doc.Value) error {
	return ev.execNode(ctx, script.Body, fields)
}

func (ev *Evaluator) execNode(ctx context.Context, n Node, fields map[string]doc.Value) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Timeout, err, "dsl: evaluation budget exceeded")
	}
	switch s := n.(type) {
	case Seq:
		for _, c := range s.Stmts {
			if err := ev.execNode(ctx, c, fields); err != nil {
				return err
			}
		}
		return nil
	case If:
		ok, err := ev.evalBool(s.Cond, fields)
		if err != nil {
			return err
		}
		if ok {
			return ev.execNode(ctx, s.Then, fields)
		}
		if s.Else != nil {
			return ev.execNode(ctx, s.Else, fields)
		}
		return nil
	case Insert:
		id, err := ev.evalID(s.ID, fields)
		if err != nil {
			return err
		}
		val, err := ev.buildObject(s.Fields, fields)
		if err != nil {
			return err
		}
		_, err = ev.Store.InsertDoc(ev.Project, s.Collection, id, val)
		return err
	case Update:
		id, err := ev.evalID(s.ID, fields)
		if err != nil {
			return err
		}
		val, err := ev.buildObject(s.Fields, fields)
		if err != nil {
			return err
		}
		_, err = ev.Store.PatchDoc(ev.Project, s.Collection, id, val)
		return err
	case Delete:
		id, err := ev.evalID(s.ID, fields)
		if err != nil {
			return err
		}
		return ev.Store.DeleteDoc(ev.Project, s.Collection, id)
	}
	return errs.New(errs.Internal, "dsl: unhandled node %T", n)
}

func (ev *Evaluator) buildObject(fieldExprs []FieldExpr, fields map[string]doc.Value) (doc.Value, error) {
	out := doc.Value{Kind: doc.Obj}
	for _, fe := range fieldExprs {
		v, err := ev.evalValue(fe.Val, fields)
		if err != nil {
			return doc.Value{}, err
		}
		out = out.Set(fe.Name, v)
	}
	return out, nil
}

func (ev *Evaluator) evalID(e Expr, fields map[string]doc.Value) (string, error) {
	if e == nil {
		return "", nil
	}
	v, err := ev.evalValue(e, fields)
	if err != nil {
		return "", err
	}
	switch v.Kind {
	case doc.Str:
		return v.S, nil
	case doc.Num:
		return v.N.String(), nil
	default:
		return "", errs.New(errs.Internal, "dsl: id expression did not evaluate to a scalar")
	}
}

func (ev *Evaluator) evalValue(e Expr, fields map[string]doc.Value) (doc.Value, error) {
	switch x := e.(type) {
	case LitExpr:
		switch x.Kind {
		case Number:
			return doc.NumValue(json.Number(x.Text)), nil
		case String:
			return doc.StrValue(x.Text), nil
		case Bool:
			return doc.BoolValue(x.Text == "true"), nil
		}
	case FieldRef:
		v, ok := fields[x.Field]
		if !ok {
			return doc.Value{}, errs.New(errs.Internal, "dsl: event field %q missing from decoded event", x.Field)
		}
		return v, nil
	}
	return doc.Value{}, errs.New(errs.Internal, "dsl: cannot evaluate %T as a value", e)
}

func (ev *Evaluator) evalBool(e Expr, fields map[string]doc.Value) (bool, error) {
	switch x := e.(type) {
	case BoolExpr:
		l, err := ev.evalBool(x.Left, fields)
		if err != nil {
			return false, err
		}
		if x.Op == And && !l {
			return false, nil
		}
		if x.Op == Or && l {
			return true, nil
		}
		return ev.evalBool(x.Right, fields)
	case CompareExpr:
		l, err := ev.evalValue(x.Left, fields)
		if err != nil {
			return false, err
		}
		r, err := ev.evalValue(x.Right, fields)
		if err != nil {
			return false, err
		}
		return compareValues(x.Op, l, r)
	case LitExpr:
		if x.Kind == Bool {
			return x.Text == "true", nil
		}
	}
	return false, errs.New(errs.Internal, "dsl: expression %T is not a boolean condition", e)
}

func compareValues(op Kind, l, r doc.Value) (bool, error) {
	if l.Kind != r.Kind {
		return false, errs.New(errs.Internal, "dsl: comparison between mismatched value kinds")
	}
	switch l.Kind {
	case doc.Num:
		lf, err := l.N.Float64()
		if err != nil {
			return false, err
		}
		rf, err := r.N.Float64()
		if err != nil {
			return false, err
		}
		return numCompare(op, lf, rf), nil
	case doc.Str:
		return strCompare(op, l.S, r.S)
	case doc.Bool:
		switch op {
		case Eq:
			return l.B == r.B, nil
		case Ne:
			return l.B != r.B, nil
		default:
			return false, errs.New(errs.Internal, "dsl: boolean values only support == and !=")
		}
	}
	return false, errs.New(errs.Internal, "dsl: unsupported comparison operand kind")
}

func numCompare(op Kind, l, r float64) bool {
	switch op {
	case Eq:
		return l == r
	case Ne:
		return l != r
	case Lt:
		return l < r
	case Le:
		return l <= r
	case Gt:
		return l > r
	case Ge:
		return l >= r
	}
	return false
}

func strCompare(op Kind, l, r string) (bool, error) {
	switch op {
	case Eq:
		return l == r, nil
	case Ne:
		return l != r, nil
	case Lt:
		return l < r, nil
	case Le:
		return l <= r, nil
	case Gt:
		return l > r, nil
	case Ge:
		return l >= r, nil
	}
	return false, errs.New(errs.Internal, "dsl: unknown comparison operator")
}
