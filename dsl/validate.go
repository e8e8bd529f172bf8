package dsl

import (
	"regexp"

	"github.com/algorealm/triggr/reg"
)

var collRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// Compile validates script against schema and returns the resolved bound
// event name, per spec §4.4 rules 3-6. It does not execute anything.
func Compile(script *Script, schema reg.Schema) (string, error) {
	bound, line, err := resolveBoundEvent(script.Body)
	if err != nil {
		return "", err
	}
	if bound == "" {
		return "", errf(0, "could not determine the trigger's bound event; use events.<Event>.<field> at least once")
	}
	if _, ok := schema.Event(bound); !ok {
		return "", errf(line, "unknown event %q referenced by trigger", bound)
	}
	if err := checkNode(script.Body, schema, bound); err != nil {
		return "", err
	}
	return bound, nil
}

// resolveBoundEvent walks the tree collecting explicit events.<Event>.
// references; rule 6 rejects more than one distinct event name. It also
// returns the line of the first reference to the bound event.
func resolveBoundEvent(n Node) (string, int, error) {
	var found string
	var line int
	var walkErr error
	walkNode(n, func(e Expr) {
		if walkErr != nil {
			return
		}
		if fr, ok := e.(FieldRef); ok && fr.Event != "" {
			if found == "" {
				found, line = fr.Event, fr.Line
			} else if found != fr.Event {
				walkErr = errf(fr.Line, "trigger references more than one event (%q and %q); a trigger may bind at most one", found, fr.Event)
			}
		}
	})
	return found, line, walkErr
}

// walkNode calls visit on every Expr reachable from n.
func walkNode(n Node, visit func(Expr)) {
	switch s := n.(type) {
	case Seq:
		for _, c := range s.Stmts {
			walkNode(c, visit)
		}
	case If:
		walkExpr(s.Cond, visit)
		walkNode(s.Then, visit)
		if s.Else != nil {
			walkNode(s.Else, visit)
		}
	case Insert:
		if s.ID != nil {
			walkExpr(s.ID, visit)
		}
		for _, f := range s.Fields {
			walkExpr(f.Val, visit)
		}
	case Update:
		if s.ID != nil {
			walkExpr(s.ID, visit)
		}
		for _, f := range s.Fields {
			walkExpr(f.Val, visit)
		}
	case Delete:
		if s.ID != nil {
			walkExpr(s.ID, visit)
		}
	}
}

func walkExpr(e Expr, visit func(Expr)) {
	visit(e)
	switch x := e.(type) {
	case CompareExpr:
		walkExpr(x.Left, visit)
		walkExpr(x.Right, visit)
	case BoolExpr:
		walkExpr(x.Left, visit)
		walkExpr(x.Right, visit)
	}
}

// checkNode verifies collection names, field references, and comparison
// type compatibility throughout the tree.
func checkNode(n Node, schema reg.Schema, bound string) error {
	switch s := n.(type) {
	case Seq:
		for _, c := range s.Stmts {
			if err := checkNode(c, schema, bound); err != nil {
				return err
			}
		}
	case If:
		if err := checkExpr(s.Cond, schema, bound); err != nil {
			return err
		}
		if err := checkNode(s.Then, schema, bound); err != nil {
			return err
		}
		if s.Else != nil {
			if err := checkNode(s.Else, schema, bound); err != nil {
				return err
			}
		}
	case Insert:
		if err := checkColl(s.Collection, s.Line); err != nil {
			return err
		}
		if s.ID != nil {
			if err := checkExpr(s.ID, schema, bound); err != nil {
				return err
			}
		}
		for _, f := range s.Fields {
			if err := checkExpr(f.Val, schema, bound); err != nil {
				return err
			}
		}
	case Update:
		if err := checkColl(s.Collection, s.Line); err != nil {
			return err
		}
		if err := checkExpr(s.ID, schema, bound); err != nil {
			return err
		}
		for _, f := range s.Fields {
			if err := checkExpr(f.Val, schema, bound); err != nil {
				return err
			}
		}
	case Delete:
		if err := checkColl(s.Collection, s.Line); err != nil {
			return err
		}
		if err := checkExpr(s.ID, schema, bound); err != nil {
			return err
		}
	}
	return nil
}

func checkColl(name string, line int) error {
	if !collRe.MatchString(name) {
		return errf(line, "invalid collection name %q", name)
	}
	return nil
}

func checkExpr(e Expr, schema reg.Schema, bound string) error {
	switch x := e.(type) {
	case FieldRef:
		ev := x.Event
		if ev == "" {
			ev = bound
		}
		if ev != bound {
			return errf(x.Line, "unknown event %q", ev)
		}
		if _, ok := schema.Field(bound, x.Field); !ok {
			return errf(x.Line, "event %q has no field %q", bound, x.Field)
		}
	case CompareExpr:
		if err := checkExpr(x.Left, schema, bound); err != nil {
			return err
		}
		if err := checkExpr(x.Right, schema, bound); err != nil {
			return err
		}
		lt, lok := exprCategory(x.Left, schema, bound)
		rt, rok := exprCategory(x.Right, schema, bound)
		if lok && rok && lt != rt {
			return errf(x.Line, "comparison between incompatible types %s and %s", lt, rt)
		}
	case BoolExpr:
		if err := checkExpr(x.Left, schema, bound); err != nil {
			return err
		}
		if err := checkExpr(x.Right, schema, bound); err != nil {
			return err
		}
	}
	return nil
}

// exprCategory classifies an expression as "num", "str", or "bool" for
// the static comparison type check of spec §4.4.
func exprCategory(e Expr, schema reg.Schema, bound string) (string, bool) {
	switch x := e.(type) {
	case LitExpr:
		switch x.Kind {
		case Number:
			return "num", true
		case String:
			return "str", true
		case Bool:
			return "bool", true
		}
	case FieldRef:
		ev := x.Event
		if ev == "" {
			ev = bound
		}
		f, ok := schema.Field(ev, x.Field)
		if !ok {
			return "", false
		}
		switch f.Type {
		case reg.TypeBool:
			return "bool", true
		case reg.TypeU8, reg.TypeU16, reg.TypeU32, reg.TypeU64, reg.TypeU128,
			reg.TypeI8, reg.TypeI16, reg.TypeI32, reg.TypeI64, reg.TypeI128:
			return "num", true
		default:
			return "str", true
		}
	}
	return "", false
}
