// Package reg is the contract registry (C3): projects, their parsed
// contract event schema, and a read-through cache of that schema for the
// chain ingester.
package reg

import (
	"encoding/json"

	"github.com/algorealm/triggr/errs"
)

// ScalarType is one of the scalar argument types the registry can resolve
// an event field to, per spec §4.3.
type ScalarType string

const (
	TypeU8      ScalarType = "u8"
	TypeU16     ScalarType = "u16"
	TypeU32     ScalarType = "u32"
	TypeU64     ScalarType = "u64"
	TypeU128    ScalarType = "u128"
	TypeI8      ScalarType = "i8"
	TypeI16     ScalarType = "i16"
	TypeI32     ScalarType = "i32"
	TypeI64     ScalarType = "i64"
	TypeI128    ScalarType = "i128"
	TypeBool    ScalarType = "bool"
	TypeBytesN  ScalarType = "bytes_fixed"
	TypeBytes   ScalarType = "bytes"
	TypeAccount ScalarType = "account_id"
	TypeOpaque  ScalarType = "opaque"
)

// FieldDecl is one resolved (name, scalar type) pair of an event argument.
type FieldDecl struct {
	Name string     `json:"name"`
	Type ScalarType `json:"type"`
	// Len is the byte width for fixed-width integer and bytes_fixed types.
	Len int `json:"len,omitempty"`
}

// EventDecl is one contract event with its resolved argument list, plus
// the SCALE dispatch index used to identify it in a decoded payload.
type EventDecl struct {
	Name   string      `json:"name"`
	Index  byte        `json:"index"`
	Fields []FieldDecl `json:"fields"`
}

// Schema is a project's parsed contract event schema.
type Schema struct {
	Events []EventDecl `json:"events"`
}

// Event looks up a declared event by name.
func (s Schema) Event(name string) (EventDecl, bool) {
	for _, e := range s.Events {
		if e.Name == name {
			return e, true
		}
	}
	return EventDecl{}, false
}

// Field looks up field on event name.
func (s Schema) Field(event, field string) (FieldDecl, bool) {
	ev, ok := s.Event(event)
	if !ok {
		return FieldDecl{}, false
	}
	for _, f := range ev.Fields {
		if f.Name == field {
			return f, true
		}
	}
	return FieldDecl{}, false
}

// descriptor mirrors the required top-level keys of contracts.json per
// spec §6: source.hash, contract.name, spec, types, version.
type descriptor struct {
	Source struct {
		Hash string `json:"hash"`
	} `json:"source"`
	Contract struct {
		Name string `json:"name"`
	} `json:"contract"`
	Spec    specSection       `json:"spec"`
	Types   []typeDef         `json:"types"`
	Version json.Number       `json:"version"`
}

type specSection struct {
	Events []descEvent `json:"events"`
}

type descEvent struct {
	Label  string     `json:"label"`
	Index  *int       `json:"index,omitempty"`
	Args   []descArg  `json:"args"`
}

type descArg struct {
	Label string `json:"label"`
	Type  struct {
		TypeID int `json:"type_id"`
	} `json:"type"`
}

type typeDef struct {
	ID   int `json:"id"`
	Type struct {
		Path []string `json:"path"`
		Def  json.RawMessage `json:"def"`
	} `json:"type"`
}

// ParseDescriptor parses a contracts.json payload into (hash, name,
// Schema), per the field resolution rules of spec §4.3. Any event whose
// argument type cannot be resolved to a supported scalar is recorded with
// type=opaque.
func ParseDescriptor(raw []byte) (hash, name string, schema Schema, err error) {
	var d descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", "", Schema{}, errs.Wrap(errs.Validation, err, "invalid contract descriptor JSON")
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return "", "", Schema{}, errs.Wrap(errs.Validation, err, "invalid contract descriptor JSON")
	}
	for _, k := range []string{"source", "contract", "spec", "types", "version"} {
		if _, ok := top[k]; !ok {
			return "", "", Schema{}, errs.New(errs.Validation, "contract descriptor missing required key %q", k)
		}
	}
	if d.Source.Hash == "" || d.Contract.Name == "" || d.Types == nil {
		return "", "", Schema{}, errs.New(errs.Validation, "contract descriptor missing required keys")
	}
	types := make(map[int]typeDef, len(d.Types))
	for _, t := range d.Types {
		types[t.ID] = t
	}
	var events []EventDecl
	for i, e := range d.Spec.Events {
		idx := byte(i)
		if e.Index != nil {
			idx = byte(*e.Index)
		}
		ed := EventDecl{Name: e.Label, Index: idx}
		for _, a := range e.Args {
			ed.Fields = append(ed.Fields, resolveField(a, types))
		}
		events = append(events, ed)
	}
	return d.Source.Hash, d.Contract.Name, Schema{Events: events}, nil
}

// scaleDef mirrors the tagged shape scale_info gives a type's `def` key:
// exactly one of Primitive/Array/Sequence is set for the shapes this
// registry resolves (composite/variant/tuple/compact fall through to
// opaque, since spec §4.3's scalar set has no analog for them).
type scaleDef struct {
	Primitive *string `json:"primitive,omitempty"`
	Array     *struct {
		Len  int `json:"len"`
		Type int `json:"type"`
	} `json:"array,omitempty"`
	Sequence *struct {
		Type int `json:"type"`
	} `json:"sequence,omitempty"`
}

func resolveField(a descArg, types map[int]typeDef) FieldDecl {
	t, ok := types[a.Type.TypeID]
	if !ok {
		return FieldDecl{Name: a.Label, Type: TypeOpaque}
	}
	if st, ln, ok := resolveDef(t.Type.Def, types); ok {
		return FieldDecl{Name: a.Label, Type: st, Len: ln}
	}
	if len(t.Type.Path) == 0 {
		return FieldDecl{Name: a.Label, Type: TypeOpaque}
	}
	leaf := t.Type.Path[len(t.Type.Path)-1]
	st, ln, ok := scalarFromPath(leaf)
	if !ok {
		return FieldDecl{Name: a.Label, Type: TypeOpaque}
	}
	return FieldDecl{Name: a.Label, Type: st, Len: ln}
}

// resolveDef recognizes scale_info's `array`/`sequence` def shapes over a
// byte element type as spec §4.3's fixed/variable-length byte types: a
// fixed-size array of u8 is bytes_fixed (Len = array length), a sequence
// of u8 is bytes (variable length, Len unset). A `primitive` def resolves
// by its name (u8..u128, i8..i128, bool); other primitives are not
// resolved here.
func resolveDef(raw json.RawMessage, types map[int]typeDef) (ScalarType, int, bool) {
	if len(raw) == 0 {
		return "", 0, false
	}
	var d scaleDef
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", 0, false
	}
	switch {
	case d.Array != nil && isByteElement(d.Array.Type, types):
		return TypeBytesN, d.Array.Len, true
	case d.Sequence != nil && isByteElement(d.Sequence.Type, types):
		return TypeBytes, 0, true
	case d.Primitive != nil:
		return scalarFromPath(*d.Primitive)
	default:
		return "", 0, false
	}
}

// isByteElement reports whether the type at id resolves to u8, either via
// its `def.primitive` tag or its path's leaf name.
func isByteElement(id int, types map[int]typeDef) bool {
	t, ok := types[id]
	if !ok {
		return false
	}
	if len(t.Type.Def) > 0 {
		var d scaleDef
		if err := json.Unmarshal(t.Type.Def, &d); err == nil && d.Primitive != nil {
			return *d.Primitive == "u8"
		}
	}
	if len(t.Type.Path) == 0 {
		return false
	}
	leaf := t.Type.Path[len(t.Type.Path)-1]
	st, _, ok := scalarFromPath(leaf)
	return ok && st == TypeU8
}

func scalarFromPath(leaf string) (ScalarType, int, bool) {
	switch leaf {
	case "u8":
		return TypeU8, 1, true
	case "u16":
		return TypeU16, 2, true
	case "u32":
		return TypeU32, 4, true
	case "u64":
		return TypeU64, 8, true
	case "u128":
		return TypeU128, 16, true
	case "i8":
		return TypeI8, 1, true
	case "i16":
		return TypeI16, 2, true
	case "i32":
		return TypeI32, 4, true
	case "i64":
		return TypeI64, 8, true
	case "i128":
		return TypeI128, 16, true
	case "bool":
		return TypeBool, 1, true
	case "AccountId", "AccountId32":
		return TypeAccount, 32, true
	default:
		return "", 0, false
	}
}
