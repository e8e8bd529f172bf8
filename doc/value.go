// Package doc implements the document store (C2): ordered key-value
// documents grouped into collections, with per-key write serialization and
// change notification to the pub/sub bus (C8).
package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mb0/xelf/cor"
)

// Kind tags the variant held by a Value, per the tagged value tree noted
// in spec §9's design notes.
type Kind byte

const (
	Null Kind = iota
	Bool
	Num
	Str
	Arr
	Obj
)

// Value is a document field value. Objects keep field insertion order
// instead of collapsing into an unordered map, so a document read back
// reflects the order it was written in.
type Value struct {
	Kind Kind
	B    bool
	N    json.Number
	S    string
	A    []Value
	O    []Field
}

// Field is one ordered key/value pair of an Obj-kind Value.
type Field struct {
	Key string
	Val Value
}

func NullValue() Value       { return Value{Kind: Null} }
func BoolValue(b bool) Value { return Value{Kind: Bool, B: b} }
func StrValue(s string) Value { return Value{Kind: Str, S: s} }
func IntValue(i int64) Value {
	return Value{Kind: Num, N: json.Number(strconv.FormatInt(i, 10))}
}
func NumValue(n json.Number) Value { return Value{Kind: Num, N: n} }

// Get returns the value of field key on an Obj, and whether it was found.
func (v Value) Get(key string) (Value, bool) {
	for _, f := range v.O {
		if f.Key == key {
			return f.Val, true
		}
	}
	return Value{}, false
}

// Set returns a copy of v with key set to val, preserving existing field
// order and appending new keys at the end. v must be Obj or Null.
func (v Value) Set(key string, val Value) Value {
	out := Value{Kind: Obj}
	found := false
	for _, f := range v.O {
		if f.Key == key {
			out.O = append(out.O, Field{Key: key, Val: val})
			found = true
		} else {
			out.O = append(out.O, f)
		}
	}
	if !found {
		out.O = append(out.O, Field{Key: key, Val: val})
	}
	return out
}

// Merge shallow-merges patch's top-level fields into v, per patch_doc's
// "shallow merge of data object keys" rule.
func (v Value) Merge(patch Value) Value {
	out := v
	for _, f := range patch.O {
		out = out.Set(f.Key, f.Val)
	}
	return out
}

// MarshalJSON encodes the value, keeping Obj field order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch v.Kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.B {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Num:
		buf.WriteString(string(v.N))
	case Str:
		b, err := json.Marshal(v.S)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Arr:
		buf.WriteByte('[')
		for i, e := range v.A {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Obj:
		buf.WriteByte('{')
		for i, f := range v.O {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeJSON(buf, f.Val); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return cor.Errorf("doc: unknown value kind %d", v.Kind)
	}
	return nil
}

// UnmarshalJSON decodes JSON into v, preserving object field order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			v := Value{Kind: Obj}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, cor.Errorf("doc: object key is not a string")
				}
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				v.O = append(v.O, Field{Key: key, Val: child})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return v, nil
		case '[':
			v := Value{Kind: Arr}
			for dec.More() {
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				v.A = append(v.A, child)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return v, nil
		}
	case json.Number:
		return Value{Kind: Num, N: t}, nil
	case string:
		return Value{Kind: Str, S: t}, nil
	case bool:
		return Value{Kind: Bool, B: t}, nil
	case nil:
		return Value{Kind: Null}, nil
	}
	return Value{}, fmt.Errorf("doc: unexpected token %v", tok)
}
