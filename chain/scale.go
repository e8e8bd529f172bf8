// Package chain is the chain ingester (C6): a long-lived subscription per
// (chain endpoint, contract address), SCALE payload decoding against a
// project's resolved contract schema, and a bounded intake channel feeding
// the trigger router (C7).
package chain

import (
	"encoding/binary"
	"encoding/hex"
	"unicode/utf8"

	"github.com/algorealm/triggr/doc"
	"github.com/algorealm/triggr/errs"
	"github.com/algorealm/triggr/reg"
)

// scaleReader decodes SCALE-encoded scalars from a byte slice, per the
// conventions spec §4.6 names: little-endian fixed-width integers,
// length-prefixed variable byte sequences (SCALE compact length prefix),
// and fixed-length arrays without a length prefix.
type scaleReader struct {
	buf []byte
	pos int
}

func newScaleReader(buf []byte) *scaleReader { return &scaleReader{buf: buf} }

func (r *scaleReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, errs.New(errs.Validation, "scale: short buffer: need %d bytes, have %d", n, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// compactLen decodes a SCALE compact-encoded length prefix.
func (r *scaleReader) compactLen() (int, error) {
	b0, err := r.take(1)
	if err != nil {
		return 0, err
	}
	mode := b0[0] & 0b11
	switch mode {
	case 0:
		return int(b0[0] >> 2), nil
	case 1:
		b1, err := r.take(1)
		if err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint16([]byte{b0[0], b1[0]})
		return int(v >> 2), nil
	case 2:
		rest, err := r.take(3)
		if err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint32([]byte{b0[0], rest[0], rest[1], rest[2]})
		return int(v >> 2), nil
	default:
		n := int(b0[0]>>2) + 4
		rest, err := r.take(n)
		if err != nil {
			return 0, err
		}
		var v uint64
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint64(rest[i])
		}
		return int(v), nil
	}
}

// DecodeFields decodes buf as a tuple of fields in schema order, following
// the scalar resolution rules of spec §4.3/§4.6. A field that fails to
// decode leaves the reader's position at an unknown offset into the
// remaining fields' encoding — there is no safe length to skip to — so
// DecodeFields aborts the whole record rather than guessing and decoding
// the rest of the tuple misaligned.
func DecodeFields(fields []reg.FieldDecl, buf []byte) (map[string]doc.Value, error) {
	r := newScaleReader(buf)
	out := make(map[string]doc.Value, len(fields))
	for _, f := range fields {
		v, err := decodeField(r, f)
		if err != nil {
			return nil, errs.Wrap(errs.Validation, err, "scale: decode field %q", f.Name)
		}
		out[f.Name] = v
	}
	return out, nil
}

func decodeField(r *scaleReader, f reg.FieldDecl) (doc.Value, error) {
	switch f.Type {
	case reg.TypeU8, reg.TypeU16, reg.TypeU32, reg.TypeU64:
		b, err := r.take(f.Len)
		if err != nil {
			return doc.Value{}, err
		}
		return doc.IntValue(int64(decodeUint(b))), nil
	case reg.TypeI8, reg.TypeI16, reg.TypeI32, reg.TypeI64:
		b, err := r.take(f.Len)
		if err != nil {
			return doc.Value{}, err
		}
		return doc.IntValue(decodeInt(b)), nil
	case reg.TypeU128, reg.TypeI128:
		b, err := r.take(f.Len)
		if err != nil {
			return doc.Value{}, err
		}
		// u128/i128 exceed 53-bit JSON-safe integer range; stored as a
		// decimal string per spec §4.5's "larger integers stored as
		// decimal strings" rule.
		return doc.StrValue(decodeBigDecimalLE(b)), nil
	case reg.TypeBool:
		b, err := r.take(1)
		if err != nil {
			return doc.Value{}, err
		}
		return doc.BoolValue(b[0] != 0), nil
	case reg.TypeAccount:
		b, err := r.take(32)
		if err != nil {
			return doc.Value{}, err
		}
		return doc.StrValue("0x" + hex.EncodeToString(b)), nil
	case reg.TypeBytesN:
		b, err := r.take(f.Len)
		if err != nil {
			return doc.Value{}, err
		}
		return doc.StrValue("0x" + hex.EncodeToString(b)), nil
	case reg.TypeBytes:
		n, err := r.compactLen()
		if err != nil {
			return doc.Value{}, err
		}
		b, err := r.take(n)
		if err != nil {
			return doc.Value{}, err
		}
		if isValidUTF8(b) {
			return doc.StrValue(string(b)), nil
		}
		return doc.StrValue("0x" + hex.EncodeToString(b)), nil
	default: // opaque
		n, err := r.compactLen()
		if err != nil {
			return doc.Value{}, err
		}
		b, err := r.take(n)
		if err != nil {
			return doc.Value{}, err
		}
		return doc.StrValue("0x" + hex.EncodeToString(b)), nil
	}
}

func decodeUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func decodeInt(b []byte) int64 {
	u := decodeUint(b)
	bits := uint(len(b)) * 8
	signBit := uint64(1) << (bits - 1)
	if u&signBit != 0 {
		return int64(u) - int64(uint64(1)<<bits)
	}
	return int64(u)
}

// decodeBigDecimalLE renders a little-endian unsigned integer of arbitrary
// width as a base-10 string without pulling in math/big for a one-off.
func decodeBigDecimalLE(b []byte) string {
	digits := []int{0}
	for i := len(b) - 1; i >= 0; i-- {
		carry := int(b[i])
		for j := 0; j < len(digits); j++ {
			v := digits[j]*256 + carry
			digits[j] = v % 10
			carry = v / 10
		}
		for carry > 0 {
			digits = append(digits, carry%10)
			carry /= 10
		}
	}
	out := make([]byte, len(digits))
	for i, d := range digits {
		out[len(digits)-1-i] = byte('0' + d)
	}
	return string(out)
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}
