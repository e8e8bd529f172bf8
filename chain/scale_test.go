package chain

import (
	"encoding/binary"
	"testing"

	"github.com/algorealm/triggr/reg"
)

func TestDecodeFieldsFixedWidth(t *testing.T) {
	buf := make([]byte, 0)
	u32b := make([]byte, 4)
	binary.LittleEndian.PutUint32(u32b, 4242)
	buf = append(buf, u32b...)
	buf = append(buf, 1) // bool true
	var acct [32]byte
	acct[0] = 0xAB
	buf = append(buf, acct[:]...)

	fields := []reg.FieldDecl{
		{Name: "amount", Type: reg.TypeU32, Len: 4},
		{Name: "ok", Type: reg.TypeBool, Len: 1},
		{Name: "who", Type: reg.TypeAccount, Len: 32},
	}
	got, err := DecodeFields(fields, buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["amount"].N.String() != "4242" {
		t.Fatalf("amount = %v", got["amount"])
	}
	if !got["ok"].B {
		t.Fatalf("ok = %v", got["ok"])
	}
	if got["who"].S[:4] != "0xab" {
		t.Fatalf("who = %v", got["who"])
	}
}

func TestCompactLenSingleByte(t *testing.T) {
	r := newScaleReader([]byte{0x04}) // mode 0, value 1
	n, err := r.compactLen()
	if err != nil || n != 1 {
		t.Fatalf("got %d, %v", n, err)
	}
}

func TestDecodeU128AsDecimalString(t *testing.T) {
	buf := make([]byte, 16)
	buf[0] = 0xE8 // 1000 = 0x03E8, little endian in the first two bytes
	buf[1] = 0x03
	got, err := DecodeFields([]reg.FieldDecl{{Name: "v", Type: reg.TypeU128, Len: 16}}, buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["v"].S != "1000" {
		t.Fatalf("want 1000, got %s", got["v"].S)
	}
}

func TestDecodeOpaqueFallsBackToHex(t *testing.T) {
	buf := []byte{0x08, 0xDE, 0xAD} // compact length 2, then the two payload bytes
	got, err := DecodeFields([]reg.FieldDecl{{Name: "raw", Type: reg.TypeOpaque}}, buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["raw"].S != "0xdead" {
		t.Fatalf("got %s", got["raw"].S)
	}
}

func TestDecodeFieldsAbortsOnShortBuffer(t *testing.T) {
	// "amount" declares 4 bytes but the buffer only has 2: decodeField
	// fails partway through the first field, leaving no safe offset to
	// resume "ok" at, so the whole record must fail rather than decode
	// "ok" from the wrong bytes.
	buf := []byte{0x01, 0x02}
	fields := []reg.FieldDecl{
		{Name: "amount", Type: reg.TypeU32, Len: 4},
		{Name: "ok", Type: reg.TypeBool, Len: 1},
	}
	got, err := DecodeFields(fields, buf)
	if err == nil {
		t.Fatal("want error for a short buffer")
	}
	if got != nil {
		t.Fatalf("want nil result on failure, got %+v", got)
	}
}
