package reg

import "testing"

const testDescriptor = `{
  "source": {"hash": "0xabc"},
  "contract": {"name": "Escrow"},
  "spec": {
    "events": [
      {"label": "Deposited", "args": [
        {"label": "amount", "type": {"type_id": 1}},
        {"label": "from", "type": {"type_id": 2}},
        {"label": "memo", "type": {"type_id": 3}}
      ]}
    ]
  },
  "types": [
    {"id": 1, "type": {"path": ["u128"]}},
    {"id": 2, "type": {"path": ["sp_core", "crypto", "AccountId32"]}},
    {"id": 3, "type": {"path": ["some", "unknown", "Weird"]}}
  ],
  "version": 4
}`

func TestParseDescriptorResolvesScalars(t *testing.T) {
	hash, name, schema, err := ParseDescriptor([]byte(testDescriptor))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if hash != "0xabc" || name != "Escrow" {
		t.Fatalf("got hash=%s name=%s", hash, name)
	}
	ev, ok := schema.Event("Deposited")
	if !ok || len(ev.Fields) != 3 {
		t.Fatalf("want event Deposited with 3 fields, got %+v", ev)
	}
	if ev.Fields[0].Type != TypeU128 {
		t.Fatalf("want u128, got %s", ev.Fields[0].Type)
	}
	if ev.Fields[1].Type != TypeAccount {
		t.Fatalf("want account_id, got %s", ev.Fields[1].Type)
	}
	if ev.Fields[2].Type != TypeOpaque {
		t.Fatalf("want opaque for unresolved type, got %s", ev.Fields[2].Type)
	}
}

func TestParseDescriptorMissingKeys(t *testing.T) {
	_, _, _, err := ParseDescriptor([]byte(`{"source":{"hash":"x"}}`))
	if err == nil {
		t.Fatal("want error for missing required keys")
	}
}

const byteArrayDescriptor = `{
  "source": {"hash": "0xdef"},
  "contract": {"name": "Sig"},
  "spec": {
    "events": [
      {"label": "Signed", "args": [
        {"label": "hash", "type": {"type_id": 1}},
        {"label": "memo", "type": {"type_id": 3}}
      ]}
    ]
  },
  "types": [
    {"id": 0, "type": {"path": ["u8"]}},
    {"id": 1, "type": {"path": [], "def": {"array": {"len": 32, "type": 0}}}},
    {"id": 2, "type": {"path": [], "def": {"primitive": "u8"}}},
    {"id": 3, "type": {"path": [], "def": {"sequence": {"type": 2}}}}
  ],
  "version": 4
}`

func TestParseDescriptorResolvesByteArrayAndSequence(t *testing.T) {
	_, _, schema, err := ParseDescriptor([]byte(byteArrayDescriptor))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ev, ok := schema.Event("Signed")
	if !ok || len(ev.Fields) != 2 {
		t.Fatalf("want event Signed with 2 fields, got %+v", ev)
	}
	if ev.Fields[0].Type != TypeBytesN || ev.Fields[0].Len != 32 {
		t.Fatalf("want bytes_fixed len 32, got %+v", ev.Fields[0])
	}
	if ev.Fields[1].Type != TypeBytes {
		t.Fatalf("want variable-length bytes, got %+v", ev.Fields[1])
	}
}
