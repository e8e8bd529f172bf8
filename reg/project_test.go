package reg

import (
	"testing"

	"github.com/algorealm/triggr/errs"
	"github.com/algorealm/triggr/kv"
)

func newTestRegStore(t *testing.T) *Store {
	t.Helper()
	db, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestCreateAndVerifyAPIKey(t *testing.T) {
	s := newTestRegStore(t)
	p, key, err := s.CreateProject("owner1", "demo", "desc", "0xdead", []byte(testDescriptor))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if key == "" {
		t.Fatal("want non-empty plaintext key")
	}
	got, err := s.VerifyAPIKey(key)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.ID != p.ID {
		t.Fatalf("got project %s, want %s", got.ID, p.ID)
	}
	if _, err := s.VerifyAPIKey("wrong-key"); errs.KindOf(err) != errs.Unauthorized {
		t.Fatalf("want Unauthorized for wrong key, got %v", err)
	}
}

func TestListProjectsByOwner(t *testing.T) {
	s := newTestRegStore(t)
	if _, _, err := s.CreateProject("owner1", "a", "", "0x1", []byte(testDescriptor)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := s.CreateProject("owner2", "b", "", "0x2", []byte(testDescriptor)); err != nil {
		t.Fatalf("create: %v", err)
	}
	ps, err := s.ListProjects("owner1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ps) != 1 || ps[0].Name != "a" {
		t.Fatalf("got %+v", ps)
	}
}

func TestDeleteProjectNotFound(t *testing.T) {
	s := newTestRegStore(t)
	if err := s.DeleteProject("missing"); errs.KindOf(err) != errs.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}
