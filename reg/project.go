package reg

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mb0/xelf/cor"

	"github.com/algorealm/triggr/errs"
	"github.com/algorealm/triggr/kv"
	"github.com/algorealm/triggr/pol"
	"github.com/algorealm/triggr/srv/auth"
)

// Project is the persistent record described in spec §3. KeyHash stores
// only a bcrypt derivation of the API key (spec §6): the plaintext is
// returned once, at creation, and never persisted.
type Project struct {
	ID              string    `json:"id"`
	Name            string    `json:"project_name"`
	Description     string    `json:"description"`
	OwnerID         string    `json:"owner_id"`
	ContractAddress string    `json:"contract_address"`
	ContractHash    string    `json:"contract_hash"`
	KeyHash         string    `json:"key_hash"`
	Schema          Schema    `json:"event_schema"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store is the contract registry's project persistence, over kv.DB.
type Store struct {
	db       *kv.DB
	signer   auth.Signer
	policy   *pol.Rules
	keyCache auth.Store
}

// NewStore opens a project registry over db and rebuilds its in-memory
// ownership policy from whatever projects are already persisted, since
// pol.Rules itself is not durable.
func NewStore(db *kv.DB) *Store {
	s := &Store{db: db, signer: &auth.Bcrypt{Cost: 10}, policy: pol.NewPolicy(false), keyCache: &auth.Tokens{}}
	if ps, err := s.ListAllProjects(); err == nil {
		for _, p := range ps {
			s.policy.Allow(p.OwnerID, ownAction(p.ID))
		}
	}
	return s
}

// ownAction names the per-project ownership grant used by CheckOwnership.
func ownAction(projectID string) string { return "project:" + projectID }

// CheckOwnership reports whether owner is allowed to manage project id,
// per the console's project-ownership rule (spec §4.9): only the owner a
// project was created under may read or delete it by API key.
func (s *Store) CheckOwnership(owner, id string) error {
	if err := s.policy.Police(owner, ownAction(id)); err != nil {
		return errs.Wrap(errs.Forbidden, err, "project not owned by caller")
	}
	return nil
}

func projectKey(id string) []byte { return []byte("proj/" + id) }

// CreateProject parses descriptor, mints a fresh API key, and persists a
// new Project. Returns the project and the plaintext key (shown once).
func (s *Store) CreateProject(owner, name, description, contractAddr string, descriptorJSON []byte) (Project, string, error) {
	hash, _, schema, err := ParseDescriptor(descriptorJSON)
	if err != nil {
		return Project{}, "", err
	}
	key, err := generateAPIKey()
	if err != nil {
		return Project{}, "", cor.Errorf("reg: generate api key: %w", err)
	}
	keyHash, err := s.signer.Sign(key)
	if err != nil {
		return Project{}, "", cor.Errorf("reg: hash api key: %w", err)
	}
	p := Project{
		ID:              uuid.NewString(),
		Name:            name,
		Description:     description,
		OwnerID:         owner,
		ContractAddress: contractAddr,
		ContractHash:    hash,
		KeyHash:         keyHash,
		Schema:          schema,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.save(p); err != nil {
		return Project{}, "", err
	}
	s.policy.Allow(owner, ownAction(p.ID))
	return p, key, nil
}

func (s *Store) save(p Project) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.db.Put(kv.BucketProj, projectKey(p.ID), kv.Encode(b))
}

// GetProject looks up a project by internal id.
func (s *Store) GetProject(id string) (Project, error) {
	raw, err := s.db.Get(kv.BucketProj, projectKey(id))
	if err == kv.ErrNotFound {
		return Project{}, errs.New(errs.NotFound, "project %s not found", id)
	}
	if err != nil {
		return Project{}, err
	}
	_, payload, err := kv.Decode(raw)
	if err != nil {
		return Project{}, err
	}
	var p Project
	if err := json.Unmarshal(payload, &p); err != nil {
		return Project{}, err
	}
	return p, nil
}

// ListAllProjects returns every project in the registry, regardless of
// owner, for startup-time index rebuilds and ingester schema resolution.
func (s *Store) ListAllProjects() ([]Project, error) {
	var out []Project
	err := s.db.ScanPrefix(kv.BucketProj, []byte("proj/"), func(it kv.Item) bool {
		_, payload, derr := kv.Decode(it.Value)
		if derr != nil {
			return true
		}
		var p Project
		if json.Unmarshal(payload, &p) == nil {
			out = append(out, p)
		}
		return true
	})
	return out, err
}

// ListProjects returns all projects owned by owner.
func (s *Store) ListProjects(owner string) ([]Project, error) {
	var out []Project
	err := s.db.ScanPrefix(kv.BucketProj, []byte("proj/"), func(it kv.Item) bool {
		_, payload, derr := kv.Decode(it.Value)
		if derr != nil {
			return true
		}
		var p Project
		if json.Unmarshal(payload, &p) == nil && p.OwnerID == owner {
			out = append(out, p)
		}
		return true
	})
	return out, err
}

// DeleteProject removes the project record. Cascading trigger/document
// deletion is the caller's responsibility (gateway orchestrates across
// reg, trig, and doc), since those key families belong to other stores.
func (s *Store) DeleteProject(id string) error {
	p, err := s.GetProject(id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(kv.BucketProj, projectKey(id)); err != nil {
		return err
	}
	s.policy.Deny(p.OwnerID, ownAction(id))
	return nil
}

// VerifyAPIKey finds the project whose KeyHash matches key. A bare scan
// would mean a bcrypt compare per project per request; keyCache remembers
// key->project id after the first successful verify so repeat requests
// from the same caller skip straight to GetProject.
func (s *Store) VerifyAPIKey(key string) (Project, error) {
	if id, err := s.keyCache.Token(key); err == nil {
		if p, err := s.GetProject(id); err == nil {
			return p, nil
		}
	}
	var found Project
	var ok bool
	err := s.db.ScanPrefix(kv.BucketProj, []byte("proj/"), func(it kv.Item) bool {
		_, payload, derr := kv.Decode(it.Value)
		if derr != nil {
			return true
		}
		var p Project
		if json.Unmarshal(payload, &p) != nil {
			return true
		}
		if s.signer.Verify(p.KeyHash, key) == nil {
			found, ok = p, true
			return false
		}
		return true
	})
	if err != nil {
		return Project{}, err
	}
	if !ok {
		return Project{}, errs.New(errs.Unauthorized, "invalid api key")
	}
	s.keyCache.Save(key, found.ID)
	return found, nil
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
