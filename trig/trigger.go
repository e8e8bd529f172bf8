// Package trig is the trigger router (C7): persists Trigger records,
// indexes them in memory by (project, bound_event), and on each decoded
// event invokes the DSL evaluator (C5) for every matching trigger in
// trigger_id order.
package trig

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/algorealm/triggr/errs"
	"github.com/algorealm/triggr/kv"
)

// Trigger is the persistent record described in spec §3. Its compiled rule
// tree is derived at load time (see Index) and never persisted.
type Trigger struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	LastRunAt   time.Time `json:"last_run_at"`
}

// Store persists Trigger records under tkey/<project_id>/<trigger_id>.
type Store struct {
	db *kv.DB
}

func NewStore(db *kv.DB) *Store { return &Store{db: db} }

func triggerKey(project, id string) []byte {
	return []byte("tkey/" + project + "/" + id)
}
func triggerPrefix(project string) []byte {
	return []byte("tkey/" + project + "/")
}

func (s *Store) save(t Trigger) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.db.Put(kv.BucketTkey, triggerKey(t.ProjectID, t.ID), kv.Encode(b))
}

// Create persists a new trigger. Compiling/activating it is the caller's
// responsibility (the gateway compiles against the project's schema
// before calling Create, per spec §4.4).
func (s *Store) Create(t Trigger) error {
	return s.save(t)
}

// Get returns a trigger by (project, id).
func (s *Store) Get(project, id string) (Trigger, error) {
	raw, err := s.db.Get(kv.BucketTkey, triggerKey(project, id))
	if err == kv.ErrNotFound {
		return Trigger{}, errs.New(errs.NotFound, "trigger %s not found", id)
	}
	if err != nil {
		return Trigger{}, err
	}
	_, payload, err := kv.Decode(raw)
	if err != nil {
		return Trigger{}, err
	}
	var t Trigger
	if err := json.Unmarshal(payload, &t); err != nil {
		return Trigger{}, err
	}
	return t, nil
}

// List returns every trigger for project, in ascending trigger_id order,
// per spec §4.5's tie-break rule.
func (s *Store) List(project string) ([]Trigger, error) {
	var out []Trigger
	err := s.db.ScanPrefix(kv.BucketTkey, triggerPrefix(project), func(it kv.Item) bool {
		_, payload, derr := kv.Decode(it.Value)
		if derr != nil {
			return true
		}
		var t Trigger
		if json.Unmarshal(payload, &t) == nil {
			out = append(out, t)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// SetActive flips the active flag on a trigger.
func (s *Store) SetActive(project, id string, active bool) (Trigger, error) {
	t, err := s.Get(project, id)
	if err != nil {
		return Trigger{}, err
	}
	t.Active = active
	if err := s.save(t); err != nil {
		return Trigger{}, err
	}
	return t, nil
}

// Touch updates last_run_at to now, regardless of evaluation outcome, per
// spec §4.5.
func (s *Store) Touch(project, id string, now time.Time) error {
	t, err := s.Get(project, id)
	if err != nil {
		return err
	}
	t.LastRunAt = now
	return s.save(t)
}

// Delete removes a trigger record.
func (s *Store) Delete(project, id string) error {
	if _, err := s.Get(project, id); err != nil {
		return err
	}
	return s.db.Delete(kv.BucketTkey, triggerKey(project, id))
}

// DeleteAllForProject removes every trigger of project, used when a
// project is deleted (cascading delete per spec §3/§4.3).
func (s *Store) DeleteAllForProject(project string) error {
	ts, err := s.List(project)
	if err != nil {
		return err
	}
	for _, t := range ts {
		if err := s.db.Delete(kv.BucketTkey, triggerKey(project, t.ID)); err != nil {
			return err
		}
	}
	return nil
}
