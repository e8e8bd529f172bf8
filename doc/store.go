package doc

import (
	"encoding/json"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mb0/xelf/cor"

	"github.com/algorealm/triggr/errs"
	"github.com/algorealm/triggr/kv"
)

var collNameRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// Document is one stored record, as described in spec §3.
type Document struct {
	ID        string    `json:"id"`
	Data      Value     `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// CollectionMeta tracks a collection's document count and last write time.
type CollectionMeta struct {
	Name        string    `json:"name"`
	Count       int64     `json:"count"`
	LastUpdated time.Time `json:"last_updated"`
}

// Op names the mutation a ChangeRecord reports.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeRecord is emitted exactly once per confirmed commit, per spec §4.2.
type ChangeRecord struct {
	Op         Op
	ProjectID  string
	Collection string
	DocID      string
	New        *Document
	Old        *Document
}

// Publisher receives ChangeRecords after they commit. The pub/sub bus (C8)
// implements this; Store never imports the hub package, keeping the
// dependency one-directional.
type Publisher interface {
	PublishChange(ChangeRecord)
}

type noopPublisher struct{}

func (noopPublisher) PublishChange(ChangeRecord) {}

// Store is the document store (C2), backed by a kv.DB and a keyed lock
// table that serializes writers per (project, collection, doc_id) while
// leaving different keys to proceed in parallel.
type Store struct {
	db   *kv.DB
	pub  Publisher
	locks keyLocks
}

// New builds a Store over db. pub may be nil, in which case change records
// are dropped (used by tests that don't care about notification).
func New(db *kv.DB, pub Publisher) *Store {
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Store{db: db, pub: pub, locks: newKeyLocks()}
}

func collKey(project, coll string) []byte {
	return []byte("coll/" + project + "/" + coll + "/meta")
}
func docKey(project, coll, id string) []byte {
	return []byte("doc/" + project + "/" + coll + "/" + id)
}
func docPrefix(project, coll string) []byte {
	return []byte("doc/" + project + "/" + coll + "/")
}
func collPrefix(project string) []byte {
	return []byte("coll/" + project + "/")
}

func validCollName(name string) error {
	if !collNameRe.MatchString(name) {
		return errs.New(errs.Validation, "invalid collection name %q", name)
	}
	return nil
}

func (s *Store) readMeta(project, coll string) (CollectionMeta, bool, error) {
	raw, err := s.db.Get(kv.BucketColl, collKey(project, coll))
	if err == kv.ErrNotFound {
		return CollectionMeta{}, false, nil
	}
	if err != nil {
		return CollectionMeta{}, false, err
	}
	_, payload, err := kv.Decode(raw)
	if err != nil {
		return CollectionMeta{}, false, err
	}
	var m CollectionMeta
	if err := json.Unmarshal(payload, &m); err != nil {
		return CollectionMeta{}, false, err
	}
	return m, true, nil
}

// CreateCollection is idempotent: creates CollectionMeta{count:0} if
// absent, per spec §4.2.
func (s *Store) CreateCollection(project, name string) (CollectionMeta, error) {
	if err := validCollName(name); err != nil {
		return CollectionMeta{}, err
	}
	if m, ok, err := s.readMeta(project, name); err != nil {
		return CollectionMeta{}, err
	} else if ok {
		return m, nil
	}
	m := CollectionMeta{Name: name, Count: 0, LastUpdated: time.Now().UTC()}
	if err := s.putMeta(project, name, m); err != nil {
		return CollectionMeta{}, err
	}
	return m, nil
}

func (s *Store) putMeta(project, name string, m CollectionMeta) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Put(kv.BucketColl, collKey(project, name), kv.Encode(b))
}

// ListCollections scans coll/<project>/... per spec §4.2.
func (s *Store) ListCollections(project string) ([]CollectionMeta, error) {
	var out []CollectionMeta
	err := s.db.ScanPrefix(kv.BucketColl, collPrefix(project), func(it kv.Item) bool {
		_, payload, derr := kv.Decode(it.Value)
		if derr != nil {
			return true
		}
		var m CollectionMeta
		if json.Unmarshal(payload, &m) == nil {
			out = append(out, m)
		}
		return true
	})
	return out, err
}

func (s *Store) readDoc(project, coll, id string) (Document, bool, error) {
	raw, err := s.db.Get(kv.BucketDoc, docKey(project, coll, id))
	if err == kv.ErrNotFound {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}
	_, payload, err := kv.Decode(raw)
	if err != nil {
		return Document{}, false, err
	}
	var d Document
	if err := json.Unmarshal(payload, &d); err != nil {
		return Document{}, false, err
	}
	return d, true, nil
}

// GetDoc returns the document, or NotFound.
func (s *Store) GetDoc(project, coll, id string) (Document, error) {
	d, ok, err := s.readDoc(project, coll, id)
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return Document{}, errs.New(errs.NotFound, "document %s/%s not found", coll, id)
	}
	return d, nil
}

// ListDocs lists all documents in coll, in key order.
func (s *Store) ListDocs(project, coll string) ([]Document, error) {
	var out []Document
	err := s.db.ScanPrefix(kv.BucketDoc, docPrefix(project, coll), func(it kv.Item) bool {
		_, payload, derr := kv.Decode(it.Value)
		if derr != nil {
			return true
		}
		var d Document
		if json.Unmarshal(payload, &d) == nil {
			out = append(out, d)
		}
		return true
	})
	return out, err
}

// InsertDoc creates a new document, generating a UUID if id is empty, and
// rejects with Conflict if a document already exists at id.
func (s *Store) InsertDoc(project, coll, id string, data Value) (Document, error) {
	if id == "" {
		id = uuid.NewString()
	}
	unlock := s.locks.lock(project, coll, id)
	defer unlock()

	_, exists, err := s.readDoc(project, coll, id)
	if err != nil {
		return Document{}, err
	}
	if exists {
		return Document{}, errs.New(errs.Conflict, "document %s/%s already exists", coll, id)
	}
	now := time.Now().UTC()
	d := Document{ID: id, Data: data, CreatedAt: now, UpdatedAt: now, Version: 1}
	if err := s.commitInsert(project, coll, d); err != nil {
		return Document{}, err
	}
	s.pub.PublishChange(ChangeRecord{Op: OpInsert, ProjectID: project, Collection: coll, DocID: id, New: &d})
	return d, nil
}

// PutDoc upserts: preserves created_at and bumps version on an existing
// document, else behaves like InsertDoc.
func (s *Store) PutDoc(project, coll, id string, data Value) (Document, error) {
	if id == "" {
		id = uuid.NewString()
	}
	unlock := s.locks.lock(project, coll, id)
	defer unlock()

	prev, exists, err := s.readDoc(project, coll, id)
	if err != nil {
		return Document{}, err
	}
	now := time.Now().UTC()
	if !exists {
		d := Document{ID: id, Data: data, CreatedAt: now, UpdatedAt: now, Version: 1}
		if err := s.commitInsert(project, coll, d); err != nil {
			return Document{}, err
		}
		s.pub.PublishChange(ChangeRecord{Op: OpInsert, ProjectID: project, Collection: coll, DocID: id, New: &d})
		return d, nil
	}
	d := Document{ID: id, Data: data, CreatedAt: prev.CreatedAt, UpdatedAt: now, Version: prev.Version + 1}
	if err := s.commitReplace(project, coll, d); err != nil {
		return Document{}, err
	}
	old := prev
	s.pub.PublishChange(ChangeRecord{Op: OpUpdate, ProjectID: project, Collection: coll, DocID: id, New: &d, Old: &old})
	return d, nil
}

// PatchDoc shallow-merges data into the existing document; NotFound if
// absent.
func (s *Store) PatchDoc(project, coll, id string, data Value) (Document, error) {
	unlock := s.locks.lock(project, coll, id)
	defer unlock()

	prev, exists, err := s.readDoc(project, coll, id)
	if err != nil {
		return Document{}, err
	}
	if !exists {
		return Document{}, errs.New(errs.NotFound, "document %s/%s not found", coll, id)
	}
	now := time.Now().UTC()
	d := Document{ID: id, Data: prev.Data.Merge(data), CreatedAt: prev.CreatedAt, UpdatedAt: now, Version: prev.Version + 1}
	if err := s.commitReplace(project, coll, d); err != nil {
		return Document{}, err
	}
	old := prev
	s.pub.PublishChange(ChangeRecord{Op: OpUpdate, ProjectID: project, Collection: coll, DocID: id, New: &d, Old: &old})
	return d, nil
}

// DeleteDoc removes a document, decrementing CollectionMeta.Count (not
// below 0); NotFound if absent.
func (s *Store) DeleteDoc(project, coll, id string) error {
	unlock := s.locks.lock(project, coll, id)
	defer unlock()

	prev, exists, err := s.readDoc(project, coll, id)
	if err != nil {
		return err
	}
	if !exists {
		return errs.New(errs.NotFound, "document %s/%s not found", coll, id)
	}
	m, _, err := s.readMeta(project, coll)
	if err != nil {
		return err
	}
	if m.Count > 0 {
		m.Count--
	}
	m.LastUpdated = time.Now().UTC()
	mb, err := json.Marshal(m)
	if err != nil {
		return err
	}
	err = s.db.Batch([]kv.Op{
		{Bucket: kv.BucketDoc, Key: docKey(project, coll, id), Delete: true},
		{Bucket: kv.BucketColl, Key: collKey(project, coll), Value: kv.Encode(mb)},
	})
	if err != nil {
		return cor.Errorf("doc: delete commit: %w", err)
	}
	old := prev
	s.pub.PublishChange(ChangeRecord{Op: OpDelete, ProjectID: project, Collection: coll, DocID: id, Old: &old})
	return nil
}

// DeleteAllForProject removes every collection and document belonging to
// project, used when a project is deleted (cascading delete per spec
// §4.3). Deletes do not publish ChangeRecords: the project itself is gone,
// so there is nothing left to notify subscribers of.
func (s *Store) DeleteAllForProject(project string) error {
	metas, err := s.ListCollections(project)
	if err != nil {
		return err
	}
	for _, m := range metas {
		docs, err := s.ListDocs(project, m.Name)
		if err != nil {
			return err
		}
		ops := make([]kv.Op, 0, len(docs)+1)
		for _, d := range docs {
			ops = append(ops, kv.Op{Bucket: kv.BucketDoc, Key: docKey(project, m.Name, d.ID), Delete: true})
		}
		ops = append(ops, kv.Op{Bucket: kv.BucketColl, Key: collKey(project, m.Name), Delete: true})
		if err := s.db.Batch(ops); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) commitInsert(project, coll string, d Document) error {
	m, _, err := s.readMeta(project, coll)
	if err != nil {
		return err
	}
	if m.Name == "" {
		m.Name = coll
	}
	m.Count++
	m.LastUpdated = d.UpdatedAt
	return s.commit(project, coll, d, m)
}

func (s *Store) commitReplace(project, coll string, d Document) error {
	m, _, err := s.readMeta(project, coll)
	if err != nil {
		return err
	}
	if m.Name == "" {
		m.Name = coll
	}
	m.LastUpdated = d.UpdatedAt
	return s.commit(project, coll, d, m)
}

func (s *Store) commit(project, coll string, d Document, m CollectionMeta) error {
	db, err := json.Marshal(d)
	if err != nil {
		return err
	}
	mb, err := json.Marshal(m)
	if err != nil {
		return err
	}
	err = s.db.Batch([]kv.Op{
		{Bucket: kv.BucketDoc, Key: docKey(project, coll, d.ID), Value: kv.Encode(db)},
		{Bucket: kv.BucketColl, Key: collKey(project, coll), Value: kv.Encode(mb)},
	})
	if err != nil {
		return cor.Errorf("doc: commit: %w", err)
	}
	return nil
}

// keyLocks is a map of mutexes keyed by (project, collection, doc_id),
// itself guarded by one mutex, so writers serialize per key while different keys proceed in
// parallel, per spec §4.2's concurrency rule.
type keyLocks struct {
	mu   sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() keyLocks {
	return keyLocks{locks: make(map[string]*sync.Mutex)}
}

func (kl *keyLocks) lock(project, coll, id string) (unlock func()) {
	key := project + "/" + coll + "/" + id
	kl.mu.Lock()
	m, ok := kl.locks[key]
	if !ok {
		m = &sync.Mutex{}
		kl.locks[key] = m
	}
	kl.mu.Unlock()
	m.Lock()
	return m.Unlock
}
