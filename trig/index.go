package trig

import (
	"sort"
	"sync"

	"github.com/algorealm/triggr/dsl"
	"github.com/algorealm/triggr/log"
	"github.com/algorealm/triggr/reg"
)

// compiled is one active trigger's ready-to-evaluate rule tree.
type compiled struct {
	ID     string
	Script *dsl.Script
}

// Index maps (project_id, bound_event_name) to an ordered list of
// compiled active triggers, guarded by a reader-writer lock per spec §5.
type Index struct {
	mu  sync.RWMutex
	byKey map[string][]compiled
}

func NewIndex() *Index {
	return &Index{byKey: make(map[string][]compiled)}
}

func indexKey(project, event string) string { return project + "\x00" + event }

// Lookup returns the ordered compiled triggers for (project, event).
func (idx *Index) Lookup(project, event string) []compiled {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.byKey[indexKey(project, event)]
}

// put inserts or replaces one trigger's compiled entry, keeping the list
// sorted by trigger_id (spec §4.5 tie-break).
func (idx *Index) put(project, event string, c compiled) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	key := indexKey(project, event)
	list := idx.byKey[key]
	for i, e := range list {
		if e.ID == c.ID {
			list[i] = c
			idx.byKey[key] = list
			return
		}
	}
	list = append(list, c)
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	idx.byKey[key] = list
}

// Remove drops trigger id from every event bucket of project.
func (idx *Index) Remove(project, id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for key, list := range idx.byKey {
		out := list[:0:0]
		for _, e := range list {
			if e.ID != id {
				out = append(out, e)
			}
		}
		idx.byKey[key] = out
	}
}

// Rebuild recompiles every trigger of every project from triggers and
// schemas. A fatal per-trigger parse/compile failure is logged and the
// trigger is flipped to active=false in store, per spec §4.7 — it does
// not fail the whole rebuild, and it is not retried on the next sweep.
func (idx *Index) Rebuild(triggers []Trigger, store *Store, schemaOf func(project string) (reg.Schema, bool), logger log.Logger) {
	idx.mu.Lock()
	idx.byKey = make(map[string][]compiled)
	idx.mu.Unlock()

	for _, t := range triggers {
		if !t.Active {
			continue
		}
		schema, ok := schemaOf(t.ProjectID)
		if !ok {
			logger.Error("trigger index: no schema for project", "project", t.ProjectID, "trigger", t.ID)
			continue
		}
		script, _, err := dsl.Parse(t.Source)
		if err != nil {
			logger.Error("trigger index: parse failed", "trigger", t.ID, "cause", err)
			idx.deactivate(store, t, logger)
			continue
		}
		bound, err := dsl.Compile(script, schema)
		if err != nil {
			logger.Error("trigger index: compile failed", "trigger", t.ID, "cause", err)
			idx.deactivate(store, t, logger)
			continue
		}
		idx.put(t.ProjectID, bound, compiled{ID: t.ID, Script: script})
	}
}

// deactivate persists a fatal compile failure as active=false so the
// trigger is not retried and re-logged on every subsequent rebuild sweep.
func (idx *Index) deactivate(store *Store, t Trigger, logger log.Logger) {
	if _, err := store.SetActive(t.ProjectID, t.ID, false); err != nil {
		logger.Error("trigger index: deactivate failed", "trigger", t.ID, "cause", err)
	}
}

// Activate compiles and inserts a single trigger into the index,
// for use right after it is created or reactivated via the gateway.
func (idx *Index) Activate(t Trigger, schema reg.Schema) (string, error) {
	script, _, err := dsl.Parse(t.Source)
	if err != nil {
		return "", err
	}
	bound, err := dsl.Compile(script, schema)
	if err != nil {
		return "", err
	}
	idx.put(t.ProjectID, bound, compiled{ID: t.ID, Script: script})
	return bound, nil
}
