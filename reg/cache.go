package reg

import "sync"

// Cache is the in-memory contract registry cache noted in spec §5: a
// reader-writer-locked map from project id to its parsed schema, so the
// chain ingester never re-parses a descriptor per event. Supplements
// Store, which remains the source of truth on disk.
type Cache struct {
	mu   sync.RWMutex
	byID map[string]Schema
}

func NewCache() *Cache {
	return &Cache{byID: make(map[string]Schema)}
}

// Get returns the cached schema for project, and whether it was present.
func (c *Cache) Get(project string) (Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[project]
	return s, ok
}

// Set stores or replaces the cached schema for project.
func (c *Cache) Set(project string, s Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[project] = s
}

// Evict drops project's cached schema, e.g. on project deletion.
func (c *Cache) Evict(project string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, project)
}
