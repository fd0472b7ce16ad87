// Package cache memoizes parse+codegen output, content-addressed by the
// pair (source hash, manifest hash). The in-memory cache gives single-flight
// build semantics; Store optionally persists entries on disk as a pure
// performance cache.
package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"scriptgate/sandbox-go/pkg/codegen"
	"scriptgate/sandbox-go/pkg/parser"
)

// Key addresses one generated artifact.
type Key struct {
	SourceHash   string
	ManifestHash string
}

func (k Key) String() string { return k.SourceHash + ":" + k.ManifestHash }

// Entry is the cached build product: the generated program plus the
// diagnostics recorded while checking it.
type Entry struct {
	Program     *codegen.Program
	Diagnostics []parser.Diagnostic
}

// Cache is an explicit, injectable artifact store. The zero value is not
// usable; construct with New. It is safe for concurrent use: the
// single-flight group is the only cross-session shared mutable state, and it
// serializes builds per key without blocking unrelated keys.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	group   singleflight.Group
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]*Entry)}
}

// GetOrBuild returns the cached entry for key, building it at most once:
// concurrent calls for the same uncached key block on the single in-flight
// build instead of duplicating work. A failed build caches nothing.
func (c *Cache) GetOrBuild(key Key, build func() (*Entry, error)) (*Entry, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry, nil
	}

	result, err, _ := c.group.Do(key.String(), func() (any, error) {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return entry, nil
		}
		entry, err := build()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Entry), nil
}

// Get returns the cached entry without building.
func (c *Cache) Get(key Key) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear empties the cache. Correctness never depends on retention; eviction
// is purely operational.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*Entry)
}
