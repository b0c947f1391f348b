// Package cache persists file fingerprints between cycles so that files
// whose size and modification time are unchanged need not be re-read.
package cache

import (
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/jamesainslie/mirrorsync/pkg/mirror/types"
)

// DefaultPath returns the default cache directory,
// $XDG_CACHE_HOME/mirrorsync/fingerprints.
func DefaultPath() string {
	return filepath.Join(xdg.CacheHome, "mirrorsync", "fingerprints")
}

// Cache provides fingerprint lookups keyed by tree root and relative path.
// It is safe for concurrent use.
type Cache struct {
	store *Store
}

// Stats summarizes the contents of a cache.
type Stats struct {
	Entries int            `json:"entries"`
	Roots   map[string]int `json:"roots"`
}

// Open opens or creates a cache at the given path.
func Open(path string) (*Cache, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store}, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Lookup returns the cached fingerprint for the file at rel under root if
// it was computed with algorithm against the same size and mtime. Any
// store error counts as a miss.
func (c *Cache) Lookup(root, rel string, size, mtime int64, algorithm string) (types.Fingerprint, bool) {
	entry, err := c.store.Get(root, rel)
	if err != nil {
		return "", false
	}
	if !entry.Fresh(size, mtime, algorithm) {
		return "", false
	}
	return types.Fingerprint(entry.Digest), true
}

// Update stores freshly computed entries for root.
func (c *Cache) Update(root string, entries map[string]*CachedEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		e.Version = CacheVersion
	}
	return c.store.PutBatch(root, entries)
}

// Prune removes entries under root whose path is not in live, so files
// deleted from the tree do not linger in the cache.
func (c *Cache) Prune(root string, live types.Snapshot) (int, error) {
	keys, err := c.store.Keys(root)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, rel := range keys {
		if _, ok := live[rel]; !ok {
			stale = append(stale, rel)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return len(stale), c.store.DeleteBatch(root, stale)
}

// Clear removes all cached entries for a root.
func (c *Cache) Clear(root string) error {
	return c.store.DeletePrefix(root)
}

// ClearAll removes all cached entries.
func (c *Cache) ClearAll() error {
	return c.store.DeletePrefix("")
}

// Stats counts the entries held for every root.
func (c *Cache) Stats() (Stats, error) {
	roots, err := c.store.Count()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Roots: roots}
	for _, n := range roots {
		stats.Entries += n
	}
	return stats, nil
}
