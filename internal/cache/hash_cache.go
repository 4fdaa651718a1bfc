// Package cache implements HashCache, the per-file change-detection record
// that lets the ingestor skip files that have not changed since the last
// successful ingest.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/syntheo/semantics/internal/semerr"
)

const fileName = "file-hashes.json"

// Entry is a change-detection record for a single file (spec's CacheEntry).
type Entry struct {
	ContentHash string `json:"content_hash"`
	MTimeMs     int64  `json:"mtime_ms"`
	SizeBytes   int64  `json:"size_bytes"`
}

// HashCache answers "has this file changed?" without requiring a full
// content read and hash when the mtime alone already proves it hasn't.
type HashCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
	dirty   bool
}

// New creates a HashCache backed by <dir>/file-hashes.json. The cache is
// empty until Load is called.
func New(dir string) *HashCache {
	return &HashCache{
		path:    filepath.Join(dir, fileName),
		entries: make(map[string]Entry),
	}
}

// Load reads the persisted cache from disk. A missing file is not an
// error: the cache starts empty, as on first run.
func (c *HashCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return semerr.TransientIOErr("read hash cache", err).WithDetail("path", c.path)
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupted side-cache is not store corruption: it only costs a
		// full re-hash of every file on the next ingest.
		return semerr.TransientIOErr("parse hash cache", err).WithDetail("path", c.path)
	}
	c.entries = entries
	return nil
}

// MaybeChanged returns true unless an entry exists whose mtime matches
// exactly. Size is recorded but mtime is authoritative.
func (c *HashCache) MaybeChanged(path string, mtimeMs, size int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		return true
	}
	return entry.MTimeMs != mtimeMs
}

// ConfirmUnchanged is the second-chance check: given the freshly computed
// content hash, reports whether it equals the cached hash. Callers use
// this to skip re-embedding a touched-but-unmodified file.
func (c *HashCache) ConfirmUnchanged(path string, contentHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		return false
	}
	return entry.ContentHash == contentHash
}

// BumpMTime updates only the mtime of an existing entry, used after a
// second-chance confirmation that the file content is unchanged.
func (c *HashCache) BumpMTime(path string, mtimeMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		return
	}
	entry.MTimeMs = mtimeMs
	c.entries[path] = entry
	c.dirty = true
}

// Record upserts the entry for path and marks the cache dirty.
func (c *HashCache) Record(path string, contentHash string, mtimeMs, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[path] = Entry{
		ContentHash: contentHash,
		MTimeMs:     mtimeMs,
		SizeBytes:   size,
	}
	c.dirty = true
}

// Remove deletes the entry for path, if any, and marks the cache dirty.
func (c *HashCache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[path]; !ok {
		return
	}
	delete(c.entries, path)
	c.dirty = true
}

// Persist writes the cache to disk only if dirty, then resets the dirty
// flag. Uses a temp-file-then-rename to avoid leaving a truncated file
// behind on crash.
func (c *HashCache) Persist() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return semerr.TransientIOErr("create hash cache directory", err)
	}

	data, err := json.Marshal(c.entries)
	if err != nil {
		return semerr.InternalError("marshal hash cache", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return semerr.TransientIOErr("write hash cache", err).WithDetail("path", tmpPath)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return semerr.TransientIOErr("rename hash cache into place", err)
	}

	c.dirty = false
	return nil
}

// Len reports the number of tracked entries, for diagnostics.
func (c *HashCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Get exposes a copy of an entry, for tests and diagnostics.
func (c *HashCache) Get(path string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	return e, ok
}
