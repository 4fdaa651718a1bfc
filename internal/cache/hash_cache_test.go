package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashCache_MaybeChanged_UnknownPathIsChanged(t *testing.T) {
	c := New(t.TempDir())
	assert.True(t, c.MaybeChanged("a.go", 100, 10))
}

func TestHashCache_MaybeChanged_MatchingMTimeIsUnchanged(t *testing.T) {
	c := New(t.TempDir())
	c.Record("a.go", "hash1", 100, 10)

	assert.False(t, c.MaybeChanged("a.go", 100, 10))
}

func TestHashCache_MaybeChanged_DifferentMTimeIsChanged(t *testing.T) {
	c := New(t.TempDir())
	c.Record("a.go", "hash1", 100, 10)

	assert.True(t, c.MaybeChanged("a.go", 200, 10))
}

func TestHashCache_MaybeChanged_SizeAloneDoesNotMatter(t *testing.T) {
	c := New(t.TempDir())
	c.Record("a.go", "hash1", 100, 10)

	// mtime matches even though size differs: mtime is authoritative.
	assert.False(t, c.MaybeChanged("a.go", 100, 999))
}

func TestHashCache_ConfirmUnchanged(t *testing.T) {
	c := New(t.TempDir())
	c.Record("a.go", "hash1", 100, 10)

	assert.True(t, c.ConfirmUnchanged("a.go", "hash1"))
	assert.False(t, c.ConfirmUnchanged("a.go", "hash2"))
	assert.False(t, c.ConfirmUnchanged("unknown.go", "hash1"))
}

func TestHashCache_BumpMTime_OnlyUpdatesExisting(t *testing.T) {
	c := New(t.TempDir())
	c.Record("a.go", "hash1", 100, 10)

	c.BumpMTime("a.go", 200)
	entry, ok := c.Get("a.go")
	require.True(t, ok)
	assert.Equal(t, int64(200), entry.MTimeMs)
	assert.Equal(t, "hash1", entry.ContentHash)

	c.BumpMTime("never-recorded.go", 300)
	_, ok = c.Get("never-recorded.go")
	assert.False(t, ok)
}

func TestHashCache_Remove(t *testing.T) {
	c := New(t.TempDir())
	c.Record("a.go", "hash1", 100, 10)
	c.Remove("a.go")

	_, ok := c.Get("a.go")
	assert.False(t, ok)
}

func TestHashCache_PersistAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	c.Record("a.go", "hash1", 100, 10)
	c.Record("b.go", "hash2", 200, 20)

	require.NoError(t, c.Persist())

	reloaded := New(dir)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 2, reloaded.Len())

	entry, ok := reloaded.Get("a.go")
	require.True(t, ok)
	assert.Equal(t, "hash1", entry.ContentHash)
	assert.Equal(t, int64(100), entry.MTimeMs)
}

func TestHashCache_Persist_SkipsWhenNotDirty(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	require.NoError(t, c.Persist())

	_, err := filepath.Glob(filepath.Join(dir, fileName))
	require.NoError(t, err)
	matches, _ := filepath.Glob(filepath.Join(dir, fileName))
	assert.Empty(t, matches, "persist should not create a file when never dirtied")
}

func TestHashCache_Load_MissingFileIsNotError(t *testing.T) {
	c := New(t.TempDir())
	require.NoError(t, c.Load())
	assert.Equal(t, 0, c.Len())
}
