// Package ristretto implements an in-process L1 cache for fetched workspace
// file contents, backed by dgraph-io/ristretto.
package ristretto

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Strob0t/CodePulse/internal/domain/workspace"
)

// defaultTTL bounds staleness between poll cycles; file contents only change
// when the file index changes, which invalidates by key anyway.
const defaultTTL = 5 * time.Minute

// FileCache caches workspace.FileContent keyed by "taskID/path".
type FileCache struct {
	c *ristretto.Cache[string, *workspace.FileContent]
}

// NewFileCache creates a cache bounded to maxCostBytes of file content.
func NewFileCache(maxCostBytes int64) (*FileCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, *workspace.FileContent]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &FileCache{c: c}, nil
}

func key(taskID, path string) string { return taskID + "/" + path }

// Get retrieves a cached file.
func (fc *FileCache) Get(taskID, path string) (*workspace.FileContent, bool) {
	return fc.c.Get(key(taskID, path))
}

// Set stores a fetched file, costed by its content size.
func (fc *FileCache) Set(taskID, path string, f *workspace.FileContent) {
	cost := int64(len(f.Content))
	if cost == 0 {
		cost = 1
	}
	fc.c.SetWithTTL(key(taskID, path), f, cost, defaultTTL)
}

// Invalidate drops one cached file, typically because the index changed.
func (fc *FileCache) Invalidate(taskID, path string) {
	fc.c.Del(key(taskID, path))
}

// Wait blocks until pending writes are applied. Tests only.
func (fc *FileCache) Wait() { fc.c.Wait() }

// Close shuts down the cache and releases resources.
func (fc *FileCache) Close() { fc.c.Close() }
