// Package service holds use-case logic composed from the adapters.
package service

import (
	"context"
	"log/slog"

	"github.com/Strob0t/CodePulse/internal/adapter/api"
	"github.com/Strob0t/CodePulse/internal/adapter/ristretto"
	"github.com/Strob0t/CodePulse/internal/domain/workspace"
)

// FileService reads workspace files through an in-process cache, so browsing
// a finished task's output does not re-download unchanged contents.
type FileService struct {
	client *api.Client
	cache  *ristretto.FileCache
}

// NewFileService wires the file read path. cache may be nil to read through;
// the cache only pays off for long-lived callers that re-read paths (library
// embedders, watch sessions) — a one-shot CLI invocation never hits it.
func NewFileService(client *api.Client, cache *ristretto.FileCache) *FileService {
	return &FileService{client: client, cache: cache}
}

// Index fetches the task's current file listing.
func (s *FileService) Index(ctx context.Context, taskID string) (*workspace.FileIndex, error) {
	return s.client.ListFiles(ctx, taskID, api.ListOptions{})
}

// Get returns one file's content, serving from cache when possible.
func (s *FileService) Get(ctx context.Context, taskID, path string) (*workspace.FileContent, error) {
	if s.cache != nil {
		if f, ok := s.cache.Get(taskID, path); ok {
			slog.Debug("file cache hit", "task_id", taskID, "path", path)
			return f, nil
		}
	}

	f, err := s.client.GetFile(ctx, taskID, path)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(taskID, path, f)
	}
	return f, nil
}

// Invalidate drops a cached file after the index reported it changed.
func (s *FileService) Invalidate(taskID, path string) {
	if s.cache != nil {
		s.cache.Invalidate(taskID, path)
	}
}
