// Package workspace defines the task file index and file content payload
// families.
package workspace

import (
	"encoding/json"
	"sort"

	"github.com/Strob0t/CodePulse/internal/domain/event"
)

// FileIndex is the normalized listing of a task's workspace files.
type FileIndex struct {
	Total  int                 `json:"total"`
	ByType map[string][]string `json:"by_type,omitempty"`
	Files  []string            `json:"files"`
}

type indexPayload struct {
	Total    json.RawMessage     `json:"total"`
	Count    json.RawMessage     `json:"count"`
	ByType   map[string][]string `json:"by_type"`
	AllFiles []string            `json:"all_files"`
	Files    []string            `json:"files"`
}

// ParseIndex decodes a file-index response. The flat list may appear under
// "all_files" or "files"; when both are absent it is rebuilt from "by_type".
// Total fallback order: "total", "count", flat list length.
func ParseIndex(data []byte) (*FileIndex, error) {
	var raw indexPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	files := raw.AllFiles
	if files == nil {
		files = raw.Files
	}
	if files == nil && raw.ByType != nil {
		seen := make(map[string]struct{})
		for _, group := range raw.ByType {
			for _, f := range group {
				if _, ok := seen[f]; !ok {
					seen[f] = struct{}{}
					files = append(files, f)
				}
			}
		}
		sort.Strings(files)
	}
	if files == nil {
		files = []string{}
	}

	return &FileIndex{
		Total:  event.CoalesceTotal(len(files), raw.Total, raw.Count),
		ByType: raw.ByType,
		Files:  files,
	}, nil
}

// Keys returns the ordered file paths, for dedup signatures.
func (i *FileIndex) Keys() []string { return i.Files }

// FileContent is one fetched workspace file.
type FileContent struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Size     int    `json:"size"`
	Language string `json:"language,omitempty"`
}

// ParseFile decodes a file-content response.
func ParseFile(data []byte) (*FileContent, error) {
	var f FileContent
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Size == 0 {
		f.Size = len(f.Content)
	}
	return &f, nil
}
