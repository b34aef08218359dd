package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/CodePulse/internal/adapter/api"
	"github.com/Strob0t/CodePulse/internal/adapter/ristretto"
	"github.com/Strob0t/CodePulse/internal/config"
	"github.com/Strob0t/CodePulse/internal/credential"
)

func TestFileServiceCachesContent(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte(`{"path":"main.go","content":"package main"}`))
	}))
	defer srv.Close()

	creds, err := credential.NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatal(err)
	}
	client := api.NewClient(config.API{BaseURL: srv.URL, Timeout: 5 * time.Second}, config.Auth{}, creds)

	cache, err := ristretto.NewFileCache(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	svc := NewFileService(client, cache)
	ctx := context.Background()

	f, err := svc.Get(ctx, "t1", "main.go")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if f.Content != "package main" {
		t.Errorf("content = %q", f.Content)
	}
	cache.Wait()

	if _, err := svc.Get(ctx, "t1", "main.go"); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("network fetches = %d, want 1 (second read cached)", got)
	}

	// Invalidation forces a re-fetch.
	svc.Invalidate("t1", "main.go")
	if _, err := svc.Get(ctx, "t1", "main.go"); err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	}
	if got := fetches.Load(); got != 2 {
		t.Errorf("network fetches = %d, want 2 after invalidate", got)
	}
}

func TestFileServiceWithoutCache(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte(`{"path":"a.go","content":"x"}`))
	}))
	defer srv.Close()

	creds, err := credential.NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatal(err)
	}
	client := api.NewClient(config.API{BaseURL: srv.URL, Timeout: 5 * time.Second}, config.Auth{}, creds)

	svc := NewFileService(client, nil)
	for range 2 {
		if _, err := svc.Get(context.Background(), "t1", "a.go"); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if got := fetches.Load(); got != 2 {
		t.Errorf("network fetches = %d, want 2 without cache", got)
	}
}
