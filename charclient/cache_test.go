package charclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// newTestCache creates a FileCache in a temp dir with the sweep disabled.
func newTestCache(t *testing.T, maxEntries int) *FileCache {
	t.Helper()
	cache, err := NewFileCache(FileCacheConfig{
		Dir:           t.TempDir(),
		MaxEntries:    maxEntries,
		SweepInterval: -1,
	})
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}
	t.Cleanup(cache.Destroy)
	return cache
}

func TestFileCache_SetBytesAndGet(t *testing.T) {
	cache := newTestCache(t, 10)

	path, err := cache.SetBytes("key-1", []byte("image-bytes"), ".png")
	if err != nil {
		t.Fatalf("SetBytes() error = %v", err)
	}

	locator, ok := cache.Get("key-1")
	if !ok {
		t.Fatal("Get() miss for freshly stored key")
	}
	if locator != path {
		t.Errorf("Get() locator = %q, want %q", locator, path)
	}

	data, err := os.ReadFile(locator)
	if err != nil {
		t.Fatalf("reading cached artifact: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("artifact content = %q, want %q", data, "image-bytes")
	}
}

func TestFileCache_GetUnknownKey(t *testing.T) {
	cache := newTestCache(t, 10)
	if _, ok := cache.Get("never-stored"); ok {
		t.Error("Get() hit for unknown key")
	}
}

func TestFileCache_GetExpiredEntry(t *testing.T) {
	cache := newTestCache(t, 10)
	if _, err := cache.SetBytes("key-1", []byte("x"), ".png"); err != nil {
		t.Fatalf("SetBytes() error = %v", err)
	}

	// Age the entry past expiry.
	cache.mu.Lock()
	cache.entries["key-1"].CreatedAt = time.Now().Add(-8 * 24 * time.Hour)
	cache.mu.Unlock()

	if _, ok := cache.Get("key-1"); ok {
		t.Error("Get() hit for expired entry")
	}
	if cache.Len() != 0 {
		t.Error("expired entry was not lazily deleted")
	}
}

func TestFileCache_GetMissingArtifact(t *testing.T) {
	cache := newTestCache(t, 10)
	path, err := cache.SetBytes("key-1", []byte("x"), ".png")
	if err != nil {
		t.Fatalf("SetBytes() error = %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("removing artifact: %v", err)
	}

	if _, ok := cache.Get("key-1"); ok {
		t.Error("Get() hit when backing artifact is gone")
	}
	if cache.Len() != 0 {
		t.Error("entry with missing artifact was not lazily deleted")
	}
}

func TestFileCache_LRUEviction(t *testing.T) {
	const maxEntries = 5
	cache := newTestCache(t, maxEntries)

	for i := 0; i < maxEntries; i++ {
		key := fmt.Sprintf("key-%d", i)
		if _, err := cache.SetBytes(key, []byte("x"), ".png"); err != nil {
			t.Fatalf("SetBytes(%s) error = %v", key, err)
		}
	}

	// Make key-2 the least recently accessed: recency is by access time,
	// not insertion order.
	now := time.Now()
	cache.mu.Lock()
	for i := 0; i < maxEntries; i++ {
		cache.entries[fmt.Sprintf("key-%d", i)].AccessedAt = now.Add(time.Duration(i) * time.Second)
	}
	cache.entries["key-2"].AccessedAt = now.Add(-time.Hour)
	cache.mu.Unlock()

	if _, err := cache.SetBytes("key-new", []byte("x"), ".png"); err != nil {
		t.Fatalf("SetBytes(key-new) error = %v", err)
	}

	if got := cache.Len(); got != maxEntries {
		t.Errorf("Len() = %d after overflow, want %d", got, maxEntries)
	}
	if _, ok := cache.Get("key-2"); ok {
		t.Error("least recently accessed entry survived eviction")
	}
	if _, ok := cache.Get("key-new"); !ok {
		t.Error("newly inserted entry was evicted")
	}
	if _, ok := cache.Get("key-0"); !ok {
		t.Error("recently accessed entry was evicted")
	}
}

func TestFileCache_SetDownloadsRemoteArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("remote-image"))
	}))
	defer srv.Close()

	cache := newTestCache(t, 10)
	locator, err := cache.Set(context.Background(), "key-1", srv.URL+"/image.png")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if locator == srv.URL+"/image.png" {
		t.Fatal("Set() passed through instead of storing")
	}

	data, err := os.ReadFile(locator)
	if err != nil {
		t.Fatalf("reading cached artifact: %v", err)
	}
	if string(data) != "remote-image" {
		t.Errorf("artifact content = %q, want %q", data, "remote-image")
	}
}

func TestFileCache_SetFallsBackOnDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache := newTestCache(t, 10)
	remote := srv.URL + "/broken.png"
	locator, err := cache.Set(context.Background(), "key-1", remote)
	if err != nil {
		t.Fatalf("Set() error = %v, want nil with passthrough", err)
	}
	if locator != remote {
		t.Errorf("Set() locator = %q, want passthrough %q", locator, remote)
	}
	if cache.Len() != 0 {
		t.Error("failed Set() should not record an entry")
	}
}

func TestFileCache_DeleteAndClear(t *testing.T) {
	cache := newTestCache(t, 10)
	path, _ := cache.SetBytes("key-1", []byte("x"), ".png")
	cache.SetBytes("key-2", []byte("y"), ".png")

	if err := cache.Delete("key-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Delete() left the artifact on disk")
	}
	if err := cache.Delete("key-1"); err != nil {
		t.Errorf("Delete() of absent key error = %v, want nil", err)
	}

	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d after Clear(), want 0", cache.Len())
	}
}

func TestFileCache_Sweep(t *testing.T) {
	cache := newTestCache(t, 10)
	cache.SetBytes("fresh", []byte("x"), ".png")
	cache.SetBytes("stale", []byte("y"), ".png")

	cache.mu.Lock()
	cache.entries["stale"].CreatedAt = time.Now().Add(-8 * 24 * time.Hour)
	cache.mu.Unlock()

	if removed := cache.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if _, ok := cache.Get("fresh"); !ok {
		t.Error("Sweep() removed an unexpired entry")
	}
}

func TestFileCache_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewFileCache(FileCacheConfig{Dir: dir, SweepInterval: -1})
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}
	path, err := cache.SetBytes("key-1", []byte("x"), ".png")
	if err != nil {
		t.Fatalf("SetBytes() error = %v", err)
	}
	cache.Destroy()

	reopened, err := NewFileCache(FileCacheConfig{Dir: dir, SweepInterval: -1})
	if err != nil {
		t.Fatalf("reopening cache: %v", err)
	}
	defer reopened.Destroy()

	locator, ok := reopened.Get("key-1")
	if !ok {
		t.Fatal("entry lost across reopen")
	}
	if locator != path {
		t.Errorf("locator = %q, want %q", locator, path)
	}
}

func TestFileCache_CorruptIndexStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, cacheIndexName), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt index: %v", err)
	}

	cache, err := NewFileCache(FileCacheConfig{Dir: dir, SweepInterval: -1})
	if err != nil {
		t.Fatalf("NewFileCache() error = %v, corrupt index must not be fatal", err)
	}
	defer cache.Destroy()

	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for corrupt index", cache.Len())
	}
}

func TestFileCache_DestroyIdempotent(t *testing.T) {
	cache := newTestCache(t, 10)
	cache.Destroy()
	cache.Destroy() // must not panic
}
