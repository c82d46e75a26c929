// cache.go implements the client-side cache manager: a disk-backed store
// mapping canonical config keys to locally persisted image files, with
// time-based expiry, pure LRU capacity eviction, and a background sweep.
package charclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"charforge/core"
	"charforge/logging"
)

// Cache default tuning values.
const (
	// DefaultMaxEntries is the maximum number of cached images before LRU
	// eviction kicks in.
	DefaultMaxEntries = 100

	// DefaultExpiry is how long an entry stays valid after creation.
	DefaultExpiry = 7 * 24 * time.Hour

	// DefaultSweepInterval is how often the background sweep removes
	// expired entries independent of access pattern.
	DefaultSweepInterval = time.Hour

	// cacheIndexName is the metadata file persisted next to the artifacts.
	cacheIndexName = "index.json"
)

// Cache maps canonical config keys to locally persisted image locators.
// Implementations must be safe for concurrent use. The generation client
// treats every cache failure as non-fatal.
type Cache interface {
	// Get returns the locator for key, or ok=false if the key is unknown,
	// expired, or its backing artifact no longer exists.
	Get(key string) (locator string, ok bool)

	// Set persists the artifact referenced by remoteURL under key and
	// returns a local locator. On storage failure it returns remoteURL
	// unchanged with a nil error: the caller always gets a usable locator.
	Set(ctx context.Context, key, remoteURL string) (locator string, err error)

	// Delete removes an entry and its artifact.
	Delete(key string) error

	// Clear removes all entries and artifacts.
	Clear() error

	// Destroy stops background timers. Idempotent.
	Destroy()
}

// cacheEntry is the persisted metadata for one cached artifact.
type cacheEntry struct {
	FileName   string    `json:"fileName"`
	CreatedAt  time.Time `json:"createdAt"`
	AccessedAt time.Time `json:"accessedAt"`
}

// FileCacheConfig configures a FileCache.
type FileCacheConfig struct {
	// Dir is the directory holding artifacts and the index file.
	Dir string

	// MaxEntries caps the cache size (default: 100).
	MaxEntries int

	// Expiry is the entry lifetime (default: 7 days).
	Expiry time.Duration

	// SweepInterval is the background expiry sweep period (default: 1h).
	// A non-positive value disables the sweep.
	SweepInterval time.Duration

	// HTTPClient downloads remote artifacts (default: 30s-timeout client).
	HTTPClient *http.Client

	// Logger for non-fatal cache failures (default: nop).
	Logger *logging.Logger
}

// FileCache is the default disk-backed Cache. Artifacts are stored under
// uuid-derived names; metadata lives in an in-memory map checkpointed to an
// index file so recency survives restarts.
type FileCache struct {
	dir        string
	maxEntries int
	expiry     time.Duration
	client     *http.Client
	log        *logging.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry

	stopSweep chan struct{}
	destroy   sync.Once
}

// NewFileCache creates a FileCache, loads existing metadata, and starts the
// expiry sweep. A corrupt or missing index is not fatal: the cache starts
// empty and logs a warning.
func NewFileCache(config FileCacheConfig) (*FileCache, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("charclient: cache directory is required")
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("charclient: failed to create cache directory: %w", err)
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.Expiry <= 0 {
		config.Expiry = DefaultExpiry
	}
	if config.HTTPClient == nil {
		config.HTTPClient = core.GetDefaultHTTPClient()
	}
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}

	c := &FileCache{
		dir:        config.Dir,
		maxEntries: config.MaxEntries,
		expiry:     config.Expiry,
		client:     config.HTTPClient,
		log:        config.Logger.Named("cache"),
		entries:    make(map[string]*cacheEntry),
		stopSweep:  make(chan struct{}),
	}

	c.loadIndex()

	if config.SweepInterval > 0 {
		go c.sweepLoop(config.SweepInterval)
	} else if config.SweepInterval == 0 {
		go c.sweepLoop(DefaultSweepInterval)
	}

	return c, nil
}

// Get implements Cache. A hit refreshes the access timestamp; expiry and a
// missing backing file both lazily delete the stale entry.
func (c *FileCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return "", false
	}

	if time.Since(entry.CreatedAt) > c.expiry {
		c.removeLocked(key, entry)
		return "", false
	}

	path := filepath.Join(c.dir, entry.FileName)
	if _, err := os.Stat(path); err != nil {
		c.log.Warn("cached artifact missing, dropping entry", zap.String("file", entry.FileName))
		c.removeLocked(key, entry)
		return "", false
	}

	entry.AccessedAt = time.Now()
	c.saveIndexLocked()
	return path, true
}

// Set implements Cache. The artifact is downloaded to a fresh uuid-named
// file; any failure falls back to passing the remote locator through
// unchanged so callers never lose a freshly generated image to a cache
// problem.
func (c *FileCache) Set(ctx context.Context, key, remoteURL string) (string, error) {
	data, ext, err := c.download(ctx, remoteURL)
	if err != nil {
		c.log.Warn("cache download failed, passing through remote locator",
			zap.String("url", remoteURL), zap.Error(err))
		return remoteURL, nil
	}

	path, err := c.SetBytes(key, data, ext)
	if err != nil {
		c.log.Warn("cache store failed, passing through remote locator", zap.Error(err))
		return remoteURL, nil
	}
	return path, nil
}

// SetBytes persists an in-memory artifact under key. Unlike Set there is no
// remote locator to fall back to, so failures surface as a CacheError.
func (c *FileCache) SetBytes(key string, data []byte, ext string) (string, error) {
	if ext == "" {
		ext = ".png"
	}
	fileName := uuid.NewString() + ext
	path := filepath.Join(c.dir, fileName)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &core.CacheError{Op: "set", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replace any previous artifact for this key (last write wins).
	if old, exists := c.entries[key]; exists {
		c.removeArtifactLocked(old)
	}

	now := time.Now()
	c.entries[key] = &cacheEntry{
		FileName:   fileName,
		CreatedAt:  now,
		AccessedAt: now,
	}

	c.evictOverCapacityLocked()
	c.saveIndexLocked()
	return path, nil
}

// Delete implements Cache.
func (c *FileCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil
	}
	c.removeLocked(key, entry)
	return nil
}

// Clear implements Cache.
func (c *FileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		c.removeLocked(key, entry)
	}
	return nil
}

// Destroy stops the background sweep. Safe to call more than once.
func (c *FileCache) Destroy() {
	c.destroy.Do(func() {
		close(c.stopSweep)
	})
}

// Len returns the current entry count.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// download fetches a remote artifact and guesses its extension from the
// Content-Type header.
func (c *FileCache) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	ext := ".png"
	switch resp.Header.Get("Content-Type") {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	return data, ext, nil
}

// evictOverCapacityLocked removes least-recently-accessed entries until the
// cache fits its capacity. Pure LRU by access timestamp, not insertion order.
func (c *FileCache) evictOverCapacityLocked() {
	for len(c.entries) > c.maxEntries {
		var oldestKey string
		var oldest *cacheEntry
		for key, entry := range c.entries {
			if oldest == nil || entry.AccessedAt.Before(oldest.AccessedAt) {
				oldestKey = key
				oldest = entry
			}
		}
		c.log.Debug("evicting least recently used cache entry", zap.String("file", oldest.FileName))
		c.removeLocked(oldestKey, oldest)
	}
}

// removeLocked deletes an entry and its artifact. Caller holds the lock.
func (c *FileCache) removeLocked(key string, entry *cacheEntry) {
	c.removeArtifactLocked(entry)
	delete(c.entries, key)
	c.saveIndexLocked()
}

func (c *FileCache) removeArtifactLocked(entry *cacheEntry) {
	path := filepath.Join(c.dir, entry.FileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.log.Warn("failed to remove cached artifact", zap.String("file", entry.FileName), zap.Error(err))
	}
}

// sweepLoop periodically removes expired entries until Destroy is called.
func (c *FileCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep removes all expired entries and returns how many were dropped.
// Called by the background loop; exported so callers can force a pass.
func (c *FileCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if time.Since(entry.CreatedAt) > c.expiry {
			c.removeLocked(key, entry)
			removed++
		}
	}
	return removed
}

// loadIndex restores metadata from the index file. Any failure is non-fatal
// and the cache starts empty.
func (c *FileCache) loadIndex() {
	path := filepath.Join(c.dir, cacheIndexName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("failed to read cache index, starting empty", zap.Error(err))
		}
		return
	}

	var entries map[string]*cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.log.Warn("corrupt cache index, starting empty", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

// saveIndexLocked checkpoints metadata. Failures are logged, never surfaced.
func (c *FileCache) saveIndexLocked() {
	data, err := json.Marshal(c.entries)
	if err != nil {
		c.log.Warn("failed to encode cache index", zap.Error(err))
		return
	}
	path := filepath.Join(c.dir, cacheIndexName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.log.Warn("failed to write cache index", zap.Error(err))
	}
}
