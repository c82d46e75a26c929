// client.go implements the CharacterForge generation client: the single
// public Generate operation composing cache lookup, the retry engine, and
// cache store around the remote generation endpoint.
package charclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"charforge/core"
	"charforge/logging"
)

// DefaultBaseURL is the production endpoint prefix.
const DefaultBaseURL = "https://api.characterforge.app"

// StatusPhase identifies a phase transition during Generate. Phases are
// emitted through the optional status callback so UIs can display progress
// without parsing strings.
type StatusPhase int

const (
	// PhaseCacheLookup is emitted before the cache is consulted.
	PhaseCacheLookup StatusPhase = iota

	// PhaseCacheHit is emitted when a cached image short-circuits the call.
	PhaseCacheHit

	// PhaseGenerating is emitted before the remote endpoint is invoked.
	PhaseGenerating

	// PhaseCaching is emitted before the fresh result is stored.
	PhaseCaching

	// PhaseComplete is emitted once a locator is ready to return.
	PhaseComplete
)

// String returns the human-readable status message for a phase.
func (p StatusPhase) String() string {
	switch p {
	case PhaseCacheLookup:
		return "Checking cache..."
	case PhaseCacheHit:
		return "Found cached character"
	case PhaseGenerating:
		return "Generating character..."
	case PhaseCaching:
		return "Saving to cache..."
	case PhaseComplete:
		return "Done"
	default:
		return "Working..."
	}
}

// StatusFunc receives phase transitions during Generate. May be nil.
type StatusFunc func(phase StatusPhase, message string)

// ClientConfig configures a Client.
type ClientConfig struct {
	// APIKey is the CharacterForge credential. Required: construction fails
	// synchronously without it.
	APIKey string

	// BaseURL overrides the endpoint prefix (default: DefaultBaseURL).
	BaseURL string

	// EnableCache turns on client-side caching of generated images.
	EnableCache bool

	// CacheDir is where the default file cache stores artifacts
	// (default: ".charforge-cache"). Ignored when Cache is set.
	CacheDir string

	// Cache supplies a custom cache backend. Optional.
	Cache Cache

	// Retry tunes the backoff engine. Zero values use defaults.
	Retry RetryConfig

	// HTTPClient overrides the transport. Optional.
	HTTPClient *http.Client

	// Logger for diagnostics (default: nop).
	Logger *logging.Logger
}

// Client is the CharacterForge generation client. One Generate call maps to
// at most one remote generation; identical configs are served from cache
// when caching is enabled. Concurrent Generate calls are independent and
// uncoordinated: two identical in-flight requests may both generate and both
// populate the cache (last write wins).
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	retrier      *Retrier
	cache        Cache
	cacheEnabled bool
	log          *logging.Logger
}

// NewClient creates a Client. A missing or blank API key is a fatal
// AuthenticationError raised here, not at call time, so misconfiguration is
// caught immediately.
func NewClient(config ClientConfig) (*Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, &core.AuthenticationError{Message: "charclient: API key is required"}
	}

	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = core.GetDefaultHTTPClient()
	}
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}

	log := config.Logger.Named("charclient")

	cache := config.Cache
	if cache == nil && config.EnableCache {
		dir := config.CacheDir
		if dir == "" {
			dir = ".charforge-cache"
		}
		fileCache, err := NewFileCache(FileCacheConfig{
			Dir:    dir,
			Logger: config.Logger,
		})
		if err != nil {
			// A broken cache must not block generation; run uncached.
			log.Warn("cache unavailable, continuing without caching", zap.Error(err))
			cache = nil
		} else {
			cache = fileCache
		}
	}

	return &Client{
		apiKey:       config.APIKey,
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		httpClient:   config.HTTPClient,
		retrier:      NewRetrier(config.Retry, config.Logger),
		cache:        cache,
		cacheEnabled: config.EnableCache,
		log:          log,
	}, nil
}

// Generate produces a character image for config and returns its locator
// (a local path on cache hit or successful cache store, otherwise the remote
// URL). onStatus, when non-nil, receives a phase update at each transition.
//
// The call is idempotent per config when caching is enabled: a second call
// with a cache-equivalent config returns the cached locator without invoking
// the remote endpoint.
func (c *Client) Generate(ctx context.Context, config CharacterConfig, onStatus StatusFunc) (string, error) {
	if err := config.Validate(); err != nil {
		return "", err
	}

	key := config.CacheKey()
	useCache := c.cacheEnabled && !config.NoCache && c.cache != nil

	if useCache {
		c.emit(onStatus, PhaseCacheLookup)
		if locator, ok := c.cacheLookup(key); ok {
			c.emit(onStatus, PhaseCacheHit)
			return locator, nil
		}
	}

	c.emit(onStatus, PhaseGenerating)

	var imageURL string
	err := c.retrier.Do(ctx, "generate-character", func(ctx context.Context) error {
		url, callErr := c.callGenerate(ctx, config)
		if callErr != nil {
			return callErr
		}
		imageURL = url
		return nil
	})
	if err != nil {
		return "", err
	}

	locator := imageURL
	if useCache {
		c.emit(onStatus, PhaseCaching)
		stored, storeErr := c.cache.Set(ctx, key, imageURL)
		if storeErr != nil {
			// Cache backends are expected to fall back internally; a hard
			// failure here is still non-fatal.
			c.log.Warn("failed to cache generated image", zap.Error(storeErr))
		} else {
			locator = stored
		}
	}

	c.emit(onStatus, PhaseComplete)
	return locator, nil
}

// ClearCache removes every cached artifact. A no-op without a cache.
func (c *Client) ClearCache() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear()
}

// Close releases the cache's background resources. Safe to call twice.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Destroy()
	}
}

// cacheLookup consults the cache, swallowing panics-by-contract: any
// misbehavior is treated as a miss so the cache can never block generation.
func (c *Client) cacheLookup(key string) (locator string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("cache lookup panicked, treating as miss", zap.Any("panic", r))
			locator, ok = "", false
		}
	}()
	return c.cache.Get(key)
}

// emit delivers a status update when a callback is present.
func (c *Client) emit(onStatus StatusFunc, phase StatusPhase) {
	if onStatus != nil {
		onStatus(phase, phase.String())
	}
}

// generateResponse is the success body of the generation endpoint.
type generateResponse struct {
	Image string `json:"image"`
}

// errorResponse is the failure body of every endpoint.
type errorResponse struct {
	Error string `json:"error"`
}

// callGenerate performs one POST to the generation endpoint and classifies
// any failure into the error taxonomy.
func (c *Client) callGenerate(ctx context.Context, config CharacterConfig) (string, error) {
	body, err := json.Marshal(config)
	if err != nil {
		return "", &core.ValidationError{Message: fmt.Sprintf("failed to encode config: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-character", bytes.NewReader(body))
	if err != nil {
		return "", &core.NetworkError{Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Context deadline errors pass through wrapped so the retry engine
		// can convert them; everything else is a transport failure.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &core.NetworkError{Message: "generation request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &core.NetworkError{Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.Unmarshal(respBody, &errResp)
		return "", core.ClassifyHTTPError(resp.StatusCode, errResp.Error, "generate-character")
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", &core.GenerationError{Message: "malformed generation response", Err: err}
	}
	if genResp.Image == "" {
		return "", &core.GenerationError{Message: "generation response missing image"}
	}
	return genResp.Image, nil
}
