// downloader.go implements the Downloader molecule that fetches generated
// images from the temporary URLs returned by image providers.
package imagegen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxDownloadBytes caps a single image download at 20 MiB.
const DefaultMaxDownloadBytes = 20 << 20

// Downloader fetches image bytes from provider URLs.
//
// Provider URLs expire after about an hour, so downloads happen immediately
// after generation and the bytes are kept in memory for the alpha pass.
//
// Thread Safety: Downloader is safe for concurrent use. Each download
// creates its own HTTP request.
type Downloader struct {
	client   *http.Client
	maxBytes int64
}

// DownloaderConfig holds configuration for the Downloader.
type DownloaderConfig struct {
	// HTTPClient is the client for downloads (optional; a 60s-timeout
	// client is created when nil).
	HTTPClient *http.Client

	// MaxBytes caps the size of a single download
	// (default: DefaultMaxDownloadBytes).
	MaxBytes int64
}

// NewDownloader creates an image downloader.
func NewDownloader(cfg DownloaderConfig) *Downloader {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownloadBytes
	}
	return &Downloader{client: client, maxBytes: maxBytes}
}

// DownloadBytes fetches the image at url and returns its raw bytes.
//
// Returns an error on transport failure, a non-200 status, or a body
// larger than the configured size cap.
func (d *Downloader) DownloadBytes(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("imagegen: URL cannot be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("imagegen: failed to create download request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagegen: failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagegen: download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("imagegen: failed to read image data: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("imagegen: image exceeds %d byte limit", d.maxBytes)
	}
	return data, nil
}
