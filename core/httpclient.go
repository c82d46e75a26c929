package core

import (
	"net/http"
	"time"
)

// GetHTTPClient returns an HTTP client with the specified timeout.
// All outbound calls (model API, image downloads, Stripe) share this shape
// so timeout behavior is uniform across the backend.
func GetHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// GetDefaultHTTPClient returns an HTTP client with the default timeout (30s).
func GetDefaultHTTPClient() *http.Client {
	return GetHTTPClient(30 * time.Second)
}
