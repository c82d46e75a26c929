// Package core provides configuration, the error taxonomy, and shared HTTP
// utilities for the CharacterForge backend and SDK.
//
// errors.go defines the closed set of error kinds used across the client and
// the server. Every error carries a stable machine-readable Kind so callers
// can branch on the failure class without matching message strings.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind identifies the class of a taxonomy error.
// The set is closed: new kinds require updating IsRetryable and the HTTP
// status mapping in the server package.
type ErrorKind string

const (
	// KindAuthentication indicates an invalid or missing credential. Never retried.
	KindAuthentication ErrorKind = "authentication"

	// KindInsufficientCredits indicates the caller's balance cannot cover the
	// operation. Never retried; surfaced verbatim to the end user.
	KindInsufficientCredits ErrorKind = "insufficient_credits"

	// KindRateLimit indicates the caller exceeded their quota. Retryable with backoff.
	KindRateLimit ErrorKind = "rate_limit"

	// KindNetwork indicates a transport failure or timeout. Retryable.
	KindNetwork ErrorKind = "network"

	// KindAPI indicates the remote returned a retryable-class HTTP status
	// (5xx, 408, 429). Carries the status code and originating operation.
	KindAPI ErrorKind = "api"

	// KindGeneration is the catch-all terminal failure for the generation
	// pipeline (e.g., missing image in an otherwise-200 response). Not retried.
	KindGeneration ErrorKind = "generation"

	// KindValidation indicates a malformed request payload. Not retried,
	// surfaced before any network call.
	KindValidation ErrorKind = "validation"

	// KindConfigValidation indicates an out-of-vocabulary character
	// configuration value. Not retried.
	KindConfigValidation ErrorKind = "config_validation"

	// KindCache indicates a cache read/write failure. Non-fatal: logged and
	// swallowed by the generation client.
	KindCache ErrorKind = "cache"

	// KindPayment indicates a checkout-specific terminal failure.
	KindPayment ErrorKind = "payment"
)

// AuthenticationError is returned for invalid or missing credentials.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// Kind returns KindAuthentication.
func (e *AuthenticationError) Kind() ErrorKind { return KindAuthentication }

// InsufficientCreditsError is returned when a balance cannot cover the cost
// of a paid operation. Required and Available are advisory; Available is -1
// when the server did not disclose the balance.
type InsufficientCreditsError struct {
	Message   string
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string { return e.Message }

// Kind returns KindInsufficientCredits.
func (e *InsufficientCreditsError) Kind() ErrorKind { return KindInsufficientCredits }

// RateLimitError is returned when the caller exceeded their request quota.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string { return e.Message }

// Kind returns KindRateLimit.
func (e *RateLimitError) Kind() ErrorKind { return KindRateLimit }

// NetworkError wraps a transport-level failure, including attempt timeouts.
type NetworkError struct {
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying transport error.
func (e *NetworkError) Unwrap() error { return e.Err }

// Kind returns KindNetwork.
func (e *NetworkError) Kind() ErrorKind { return KindNetwork }

// APIError is returned when the remote endpoint answered with a failure
// status. It carries the status code and the operation that produced it so
// the retry engine can decide whether the failure class is transient.
type APIError struct {
	StatusCode int
	Operation  string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// Kind returns KindAPI.
func (e *APIError) Kind() ErrorKind { return KindAPI }

// Retryable reports whether the status code indicates a transient
// infrastructure failure (5xx, 408, 429).
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 429
}

// GenerationError is the terminal catch-all for pipeline failures.
type GenerationError struct {
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying failure.
func (e *GenerationError) Unwrap() error { return e.Err }

// Kind returns KindGeneration.
func (e *GenerationError) Kind() ErrorKind { return KindGeneration }

// ValidationError is returned for malformed request payloads.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Kind returns KindValidation.
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// ConfigValidationError is returned when a character configuration field is
// outside its fixed vocabulary. It is raised before any network call.
type ConfigValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// Kind returns KindConfigValidation.
func (e *ConfigValidationError) Kind() ErrorKind { return KindConfigValidation }

// CacheError wraps a cache read/write failure. The generation client logs
// these and continues; they must never block or fail a generation.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying storage error.
func (e *CacheError) Unwrap() error { return e.Err }

// Kind returns KindCache.
func (e *CacheError) Kind() ErrorKind { return KindCache }

// PaymentError is returned for checkout-specific terminal failures.
type PaymentError struct {
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *PaymentError) Unwrap() error { return e.Err }

// Kind returns KindPayment.
func (e *PaymentError) Kind() ErrorKind { return KindPayment }

// kinder is implemented by every taxonomy error.
type kinder interface {
	Kind() ErrorKind
}

// KindOf returns the taxonomy kind of err, unwrapping as needed.
// Returns the empty kind for errors outside the taxonomy.
func KindOf(err error) ErrorKind {
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

// IsRetryable reports whether err represents a transient failure that the
// retry engine may attempt again. Rate limit and network failures are always
// retryable; API failures are retryable when their status code is
// infrastructure-class. Every other kind is terminal.
func IsRetryable(err error) bool {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// ClassifyHTTPError converts a failure response from the generation endpoint
// into a taxonomy error. Classification uses the status code first, then
// message-content heuristics, and defaults to the generic terminal kind when
// ambiguous.
//
// Parameters:
//   - statusCode: the HTTP status of the failure response
//   - message: the error message from the response body (may be empty)
//   - operation: the name of the operation for APIError context
func ClassifyHTTPError(statusCode int, message, operation string) error {
	if message == "" {
		message = "request failed"
	}

	switch statusCode {
	case 401, 403:
		return &AuthenticationError{Message: message}
	case 402:
		return &InsufficientCreditsError{Message: message, Available: -1}
	case 429:
		return &RateLimitError{Message: message}
	case 408:
		return &APIError{StatusCode: statusCode, Operation: operation, Message: message}
	case 400, 422:
		return &ValidationError{Message: message}
	}
	if statusCode >= 500 {
		return &APIError{StatusCode: statusCode, Operation: operation, Message: message}
	}

	// Status was ambiguous; fall back to message-content heuristics.
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "insufficient credits"), strings.Contains(lower, "credit"):
		return &InsufficientCreditsError{Message: message, Available: -1}
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "api key"), strings.Contains(lower, "token"):
		return &AuthenticationError{Message: message}
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"):
		return &RateLimitError{Message: message}
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "connection"):
		return &NetworkError{Message: message}
	}

	return &GenerationError{Message: message}
}
