package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyHTTPError_StatusFirst(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		message    string
		wantKind   ErrorKind
	}{
		{
			name:       "401 maps to authentication",
			statusCode: 401,
			message:    "missing bearer token",
			wantKind:   KindAuthentication,
		},
		{
			name:       "403 maps to authentication",
			statusCode: 403,
			message:    "revoked key",
			wantKind:   KindAuthentication,
		},
		{
			name:       "402 maps to insufficient credits",
			statusCode: 402,
			message:    "insufficient credits",
			wantKind:   KindInsufficientCredits,
		},
		{
			name:       "429 maps to rate limit",
			statusCode: 429,
			message:    "slow down",
			wantKind:   KindRateLimit,
		},
		{
			name:       "408 maps to api error",
			statusCode: 408,
			message:    "request timed out",
			wantKind:   KindAPI,
		},
		{
			name:       "400 maps to validation",
			statusCode: 400,
			message:    "bad hair color",
			wantKind:   KindValidation,
		},
		{
			name:       "500 maps to api error",
			statusCode: 500,
			message:    "internal error",
			wantKind:   KindAPI,
		},
		{
			name:       "503 maps to api error",
			statusCode: 503,
			message:    "upstream unavailable",
			wantKind:   KindAPI,
		},
		{
			name:       "status wins over message content",
			statusCode: 401,
			message:    "insufficient credits", // misleading body, status rules
			wantKind:   KindAuthentication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyHTTPError(tt.statusCode, tt.message, "generate-character")
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("ClassifyHTTPError(%d, %q) kind = %q, want %q",
					tt.statusCode, tt.message, got, tt.wantKind)
			}
		})
	}
}

func TestClassifyHTTPError_MessageHeuristics(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantKind ErrorKind
	}{
		{
			name:     "credit message maps to insufficient credits",
			message:  "Insufficient credits. Please purchase more.",
			wantKind: KindInsufficientCredits,
		},
		{
			name:     "api key message maps to authentication",
			message:  "invalid API key",
			wantKind: KindAuthentication,
		},
		{
			name:     "rate limit message maps to rate limit",
			message:  "rate limit exceeded",
			wantKind: KindRateLimit,
		},
		{
			name:     "timeout message maps to network",
			message:  "connection timeout while contacting model",
			wantKind: KindNetwork,
		},
		{
			name:     "ambiguous message defaults to generation",
			message:  "something unexpected happened",
			wantKind: KindGeneration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Status 200 forces the classifier onto the message path.
			err := ClassifyHTTPError(200, tt.message, "generate-character")
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("ClassifyHTTPError(200, %q) kind = %q, want %q", tt.message, got, tt.wantKind)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit is retryable", &RateLimitError{Message: "quota"}, true},
		{"network is retryable", &NetworkError{Message: "timeout"}, true},
		{"api 500 is retryable", &APIError{StatusCode: 500, Operation: "gen"}, true},
		{"api 502 is retryable", &APIError{StatusCode: 502, Operation: "gen"}, true},
		{"api 408 is retryable", &APIError{StatusCode: 408, Operation: "gen"}, true},
		{"api 429 is retryable", &APIError{StatusCode: 429, Operation: "gen"}, true},
		{"api 404 is not retryable", &APIError{StatusCode: 404, Operation: "gen"}, false},
		{"authentication is not retryable", &AuthenticationError{Message: "bad key"}, false},
		{"insufficient credits is not retryable", &InsufficientCreditsError{Message: "broke"}, false},
		{"validation is not retryable", &ValidationError{Message: "bad input"}, false},
		{"generation is not retryable", &GenerationError{Message: "no image"}, false},
		{"plain error is not retryable", errors.New("opaque"), false},
		{"wrapped network is retryable", fmt.Errorf("attempt 2: %w", &NetworkError{Message: "reset"}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestKindOf_NonTaxonomyError(t *testing.T) {
	if kind := KindOf(errors.New("plain")); kind != "" {
		t.Errorf("KindOf(plain error) = %q, want empty", kind)
	}
}

func TestErrorsAs_BranchingWithoutStrings(t *testing.T) {
	err := fmt.Errorf("handler: %w", &InsufficientCreditsError{
		Message:   "Insufficient credits",
		Required:  1,
		Available: 0,
	})

	var credErr *InsufficientCreditsError
	if !errors.As(err, &credErr) {
		t.Fatal("errors.As failed to unwrap InsufficientCreditsError")
	}
	if credErr.Required != 1 {
		t.Errorf("Required = %d, want 1", credErr.Required)
	}
}
