package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the CharacterForge backend.
// Values are read from environment variables; a .env file may be loaded by
// the caller (main does this via godotenv) before LoadConfig runs.
type Config struct {
	// Image model API
	OpenAIAPIKey     string // Required: key for the image generation model
	ImageModelURL    string // Optional override for the model endpoint
	OpenAIImageModel string // Model identifier (default: dall-e-3)

	// Payments
	StripeSecretKey     string // Required for checkout/webhook endpoints
	StripeWebhookSecret string // Required for webhook signature verification
	CheckoutSuccessURL  string // Redirect target after a completed checkout
	CheckoutCancelURL   string // Redirect target after an abandoned checkout

	// Server
	Port           int
	Host           string
	AllowedOrigins []string // CORS allow-list, comma-separated in env
	PublicBaseURL  string   // Base URL used to build image locators

	// Storage
	DatabasePath string
	ImagesDir    string
	LogFilePath  string

	// Generation
	GenerationCost int64         // Credits consumed per generation
	AITimeout      time.Duration // Hard timeout for one model call
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Rate limiting (best-effort, in-memory, lost on restart)
	RateLimitPerMinute int
	RateLimitBurst     int

	// Misc
	DevMode bool
}

// Helper function to get environment variable with default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to parse integer environment variable with default value
func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Helper function to parse int64 environment variable with default value
func parseInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Helper function to parse boolean environment variable with default value.
// Accepts case-insensitive: "true", "1", "yes", "on" as true values.
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to parse a duration expressed in seconds.
func parseDurationEnv(key string, defaultSeconds int) time.Duration {
	return time.Duration(parseIntEnv(key, defaultSeconds)) * time.Second
}

// parseOriginsEnv splits a comma-separated origin list, trimming whitespace
// and dropping empty entries.
func parseOriginsEnv(key string, defaults []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaults
	}
	var origins []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return defaults
	}
	return origins
}

// LoadConfig reads configuration from environment variables and applies
// defaults. It returns an error only for missing required values; malformed
// optional values silently fall back to defaults.
//
// Required:
//   - OPENAI_API_KEY
//
// Stripe keys are only required when the checkout/webhook endpoints are
// enabled; their absence is reported by the startup validation suite rather
// than here so local development without payments keeps working.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		ImageModelURL:    getEnvOrDefault("IMAGE_MODEL_URL", "https://api.openai.com/v1"),
		OpenAIImageModel: getEnvOrDefault("OPENAI_IMAGE_MODEL", "dall-e-3"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  getEnvOrDefault("CHECKOUT_SUCCESS_URL", "http://localhost:5173/credits?status=success"),
		CheckoutCancelURL:   getEnvOrDefault("CHECKOUT_CANCEL_URL", "http://localhost:5173/credits?status=cancelled"),

		Port: parseIntEnv("PORT", 8787),
		Host: getEnvOrDefault("HOST", "0.0.0.0"),
		AllowedOrigins: parseOriginsEnv("ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"https://www.figma.com",
		}),
		PublicBaseURL: getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8787"),

		DatabasePath: getEnvOrDefault("DATABASE_PATH", "data/charforge.db"),
		ImagesDir:    getEnvOrDefault("IMAGES_DIR", "data/images"),
		LogFilePath:  getEnvOrDefault("LOG_FILE", "charforge.log"),

		GenerationCost: parseInt64Env("GENERATION_COST", 1),
		AITimeout:      parseDurationEnv("AI_TIMEOUT", 60),
		MaxRetries:     parseIntEnv("MAX_RETRIES", 3),
		RetryBaseDelay: time.Duration(parseIntEnv("RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond,
		RetryMaxDelay:  time.Duration(parseIntEnv("RETRY_MAX_DELAY_MS", 10000)) * time.Millisecond,

		RateLimitPerMinute: parseIntEnv("RATE_LIMIT_PER_MINUTE", 10),
		RateLimitBurst:     parseIntEnv("RATE_LIMIT_BURST", 3),

		DevMode: parseBoolEnv("DEV_MODE", false),
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, ErrMissingConfig("OPENAI_API_KEY")
	}
	if cfg.GenerationCost < 1 {
		return nil, fmt.Errorf("GENERATION_COST must be at least 1, got %d", cfg.GenerationCost)
	}

	return cfg, nil
}

// PaymentsEnabled reports whether both Stripe keys are configured.
func (c *Config) PaymentsEnabled() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}

// ErrMissingConfig returns a ValidationError for a missing required
// environment variable with an actionable message.
func ErrMissingConfig(varName string) error {
	return &ValidationError{
		Field:   varName,
		Message: fmt.Sprintf("set %s in your environment or .env file", varName),
	}
}
