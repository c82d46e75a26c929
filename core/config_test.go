package core

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Port != 8787 {
		t.Errorf("Port = %d, want 8787", cfg.Port)
	}
	if cfg.GenerationCost != 1 {
		t.Errorf("GenerationCost = %d, want 1", cfg.GenerationCost)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryBaseDelay != time.Second {
		t.Errorf("RetryBaseDelay = %v, want 1s", cfg.RetryBaseDelay)
	}
	if cfg.RetryMaxDelay != 10*time.Second {
		t.Errorf("RetryMaxDelay = %v, want 10s", cfg.RetryMaxDelay)
	}
	if cfg.AITimeout != 60*time.Second {
		t.Errorf("AITimeout = %v, want 60s", cfg.AITimeout)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want two default origins", cfg.AllowedOrigins)
	}
	if cfg.PaymentsEnabled() {
		t.Error("PaymentsEnabled() = true without Stripe keys")
	}
}

func TestLoadConfig_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig() succeeded without OPENAI_API_KEY")
	}
	if KindOf(err) != KindValidation {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindValidation)
	}
}

func TestLoadConfig_OriginsParsing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("ALLOWED_ORIGINS", " https://app.example.com , https://www.figma.com ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := []string{"https://app.example.com", "https://www.figma.com"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
	}
	for i, origin := range want {
		if cfg.AllowedOrigins[i] != origin {
			t.Errorf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], origin)
		}
	}
}

func TestLoadConfig_InvalidCost(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("GENERATION_COST", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() accepted zero generation cost")
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback bool
		want     bool
	}{
		{"true", "true", false, true},
		{"TRUE mixed case", "TRUE", false, true},
		{"one", "1", false, true},
		{"yes", "yes", false, true},
		{"on", "on", false, true},
		{"false", "false", true, false},
		{"zero", "0", true, false},
		{"off", "off", true, false},
		{"garbage keeps default", "banana", true, true},
		{"empty keeps default", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CHARFORGE_TEST_BOOL", tt.value)
			if got := parseBoolEnv("CHARFORGE_TEST_BOOL", tt.fallback); got != tt.want {
				t.Errorf("parseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.fallback, got, tt.want)
			}
		})
	}
}
