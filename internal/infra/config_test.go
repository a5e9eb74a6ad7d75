package infra

import (
	"testing"
	"time"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("DOWNLOAD_SIGNING_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("DOWNLOAD_TOKEN_MINUTES", "")
	t.Setenv("GENERATION_POLL_INTERVAL_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q want 8080", cfg.Port)
	}
	if cfg.TokenWindow != 60*time.Minute {
		t.Fatalf("TokenWindow mismatch: got %v want 60m", cfg.TokenWindow)
	}
	if cfg.SignedURLTTL != 15*time.Minute {
		t.Fatalf("SignedURLTTL mismatch: got %v want 15m", cfg.SignedURLTTL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("PollInterval mismatch: got %v want 5s", cfg.PollInterval)
	}
	if cfg.PollTimeout != 3*time.Minute {
		t.Fatalf("PollTimeout mismatch: got %v want 3m", cfg.PollTimeout)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DOWNLOAD_SIGNING_SECRET", "test-secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is missing")
	}
}

func TestLoadConfigRequiresSigningSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("DOWNLOAD_SIGNING_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when DOWNLOAD_SIGNING_SECRET is missing")
	}
}

func TestLoadConfigHonorsOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("DOWNLOAD_SIGNING_SECRET", "test-secret")
	t.Setenv("DOWNLOAD_TOKEN_MINUTES", "1440")
	t.Setenv("GENERATION_POLL_INTERVAL_SECONDS", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TokenWindow != 24*time.Hour {
		t.Fatalf("TokenWindow mismatch: got %v want 24h", cfg.TokenWindow)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("PollInterval mismatch: got %v want 2s", cfg.PollInterval)
	}
}
