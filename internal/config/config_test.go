package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected defaults to load, got error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.InspectionTimeout != 30*time.Second {
		t.Fatalf("unexpected inspection timeout: %v", cfg.InspectionTimeout)
	}
	if cfg.MaxImageBytes != 10485760 {
		t.Fatalf("unexpected image ceiling: %d", cfg.MaxImageBytes)
	}
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("RATE_LIMIT_PER_SECOND", "2.5")
	t.Setenv("INSPECTION_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected overrides to load, got error: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.RateLimitPerSecond != 2.5 {
		t.Fatalf("unexpected rate limit: %f", cfg.RateLimitPerSecond)
	}
	if cfg.InspectionTimeout != 5*time.Second {
		t.Fatalf("unexpected inspection timeout: %v", cfg.InspectionTimeout)
	}
}

func TestLoadRejectsNonPositiveImageCeiling(t *testing.T) {
	t.Setenv("MAX_IMAGE_BYTES", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero image ceiling")
	}
}
