package main

import (
	"testing"
	"time"
)

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("AO3_BASE_URL", "http://env.test")
	t.Setenv("AO3_MAX_PAGES", "7")
	t.Setenv("PORT", "9000")

	cfg, once, err := loadConfig([]string{"-max-pages", "3", "-format", "CSV", "-once", "-login-wait", "2s"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !once {
		t.Fatalf("expected -once to be set")
	}
	if cfg.BaseURL != "http://env.test" {
		t.Fatalf("base url = %q, want env value", cfg.BaseURL)
	}
	if cfg.MaxPages != 3 {
		t.Fatalf("max pages = %d, want flag value 3", cfg.MaxPages)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("listen addr = %q, want :9000", cfg.ListenAddr)
	}
	if cfg.OutputFormat != "csv" {
		t.Fatalf("format = %q, want csv", cfg.OutputFormat)
	}
	if cfg.LoginWait != 2*time.Second {
		t.Fatalf("login wait = %v, want 2s", cfg.LoginWait)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("AO3_TIMEOUT", "soon")

	if _, _, err := loadConfig(nil); err == nil {
		t.Fatalf("expected error for malformed AO3_TIMEOUT")
	}
}
