package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvOpenRouterKey, "")
	t.Setenv(EnvFDCKey, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.RateLimit.MaxRequests != 20 || cfg.RateLimit.Window.Std() != 15*time.Minute {
		t.Errorf("rate limit defaults = %+v", cfg.RateLimit)
	}
	if cfg.Upstream.VisionTimeout.Std() != 22*time.Second {
		t.Errorf("vision timeout = %v", cfg.Upstream.VisionTimeout)
	}
}

func TestLoad_FileOverridesAndSecrets(t *testing.T) {
	t.Setenv(EnvOpenRouterKey, "or-key")
	t.Setenv(EnvFDCKey, " fdc-key ")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("server:\n  addr: \":9090\"\nrate-limit:\n  max-requests: 5\n  window: 1m\nupstream:\n  vision-model: test/model\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.RateLimit.MaxRequests != 5 || cfg.RateLimit.Window.Std() != time.Minute {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Upstream.VisionModel != "test/model" {
		t.Errorf("vision model = %q", cfg.Upstream.VisionModel)
	}
	// Unset file keys keep defaults.
	if cfg.Upstream.FDCBaseURL != "https://api.nal.usda.gov/fdc" {
		t.Errorf("fdc base url = %q", cfg.Upstream.FDCBaseURL)
	}
	if cfg.OpenRouterKey != "or-key" {
		t.Errorf("openrouter key = %q", cfg.OpenRouterKey)
	}
	if cfg.FDCKey != "fdc-key" {
		t.Errorf("fdc key should be trimmed, got %q", cfg.FDCKey)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unbalanced"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestMissingSecret(t *testing.T) {
	cfg := Default()
	if got := cfg.MissingSecret(); got != EnvOpenRouterKey {
		t.Errorf("MissingSecret = %q, want %q", got, EnvOpenRouterKey)
	}
	cfg.OpenRouterKey = "x"
	if got := cfg.MissingSecret(); got != EnvFDCKey {
		t.Errorf("MissingSecret = %q, want %q", got, EnvFDCKey)
	}
	cfg.FDCKey = "y"
	if got := cfg.MissingSecret(); got != "" {
		t.Errorf("MissingSecret = %q, want empty", got)
	}
}

func TestWatch_Reloads(t *testing.T) {
	t.Setenv(EnvOpenRouterKey, "k")
	t.Setenv(EnvFDCKey, "k")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("rate-limit:\n  max-requests: 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	if err := Watch(ctx, path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("rate-limit:\n  max-requests: 9\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.RateLimit.MaxRequests != 9 {
			t.Errorf("reloaded max-requests = %d, want 9", cfg.RateLimit.MaxRequests)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
