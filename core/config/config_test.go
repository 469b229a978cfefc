package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeYAML(t, `
telegram:
  token: "123:abc"
rate_limit:
  per_second: 2
  exclude_updates: [" Callback "]
metrics:
  listen: ":9090"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	if cfg.RateLimit.Burst != 1 {
		t.Fatalf("burst = %d", cfg.RateLimit.Burst)
	}
	if cfg.RateLimit.ExcludeUpdates[0] != UpdateCallback {
		t.Fatalf("exclude = %v", cfg.RateLimit.ExcludeUpdates)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("metrics path = %q", cfg.Metrics.Path)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, `
telegram:
  token: "from-yaml"
`)
	t.Setenv("BOT_TOKEN", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestNormalizeRejectsWebhookWithoutURL(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "x", RunMode: "webhook"}}
	if err := Normalize(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNormalizeRejectsUnknownExclusion(t *testing.T) {
	cfg := &Config{
		Telegram:  TelegramConfig{Token: "x"},
		RateLimit: RateLimitConfig{ExcludeUpdates: []string{"inline"}},
	}
	if err := Normalize(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateNegativeRate(t *testing.T) {
	cfg := &Config{
		Telegram:  TelegramConfig{Token: "x", RunMode: RunModeLongpoll},
		RateLimit: RateLimitConfig{PerSecond: -1},
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error")
	}
}
