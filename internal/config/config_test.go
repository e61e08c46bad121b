package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.RateLimit.FreeLimit != 50 || cfg.RateLimit.ProLimit != 1000 {
		t.Fatalf("unexpected tier limits: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.EnterpriseLimit != UnlimitedLimit {
		t.Fatalf("enterprise default should be unlimited, got %d", cfg.RateLimit.EnterpriseLimit)
	}
	if cfg.RateLimit.WindowSeconds != 3600 {
		t.Fatalf("unexpected window: %d", cfg.RateLimit.WindowSeconds)
	}
	if !cfg.RateLimit.FailOpen {
		t.Fatalf("fail-open should default to true")
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		t.Fatalf("defaults should validate: %v", errValidate)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
listen: ":9090"
rate-limit:
  free-limit: 10
  window-seconds: 60
upstream:
  api-key: sk-test
`)
	if errWrite := os.WriteFile(path, data, 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("listen not applied: %q", cfg.Listen)
	}
	if cfg.RateLimit.FreeLimit != 10 || cfg.RateLimit.WindowSeconds != 60 {
		t.Fatalf("rate-limit not applied: %+v", cfg.RateLimit)
	}
	if cfg.Upstream.APIKey != "sk-test" {
		t.Fatalf("api key not applied: %q", cfg.Upstream.APIKey)
	}
	// Keys absent from the file keep defaults.
	if cfg.RateLimit.ProLimit != DefaultProLimit {
		t.Fatalf("pro limit should keep default, got %d", cfg.RateLimit.ProLimit)
	}
	if cfg.Upstream.TotalTimeout != 30*time.Second {
		t.Fatalf("total timeout should keep default, got %s", cfg.Upstream.TotalTimeout)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if errWrite := os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}

	t.Setenv("GATEWAY_LISTEN", ":7070")
	t.Setenv("RATE_LIMIT_FREE", "5")
	t.Setenv("RATE_LIMIT_FAIL_OPEN", "false")
	t.Setenv("UPSTREAM_TOTAL_TIMEOUT", "45s")

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Listen != ":7070" {
		t.Fatalf("env should win over file, got %q", cfg.Listen)
	}
	if cfg.RateLimit.FreeLimit != 5 {
		t.Fatalf("free limit env not applied: %d", cfg.RateLimit.FreeLimit)
	}
	if cfg.RateLimit.FailOpen {
		t.Fatalf("fail-open env not applied")
	}
	if cfg.Upstream.TotalTimeout != 45*time.Second {
		t.Fatalf("total timeout env not applied: %s", cfg.Upstream.TotalTimeout)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, errLoad := Load(filepath.Join(t.TempDir(), "absent.yaml")); errLoad == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero window", func(c *Config) { c.RateLimit.WindowSeconds = 0 }},
		{"zero limit", func(c *Config) { c.RateLimit.FreeLimit = 0 }},
		{"limit below sentinel", func(c *Config) { c.RateLimit.ProLimit = -2 }},
		{"empty upstream url", func(c *Config) { c.Upstream.URL = " " }},
		{"zero upstream timeout", func(c *Config) { c.Upstream.TotalTimeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if errValidate := cfg.Validate(); errValidate == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestUnlimitedLimitValidates(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.ProLimit = UnlimitedLimit
	if errValidate := cfg.Validate(); errValidate != nil {
		t.Fatalf("unlimited should validate: %v", errValidate)
	}
}
