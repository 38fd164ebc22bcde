package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	pidxerrors "github.com/xtxerr/pidx/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Digits.Precision != 10000 {
		t.Errorf("precision = %d, want 10000", cfg.Digits.Precision)
	}
	if cfg.Identifiers.PoolSize != 1000 {
		t.Errorf("pool_size = %d, want 1000", cfg.Identifiers.PoolSize)
	}
	if cfg.Workers.UnitTimeout != 5*time.Second {
		t.Errorf("unit_timeout = %v, want 5s", cfg.Workers.UnitTimeout)
	}
	if cfg.Ledger.Enabled {
		t.Error("ledger should be disabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero precision", func(c *Config) { c.Digits.Precision = 0 }},
		{"unknown algorithm", func(c *Config) { c.Digits.Algorithm = "leibniz" }},
		{"bbp as series", func(c *Config) { c.Digits.Algorithm = "bbp" }},
		{"small guard", func(c *Config) { c.Digits.GuardDigits = 10 }},
		{"length beyond precision", func(c *Config) { c.Identifiers.Length = c.Digits.Precision }},
		{"pool beyond block", func(c *Config) { c.Digits.Precision = 500; c.Identifiers.PoolSize = 490 }},
		{"growth below precision", func(c *Config) { c.Identifiers.MaxPrecision = c.Digits.Precision - 1 }},
		{"bad curve", func(c *Config) { c.Identifiers.SpiralCurve = "helix" }},
		{"no workers", func(c *Config) { c.Workers.Count = 0 }},
		{"bad clamp", func(c *Config) { c.Spiral.Clamp = map[string]float64{"lituus": -1} }},
		{"unknown clamp curve", func(c *Config) { c.Spiral.Clamp = map[string]float64{"helix": 10} }},
		{"negative stall", func(c *Config) { c.Query.StallLimit = -1 }},
		{"sketch accuracy", func(c *Config) { c.Query.SketchAccuracy = 1 }},
		{"ledger without dir", func(c *Config) {
			c.Ledger.Enabled = true
			c.Ledger.DataDir = ""
		}},
		{"ledger bad codec", func(c *Config) {
			c.Ledger.Enabled = true
			c.Ledger.Compression = "brotli"
		}},
		{"analytics without ledger", func(c *Config) { c.Analytics.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, pidxerrors.ErrInvalidConfig) && !errors.Is(err, pidxerrors.ErrMissingField) {
				t.Errorf("error should be a config error: %v", err)
			}
		})
	}
}

func TestConfigValidate_ReportsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Digits.Precision = 0
	cfg.Workers.Count = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("expected joined error, got %T", err)
	}
	if n := len(joined.Unwrap()); n < 2 {
		t.Errorf("expected at least 2 section errors, got %d", n)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pidx.yaml")

	content := `
digits:
  precision: 2000
identifiers:
  length: 12
  pool_size: 100
workers:
  count: 4
  unit_timeout: 2s
spiral:
  clamp:
    hyperbolic: 500
query:
  stall_limit: 0
ledger:
  enabled: true
  data_dir: /tmp/pidx
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Digits.Precision != 2000 {
		t.Errorf("precision = %d, want 2000", cfg.Digits.Precision)
	}
	if cfg.Digits.Algorithm != "chudnovsky" {
		t.Errorf("algorithm default lost: %q", cfg.Digits.Algorithm)
	}
	if cfg.Identifiers.Length != 12 || cfg.Identifiers.PoolSize != 100 {
		t.Errorf("identifiers = %+v", cfg.Identifiers)
	}
	if cfg.Workers.UnitTimeout != 2*time.Second {
		t.Errorf("unit_timeout = %v, want 2s", cfg.Workers.UnitTimeout)
	}
	if cfg.Spiral.Clamp["hyperbolic"] != 500 {
		t.Errorf("clamp override lost: %v", cfg.Spiral.Clamp)
	}
	if cfg.Query.StallLimit != 0 {
		t.Errorf("stall_limit = %d, want 0", cfg.Query.StallLimit)
	}
	if !cfg.Ledger.Enabled || cfg.Ledger.DataDir != "/tmp/pidx" {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Parse([]byte("digits: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Parse([]byte("digits:\n  precision: -5\n")); err == nil {
		t.Error("expected validation error")
	}
}
