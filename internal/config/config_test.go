package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/librelane/parkval/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parkval.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Validation.MaxValidations != 2 {
		t.Errorf("expected default max validations 2, got %d", cfg.Validation.MaxValidations)
	}
	if cfg.Validation.Interval.Std() != 2*time.Hour {
		t.Errorf("expected default interval 2h, got %s", cfg.Validation.Interval.Std())
	}
	if cfg.Failures.Threshold != 5 {
		t.Errorf("expected default failure threshold 5, got %d", cfg.Failures.Threshold)
	}
	if cfg.Barcode.Prefix != "2194500" || cfg.Barcode.Length != 14 {
		t.Errorf("unexpected default barcode profile %q/%d", cfg.Barcode.Prefix, cfg.Barcode.Length)
	}
	if cfg.Report.Day != 0 {
		t.Errorf("expected reporting disabled by default, got day %d", cfg.Report.Day)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
validation:
  max_validations: 3
  interval: 90m
  touchless_delay: 2s
failures:
  threshold: 7
barcode:
  admin: ["111"]
  debug: ["222", "333"]
directory:
  url: https://sierra.example.org/iii/sierra-api/v6
database:
  path: /var/lib/parkval/parkval.db
  reset_interval: 12h
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Validation.MaxValidations != 3 {
		t.Errorf("expected max validations 3, got %d", cfg.Validation.MaxValidations)
	}
	if cfg.Validation.Interval.Std() != 90*time.Minute {
		t.Errorf("expected interval 90m, got %s", cfg.Validation.Interval.Std())
	}
	if cfg.Validation.TouchlessDelay.Std() != 2*time.Second {
		t.Errorf("expected touchless delay 2s, got %s", cfg.Validation.TouchlessDelay.Std())
	}
	if cfg.Failures.Threshold != 7 {
		t.Errorf("expected threshold 7, got %d", cfg.Failures.Threshold)
	}
	if len(cfg.Barcode.Debug) != 2 || cfg.Barcode.Debug[0] != "222" {
		t.Errorf("unexpected debug barcodes %v", cfg.Barcode.Debug)
	}
	if cfg.Database.ResetInterval.Std() != 12*time.Hour {
		t.Errorf("expected reset interval 12h, got %s", cfg.Database.ResetInterval.Std())
	}
	// Untouched sections keep their defaults.
	if cfg.Failures.Lockout.Std() != 5*time.Second {
		t.Errorf("expected default lockout 5s, got %s", cfg.Failures.Lockout.Std())
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
validation:
  max_validations: 3
`)
	t.Setenv("PARKVAL_VALIDATION_MAX_VALIDATIONS", "4")
	t.Setenv("PARKVAL_VALIDATION_INTERVAL", "45m")
	t.Setenv("PARKVAL_DATABASE_PATH", "/tmp/override.db")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Validation.MaxValidations != 4 {
		t.Errorf("expected env to override file, got %d", cfg.Validation.MaxValidations)
	}
	if cfg.Validation.Interval.Std() != 45*time.Minute {
		t.Errorf("expected interval 45m, got %s", cfg.Validation.Interval.Std())
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("expected database path override, got %q", cfg.Database.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero max validations", func(c *config.Config) { c.Validation.MaxValidations = 0 }},
		{"zero failure threshold", func(c *config.Config) { c.Failures.Threshold = 0 }},
		{"length not past prefix", func(c *config.Config) { c.Barcode.Length = 7 }},
		{"empty db path", func(c *config.Config) { c.Database.Path = "" }},
		{"report day out of range", func(c *config.Config) { c.Report.Day = 31 }},
		{"report hour out of range", func(c *config.Config) { c.Report.Hour = 24 }},
		{"report without recipients", func(c *config.Config) {
			c.Report.Day = 1
			c.Report.From = "kiosk@example.org"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := config.Default().Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}
