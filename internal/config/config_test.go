package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsFromMinimalFile(t *testing.T) {
	path := writeConfig(t, "app:\n  environment: test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Environment != "test" {
		t.Errorf("App.Environment = %q, want test", cfg.App.Environment)
	}
	if cfg.Filter.ProcessNoise != 1e-5 {
		t.Errorf("Filter.ProcessNoise = %g, want 1e-5", cfg.Filter.ProcessNoise)
	}
	if cfg.Filter.ObservationNoise != 0.001 {
		t.Errorf("Filter.ObservationNoise = %g, want 0.001", cfg.Filter.ObservationNoise)
	}
	if cfg.Signal.EntryThreshold != 2.0 || cfg.Signal.ExitThreshold != 0.5 {
		t.Errorf("signal thresholds = %g/%g, want 2/0.5", cfg.Signal.EntryThreshold, cfg.Signal.ExitThreshold)
	}
	if cfg.Signal.ZScoreMode != ZScorePredictive {
		t.Errorf("ZScoreMode = %q, want predictive", cfg.Signal.ZScoreMode)
	}
	if cfg.Account.InitialEquity != 100000 {
		t.Errorf("InitialEquity = %g, want 100000", cfg.Account.InitialEquity)
	}
	if cfg.Account.Leverage != 10 {
		t.Errorf("Leverage = %g, want 10", cfg.Account.Leverage)
	}
	if cfg.Data.Retry.MinDelay != 500*time.Millisecond {
		t.Errorf("Retry.MinDelay = %v, want 500ms", cfg.Data.Retry.MinDelay)
	}
	if cfg.Database.ConnMaxLifetime != time.Hour {
		t.Errorf("ConnMaxLifetime = %v, want 1h", cfg.Database.ConnMaxLifetime)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoad_InvalidValuesRejectedBeforeUse(t *testing.T) {
	// 负观测噪声必须在第一次滤波前就被拒绝。
	path := writeConfig(t, `
app:
  environment: test
filter:
  observation_noise: -0.5
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestLoad_EntryNotAboveExitRejected(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: test
signal:
  entry_threshold: 0.5
  exit_threshold: 2.0
`)

	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for entry<=exit, got %v", err)
	}
}

func TestFilterConfigValidate(t *testing.T) {
	valid := FilterConfig{
		PriorVariance:    1.0,
		ProcessNoise:     1e-5,
		ObservationNoise: 0.001,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*FilterConfig)
	}{
		{"zero prior variance", func(c *FilterConfig) { c.PriorVariance = 0 }},
		{"process noise at one", func(c *FilterConfig) { c.ProcessNoise = 1 }},
		{"negative observation noise", func(c *FilterConfig) { c.ObservationNoise = -1 }},
		{"adaptive window of one", func(c *FilterConfig) { c.AdaptiveWindow = 1 }},
		{"negative reset window", func(c *FilterConfig) { c.ResetWindow = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestSignalConfigValidate_RollingWindow(t *testing.T) {
	cfg := SignalConfig{
		EntryThreshold: 2.0,
		ExitThreshold:  0.5,
		ZScoreMode:     ZScoreRolling,
		RollingWindow:  1,
	}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for rolling window below 2, got %v", err)
	}

	cfg.RollingWindow = 40
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid rolling config rejected: %v", err)
	}
}

func TestAccountConfigValidate(t *testing.T) {
	cfg := AccountConfig{
		InitialEquity: 100000,
		SizingMode:    SizingNotional,
		TradeNotional: 1000,
		Leverage:      10,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid account config rejected: %v", err)
	}

	cfg.SizingMode = SizingRiskFraction
	cfg.RiskFraction = 1.5
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for risk fraction above 1, got %v", err)
	}

	cfg.RiskFraction = 0.1
	cfg.EnableMarginCheck = true
	cfg.MaintenanceMarginRatio = 0
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for zero maintenance margin ratio, got %v", err)
	}
}

func TestSweepConfigValidate(t *testing.T) {
	cfg := SweepConfig{
		EntryThresholds: []float64{1.5, 2.0},
		ExitThresholds:  []float64{0.5},
	}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for mismatched lengths, got %v", err)
	}

	cfg.ExitThresholds = []float64{0.5, 2.5}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for entry<=exit pair, got %v", err)
	}

	cfg.ExitThresholds = []float64{0.5, 0.75}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid sweep config rejected: %v", err)
	}
}
