package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8084 {
		t.Errorf("Expected port 8084, got %d", cfg.Server.Port)
	}
	if cfg.Data.CSVFile != "" {
		t.Errorf("Expected no startup CSV, got %q", cfg.Data.CSVFile)
	}
	if cfg.Upload.MaxBytes != 32<<20 {
		t.Errorf("Expected 32MiB upload limit, got %d", cfg.Upload.MaxBytes)
	}
	if cfg.Session.MaxSessions != 32 {
		t.Errorf("Expected 32 sessions, got %d", cfg.Session.MaxSessions)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Dir != ".cache" {
		t.Errorf("Expected cache enabled in .cache, got %+v", cfg.Cache)
	}
	if cfg.Analytics.Clusters != 5 || cfg.Analytics.Seed != 42 || cfg.Analytics.ChurnThresholdDays != 90 {
		t.Errorf("unexpected analytics defaults: %+v", cfg.Analytics)
	}
	if !cfg.Analytics.ReferenceDate.IsZero() {
		t.Errorf("Expected zero reference date, got %v", cfg.Analytics.ReferenceDate)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATA_CSV_FILE", "shopping.csv")
	t.Setenv("ANALYTICS_CLUSTERS", "3")
	t.Setenv("ANALYTICS_BASKET_MIN_SUPPORT", "0.2")
	t.Setenv("ANALYTICS_REFERENCE_DATE", "2024-01-01")
	t.Setenv("SECURITY_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Address() != "localhost:9090" {
		t.Errorf("Expected localhost:9090, got %s", cfg.Address())
	}
	if cfg.Data.CSVFile != "shopping.csv" {
		t.Errorf("Expected shopping.csv, got %q", cfg.Data.CSVFile)
	}
	if cfg.Analytics.Clusters != 3 {
		t.Errorf("Expected 3 clusters, got %d", cfg.Analytics.Clusters)
	}
	if cfg.Analytics.BasketMinSupport != 0.2 {
		t.Errorf("Expected support 0.2, got %g", cfg.Analytics.BasketMinSupport)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !cfg.Analytics.ReferenceDate.Equal(want) {
		t.Errorf("Expected %v, got %v", want, cfg.Analytics.ReferenceDate)
	}
	if got := cfg.Security.AllowedOrigins; len(got) != 2 || got[1] != "http://b.test" {
		t.Errorf("Expected trimmed origins, got %q", got)
	}
}

func TestLoad_ZeroSeedAndChurnThreshold(t *testing.T) {
	t.Setenv("ANALYTICS_SEED", "0")
	t.Setenv("ANALYTICS_CHURN_DAYS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Analytics.Seed != 0 || cfg.Analytics.ChurnThresholdDays != 0 {
		t.Errorf("Expected seed 0 and threshold 0, got %d and %d", cfg.Analytics.Seed, cfg.Analytics.ChurnThresholdDays)
	}
}

func TestGetEnvUint64(t *testing.T) {
	t.Setenv("TEST_SEED", "-1")
	if got := getEnvUint64("TEST_SEED", 42); got != 42 {
		t.Errorf("Expected fallback 42 for a negative seed, got %d", got)
	}
	t.Setenv("TEST_SEED", "18446744073709551615")
	if got := getEnvUint64("TEST_SEED", 42); got != 18446744073709551615 {
		t.Errorf("Expected max uint64, got %d", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port", "SERVER_PORT", "70000"},
		{"upload size", "UPLOAD_MAX_BYTES", "0"},
		{"sessions", "SESSION_MAX", "-1"},
		{"clusters", "ANALYTICS_CLUSTERS", "0"},
		{"support", "ANALYTICS_BASKET_MIN_SUPPORT", "1.5"},
		{"confidence", "ANALYTICS_BASKET_MIN_CONFIDENCE", "-0.1"},
		{"log level", "LOG_LEVEL", "verbose"},
		{"log format", "LOG_FORMAT", "xml"},
		{"rate limit", "SECURITY_RATE_LIMIT_RPS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "not-a-number")
	if got := getEnvFloat("TEST_FLOAT", 1.5); got != 1.5 {
		t.Errorf("Expected fallback 1.5, got %g", got)
	}
	t.Setenv("TEST_FLOAT", "2.25")
	if got := getEnvFloat("TEST_FLOAT", 1.5); got != 2.25 {
		t.Errorf("Expected 2.25, got %g", got)
	}
}
