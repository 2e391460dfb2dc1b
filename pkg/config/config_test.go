package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate, got: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "empty server address",
			mutate: func(c *Config) { c.Server.Address = "" },
		},
		{
			name:   "empty signal address",
			mutate: func(c *Config) { c.Signal.Address = "" },
		},
		{
			name:   "zero ping interval",
			mutate: func(c *Config) { c.Signal.PingInterval = 0 },
		},
		{
			name: "pong timeout not above ping interval",
			mutate: func(c *Config) {
				c.Signal.PingInterval = 30 * time.Second
				c.Signal.PongTimeout = 30 * time.Second
			},
		},
		{
			name:   "zero send buffer",
			mutate: func(c *Config) { c.Signal.SendBuffer = 0 },
		},
		{
			name:   "zero gate check interval",
			mutate: func(c *Config) { c.Session.GateCheckInterval = 0 },
		},
		{
			name:   "zero status check interval",
			mutate: func(c *Config) { c.Session.StatusCheckInterval = 0 },
		},
		{
			name:   "zero code debounce",
			mutate: func(c *Config) { c.Session.CodeDebounce = 0 },
		},
		{
			name:   "empty log level",
			mutate: func(c *Config) { c.Logging.Level = "" },
		},
		{
			name: "file logging without path",
			mutate: func(c *Config) {
				c.Logging.File.Enabled = true
				c.Logging.File.Path = ""
			},
		},
		{
			name: "redis enabled without address",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Address = ""
			},
		},
		{
			name: "rate limiting enabled with zero http rps",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.HTTP.RequestsPerSecond = 0
			},
		},
		{
			name: "tracing enabled without jaeger url",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.JaegerURL = ""
			},
		},
		{
			name: "sample rate out of range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("missing file must fall back to defaults, got: %v", err)
	}
	if cfg.Signal.Address != ":8081" {
		t.Fatalf("unexpected default signal address: %s", cfg.Signal.Address)
	}
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("PAIRVIEW_SIGNAL_ADDRESS", ":9999")
	os.Setenv("PAIRVIEW_LOG_LEVEL", "debug")
	defer os.Unsetenv("PAIRVIEW_SIGNAL_ADDRESS")
	defer os.Unsetenv("PAIRVIEW_LOG_LEVEL")

	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Signal.Address != ":9999" {
		t.Fatalf("env override not applied, got: %s", cfg.Signal.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("env override not applied, got: %s", cfg.Logging.Level)
	}
}
