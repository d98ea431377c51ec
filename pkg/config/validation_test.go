package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Fatalf("Valid config failed validation: %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "VERBOSE" },
			wantErr: "Level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "Format",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "ShutdownTimeout",
		},
		{
			name:    "invalid content type",
			mutate:  func(c *Config) { c.Content.Type = "s3" },
			wantErr: "Type",
		},
		{
			name:    "missing web root",
			mutate:  func(c *Config) { c.Content.Filesystem = map[string]any{} },
			wantErr: "path is required",
		},
		{
			name:    "web root of wrong type",
			mutate:  func(c *Config) { c.Content.Filesystem = map[string]any{"path": []int{1}} },
			wantErr: "content.filesystem",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Adapters.HTTP.Port = 70000 },
			wantErr: "Port",
		},
		{
			name:    "negative port",
			mutate:  func(c *Config) { c.Adapters.HTTP.Port = -1 },
			wantErr: "Port",
		},
		{
			name:    "bind address is not an IP",
			mutate:  func(c *Config) { c.Adapters.HTTP.Address = "localhost" },
			wantErr: "Address",
		},
		{
			name:    "negative max connections",
			mutate:  func(c *Config) { c.Adapters.HTTP.MaxConnections = -5 },
			wantErr: "MaxConnections",
		},
		{
			name:    "negative idle timeout",
			mutate:  func(c *Config) { c.Adapters.HTTP.IdleTimeout = -1 },
			wantErr: "IdleTimeout",
		},
		{
			name:    "negative retry count",
			mutate:  func(c *Config) { c.Adapters.HTTP.TransferRetry.MaxRetries = -1 },
			wantErr: "MaxRetries",
		},
		{
			name:    "no adapters enabled",
			mutate:  func(c *Config) { c.Adapters.HTTP.Enabled = false },
			wantErr: "at least one adapter",
		},
		{
			name:    "MIME key without dot",
			mutate:  func(c *Config) { c.Adapters.HTTP.MIMETypes["md"] = "text/markdown" },
			wantErr: "mime_types",
		},
		{
			name:    "MIME key is only a dot",
			mutate:  func(c *Config) { c.Adapters.HTTP.MIMETypes["."] = "text/plain" },
			wantErr: "mime_types",
		},
		{
			name:    "empty MIME value",
			mutate:  func(c *Config) { c.Adapters.HTTP.MIMETypes[".txt"] = " " },
			wantErr: "empty content type",
		},
		{
			name: "metrics port clashes with HTTP port",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = c.Adapters.HTTP.Port
			},
			wantErr: "already used",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_LogLevelCaseInsensitive(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "ERROR"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Level %q should be valid, got: %v", level, err)
		}
	}
}

func TestValidate_MetricsOnDifferentPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Address = "127.0.0.1"

	if err := Validate(cfg); err != nil {
		t.Fatalf("Metrics on port %d should be valid: %v", cfg.Metrics.Port, err)
	}
}

func TestValidate_IPv6Address(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.Address = "::"

	if err := Validate(cfg); err != nil {
		t.Fatalf("IPv6 bind address should be valid: %v", err)
	}
}
