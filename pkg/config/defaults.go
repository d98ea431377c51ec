package config

import (
	"strings"
	"time"

	httpadapter "github.com/marmos91/dittohttp/pkg/adapter/http"
	"github.com/marmos91/dittohttp/internal/sockio"
)

// DefaultWebRoot is served when content.filesystem.path is not set.
const DefaultWebRoot = "./html"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Engine and retry parameters get the same defaults the adapter would
//     apply, so a generated config file shows them
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
	applyContentDefaults(&cfg.Content)
	applyAdaptersDefaults(&cfg.Adapters, &cfg.Server)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = DefaultWebRoot
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig, server *ServerConfig) {
	// Enable the HTTP adapter when it looks unconfigured (no port given), so
	// a config-less start serves something. An explicit enabled: false with
	// a port stays disabled.
	if !cfg.HTTP.Enabled && cfg.HTTP.Port == 0 {
		cfg.HTTP.Enabled = true
	}

	applyHTTPDefaults(&cfg.HTTP, server)
}

// applyHTTPDefaults sets HTTP adapter defaults.
func applyHTTPDefaults(cfg *httpadapter.HTTPConfig, server *ServerConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	if cfg.MaxHeaderSize == 0 {
		cfg.MaxHeaderSize = 65536
	}
	if cfg.Backlog == 0 {
		cfg.Backlog = 128
	}
	if cfg.MaxEvents == 0 {
		cfg.MaxEvents = 64
	}
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = 2 * time.Second
	}
	if cfg.AcceptBatch == 0 {
		cfg.AcceptBatch = 64
	}

	// MaxConnections, AcceptRate and AcceptBurst default to 0 (unlimited)

	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = server.ShutdownTimeout
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
	if cfg.SocketRetry == (sockio.RetryPolicy{}) {
		cfg.SocketRetry = sockio.DefaultSocketPolicy
	}
	if cfg.TransferRetry == (sockio.RetryPolicy{}) {
		cfg.TransferRetry = sockio.DefaultTransferPolicy
	}
	if cfg.MIMETypes == nil {
		cfg.MIMETypes = make(map[string]string)
	}
}

// GetDefaultConfig returns a Config with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Content: ContentConfig{
			Filesystem: make(map[string]any),
		},
		Adapters: AdaptersConfig{
			HTTP: httpadapter.HTTPConfig{
				Enabled: true,
				MIMETypes: map[string]string{
					".md": "text/markdown",
				},
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
