package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// configHeader opens every generated configuration file.
const configHeader = `# dittohttp Configuration File
#
# Values can be overridden with DITTOHTTP_* environment variables, e.g.
# DITTOHTTP_ADAPTERS_HTTP_PORT=9000 or DITTOHTTP_LOGGING_LEVEL=DEBUG.
`

// sectionComments are attached to top-level keys of the generated file.
var sectionComments = map[string]string{
	"logging":  "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, file path)",
	"server":   "Process-wide settings",
	"metrics":  "Prometheus endpoint serving /metrics and /healthz",
	"content":  "Where served files come from. filesystem.path is the web root.",
	"adapters": "Protocol adapters",
}

// httpComments are attached to keys of the adapters.http section.
var httpComments = map[string]string{
	"address":              "IP literal to bind (IPv4 or IPv6)",
	"workers":              "Worker goroutines serving queued requests",
	"max_header_size":      "Largest accepted request head in bytes",
	"max_events":           "Events handled per event loop step",
	"wait_timeout":         "Upper bound of a single event wait",
	"accept_batch":         "Connections accepted per readiness notification",
	"max_connections":      "Open connection limit (0 = unlimited)",
	"idle_timeout":         "Close connections that send no complete request head (0 = never)",
	"accept_rate":          "New connections per second (0 = unlimited)",
	"metrics_log_interval": "Period of the load log line (negative = off)",
	"socket_retry":         "Retries for reading the request head",
	"transfer_retry":       "Retries for writing the response",
	"mime_types":           "Extension to content type overrides",
}

// InitConfig writes a sample configuration file to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: The file exists (without force) or could not be written
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()
	if err := InitConfigToPath(configPath, force); err != nil {
		return "", err
	}
	return configPath, nil
}

// InitConfigToPath writes a sample configuration file to configPath,
// creating parent directories as needed.
func InitConfigToPath(configPath string, force bool) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with explanatory comments.
func generateYAMLWithComments(cfg *Config) (string, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("failed to parse generated config: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return "", fmt.Errorf("unexpected YAML document structure")
	}

	root := doc.Content[0]
	annotate(root, sectionComments)
	if adapters := lookup(root, "adapters"); adapters != nil {
		if http := lookup(adapters, "http"); http != nil {
			annotate(http, httpComments)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	return buf.String(), nil
}

// annotate sets head comments on the keys of a mapping node.
func annotate(mapping *yaml.Node, comments map[string]string) {
	if mapping.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		if comment, ok := comments[key.Value]; ok {
			key.HeadComment = comment
		}
	}
}

// lookup returns the value node of key in a mapping node.
func lookup(mapping *yaml.Node, key string) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
