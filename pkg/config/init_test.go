package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	if configPath != GetDefaultConfigPath() {
		t.Errorf("Expected config at %s, got %s", GetDefaultConfigPath(), configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# dittohttp Configuration File",
		"logging:",
		"server:",
		"metrics:",
		"content:",
		"adapters:",
		"http:",
	}

	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfig_ForceOverwrite(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	if err := os.WriteFile(configPath, []byte("# Modified"), 0644); err != nil {
		t.Fatalf("Failed to modify config: %v", err)
	}

	newPath, err := InitConfig(true)
	if err != nil {
		t.Fatalf("Force InitConfig failed: %v", err)
	}
	if newPath != configPath {
		t.Errorf("Expected same path, got different: %s vs %s", configPath, newPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if !strings.Contains(string(content), "# dittohttp Configuration File") {
		t.Error("Config file was not properly overwritten")
	}
}

func TestInitConfigToPath_CreatesDirectories(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom", "nested", "dittohttp.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("Config file was not created at %s: %v", configPath, err)
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to create existing file: %v", err)
	}

	err := InitConfigToPath(configPath, false)
	if err == nil {
		t.Fatal("Expected error when file already exists")
	}

	content, _ := os.ReadFile(configPath)
	if string(content) != "existing" {
		t.Error("Existing file was modified without force")
	}
}

func TestGenerateYAMLWithComments(t *testing.T) {
	out, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		t.Fatalf("generateYAMLWithComments failed: %v", err)
	}

	expected := []string{
		"# Logging: level",
		"# Protocol adapters",
		"# Worker goroutines serving queued requests",
		"level: INFO",
		"port: 8080",
		"wait_timeout: 2s",
		"path: ./html",
		".md: text/markdown",
		"max_retries: 1000",
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Errorf("Generated YAML missing %q", want)
		}
	}

	// The web root is carried by the content section only
	if strings.Contains(out, "root:") {
		t.Error("Generated YAML should not contain the adapter's internal root field")
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("Failed to generate config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}

	defaults := GetDefaultConfig()
	if cfg.Logging.Level != defaults.Logging.Level {
		t.Errorf("Expected log level %q, got %q", defaults.Logging.Level, cfg.Logging.Level)
	}
	if cfg.Adapters.HTTP.Port != defaults.Adapters.HTTP.Port {
		t.Errorf("Expected port %d, got %d", defaults.Adapters.HTTP.Port, cfg.Adapters.HTTP.Port)
	}
	if cfg.Adapters.HTTP.TransferRetry != defaults.Adapters.HTTP.TransferRetry {
		t.Errorf("Expected transfer retry %+v, got %+v",
			defaults.Adapters.HTTP.TransferRetry, cfg.Adapters.HTTP.TransferRetry)
	}
	if cfg.Adapters.HTTP.MIMETypes[".md"] != "text/markdown" {
		t.Errorf("Expected .md mapping to survive a round trip, got %v", cfg.Adapters.HTTP.MIMETypes)
	}
	if cfg.Content.Filesystem["path"] != DefaultWebRoot {
		t.Errorf("Expected web root %q, got %v", DefaultWebRoot, cfg.Content.Filesystem["path"])
	}
}
