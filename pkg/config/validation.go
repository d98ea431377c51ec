package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing the first validation failure.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that struct tags cannot express.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.HTTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if _, err := decodeFilesystemConfig(cfg.Content.Filesystem); err != nil {
		return fmt.Errorf("content.filesystem: %w", err)
	}

	for ext, contentType := range cfg.Adapters.HTTP.MIMETypes {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("adapters.http.mime_types: key %q must be an extension like \".html\"", ext)
		}
		if strings.TrimSpace(contentType) == "" {
			return fmt.Errorf("adapters.http.mime_types: empty content type for %q", ext)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Adapters.HTTP.Port {
		return fmt.Errorf("metrics: port %d already used by the HTTP adapter", cfg.Metrics.Port)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
