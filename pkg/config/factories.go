package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittohttp/pkg/webroot"
)

// FilesystemContentConfig is the content.filesystem section.
type FilesystemContentConfig struct {
	// Path is the web root directory
	Path string `mapstructure:"path"`
}

// decodeFilesystemConfig decodes and checks the filesystem options map.
func decodeFilesystemConfig(options map[string]any) (*FilesystemContentConfig, error) {
	var fsCfg FilesystemContentConfig
	if err := mapstructure.Decode(options, &fsCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem content config: %w", err)
	}
	if fsCfg.Path == "" {
		return nil, fmt.Errorf("filesystem content: path is required")
	}
	return &fsCfg, nil
}

// CreateWebRoot opens the web root described by the content section.
//
// This factory uses the Type field to pick the content source, then decodes
// the type-specific map.
//
// Supported types:
//   - "filesystem": a local directory; bodies are sent with sendfile(2),
//     which needs a local descriptor
//
// Returns:
//   - *webroot.Root: The canonical web root
//   - error: Configuration error or a missing directory
func CreateWebRoot(cfg *ContentConfig) (*webroot.Root, error) {
	switch cfg.Type {
	case "filesystem":
		fsCfg, err := decodeFilesystemConfig(cfg.Filesystem)
		if err != nil {
			return nil, err
		}
		root, err := webroot.New(fsCfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open web root: %w", err)
		}
		return root, nil
	default:
		return nil, fmt.Errorf("unknown content type: %q", cfg.Type)
	}
}
