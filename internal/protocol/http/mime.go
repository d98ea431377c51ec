package http

import (
	"path"
	"strings"
)

// DefaultContentType is used for unknown or missing extensions.
const DefaultContentType = "application/octet-stream"

var defaultMIMETypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".ico":  "image/x-icon",
	".svg":  "image/svg+xml",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".ogg":  "video/ogg",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".mkv":  "video/x-matroska",
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
}

// MIMETable maps lowercase extensions, dot included, to content types.
// It is immutable once built and safe for concurrent use.
type MIMETable struct {
	types map[string]string
}

// NewMIMETable returns the built-in table extended by overrides. Override
// keys are normalized to lowercase with a leading dot; empty entries are
// ignored.
func NewMIMETable(overrides map[string]string) *MIMETable {
	types := make(map[string]string, len(defaultMIMETypes)+len(overrides))
	for ext, ct := range defaultMIMETypes {
		types[ext] = ct
	}
	for ext, ct := range overrides {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ct == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		types[ext] = ct
	}
	return &MIMETable{types: types}
}

// Lookup returns the content type for the extension of p.
func (t *MIMETable) Lookup(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return DefaultContentType
	}
	if ct, ok := t.types[ext]; ok {
		return ct
	}
	return DefaultContentType
}
