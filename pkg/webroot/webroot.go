// Package webroot maps request targets onto files below a fixed local
// directory and guarantees that no target resolves outside of it.
package webroot

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/marmos91/dittohttp/internal/fault"
)

// Root is a canonical web root directory.
//
// The directory path is absolute and symlink-free, fixed at construction and
// never modified afterwards.
//
// Thread Safety:
// Root is immutable and safe for concurrent use by any number of workers.
type Root struct {
	dir string
}

// File is a resolved, readable regular file below the root.
type File struct {
	// Name is the requested path inside the root before symlinks are
	// resolved. Content types are derived from it.
	Name string

	// Path is the absolute, symlink-resolved path of the file
	Path string

	// Size is the file length in bytes at resolve time
	Size int64
}

// New canonicalizes dir and returns a Root for it.
//
// Parameters:
//   - dir: Web root directory, absolute or relative to the working directory
//
// Returns:
//   - *Root: The sandbox
//   - error: If dir does not exist or is not a directory
func New(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve web root %q: %w", dir, err)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve web root %q: %w", dir, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat web root %q: %w", canonical, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("web root %q is not a directory", canonical)
	}

	return &Root{dir: canonical}, nil
}

// Dir returns the canonical root directory.
func (r *Root) Dir() string {
	return r.dir
}

// ValidatePath maps a request target onto an absolute path inside the root.
//
// The target is percent-decoded and backslashes are treated as separators
// before "." and ".." are resolved, so encoded or Windows-style traversal
// sequences are caught by the same prefix check as plain ones. The check is
// repeated after symlinks are resolved, which stops links that point out of
// the root.
//
// Returns:
//   - string: Absolute path of a readable entry inside the root
//   - error: Forbidden if the target escapes the root, NotFound if it is
//     missing or unreadable
func (r *Root) ValidatePath(target string) (string, error) {
	_, resolved, err := r.validate(target)
	return resolved, err
}

// validate returns the lexically cleaned candidate and its resolved path.
func (r *Root) validate(target string) (string, string, error) {
	// ========================================================================
	// Step 1: Decode and normalize separators
	// ========================================================================

	decoded, err := url.PathUnescape(target)
	if err != nil {
		return "", "", fault.Wrap(fault.Forbidden, "validate", err, "undecodable target %q", target)
	}
	if strings.IndexByte(decoded, 0) >= 0 {
		return "", "", fault.New(fault.Forbidden, "validate", "NUL byte in target %q", target)
	}
	decoded = strings.ReplaceAll(decoded, `\`, "/")

	// ========================================================================
	// Step 2: Lexical sandbox check
	// ========================================================================

	candidate := filepath.Clean(r.dir + "/" + decoded)
	if !r.contains(candidate) {
		return "", "", fault.New(fault.Forbidden, "validate", "%q escapes the web root", target)
	}

	// ========================================================================
	// Step 3: Resolve symlinks and check again
	// ========================================================================

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", "", fault.Wrap(fault.NotFound, "validate", err, "%q", target)
	}
	if !r.contains(resolved) {
		return "", "", fault.New(fault.Forbidden, "validate", "%q links outside the web root", target)
	}

	// ========================================================================
	// Step 4: Readability
	// ========================================================================

	if err := unix.Access(resolved, unix.R_OK); err != nil {
		return "", "", fault.Wrap(fault.NotFound, "validate", err, "%q is not readable", target)
	}

	return candidate, resolved, nil
}

// Resolve validates target and stats it. Directories are reported as
// NotFound; the server never lists them.
func (r *Root) Resolve(target string) (*File, error) {
	name, path, err := r.validate(target)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fault.Wrap(fault.NotFound, "stat", err, "%q", target)
	}
	if !info.Mode().IsRegular() {
		return nil, fault.New(fault.NotFound, "stat", "%q is not a regular file", target)
	}

	return &File{Name: name, Path: path, Size: info.Size()}, nil
}

// contains reports whether p is strictly below the root.
func (r *Root) contains(p string) bool {
	prefix := r.dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix) && len(p) > len(prefix)
}
