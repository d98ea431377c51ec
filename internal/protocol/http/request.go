package http

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/marmos91/dittohttp/internal/fault"
)

// HeadDelimiter terminates every request head.
var HeadDelimiter = []byte("\r\n\r\n")

// DefaultDocument is served for directory-style targets.
const DefaultDocument = "index.html"

// requestLine matches the first line of a head: GET, one target token and
// HTTP/1.0 or HTTP/1.1. The optional CR tolerates bare LF line endings.
var requestLine = regexp.MustCompile(`^GET[ \t]+(\S*)[ \t]+HTTP/1\.[01]\r?$`)

// Request is one parsed request head.
type Request struct {
	// Path is the requested target, never empty. Query string and fragment
	// are stripped and directory targets end in DefaultDocument. It is not
	// yet validated against the web root.
	Path string

	// IsRange is set when the head carries a Range header.
	IsRange bool

	// RangeHeader is the raw Range value, resolved only once the target
	// size is known.
	RangeHeader string
}

// ParseRequest builds a Request from a complete request head.
//
// Returns MalformedRequest if the request line is missing or is not a
// GET over HTTP/1.0 or HTTP/1.1.
func ParseRequest(head []byte) (*Request, error) {
	path, err := ExtractPath(head)
	if err != nil {
		return nil, err
	}

	raw, ok := ExtractRangeHeader(head)
	return &Request{Path: path, IsRange: ok, RangeHeader: raw}, nil
}

// ExtractPath returns the normalized target of the request line.
//
// Normalization:
//   - query string and fragment are dropped
//   - an empty target becomes "/"
//   - a target ending in "/" gets DefaultDocument appended, so "/" becomes
//     "/index.html"
func ExtractPath(head []byte) (string, error) {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}

	m := requestLine.FindSubmatch(line)
	if m == nil {
		return "", fault.New(fault.MalformedRequest, "parse", "invalid request line %q", truncate(line, 64))
	}

	target := string(m[1])
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		target = "/"
	}
	if strings.HasSuffix(target, "/") {
		target += DefaultDocument
	}
	return target, nil
}

// ExtractRangeHeader scans the header lines for a Range header, matching the
// name case-insensitively. The value is returned trimmed; the boolean
// reports whether the header was present at all.
func ExtractRangeHeader(head []byte) (string, bool) {
	lines := strings.Split(string(head), "\n")
	// line 0 is the request line
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "range") {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
