package http

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/marmos91/dittohttp/internal/fault"
)

// Status codes the server emits.
const (
	StatusOK                  = 200
	StatusPartialContent      = 206
	StatusBadRequest          = 400
	StatusForbidden           = 403
	StatusNotFound            = 404
	StatusRangeNotSatisfiable = 416
	StatusInternalServerError = 500
)

var statusText = map[int]string{
	StatusOK:                  "OK",
	StatusPartialContent:      "Partial Content",
	StatusBadRequest:          "Bad Request",
	StatusForbidden:           "Forbidden",
	StatusNotFound:            "Not Found",
	StatusRangeNotSatisfiable: "Range Not Satisfiable",
	StatusInternalServerError: "Internal Server Error",
}

// StatusText returns the reason phrase for code, or "Unknown Error".
func StatusText(code int) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return "Unknown Error"
}

// StatusForError maps a failure to the status code of its error response.
func StatusForError(err error) int {
	switch fault.KindOf(err) {
	case fault.ProtocolFraming, fault.MalformedRequest:
		return StatusBadRequest
	case fault.Forbidden:
		return StatusForbidden
	case fault.NotFound:
		return StatusNotFound
	case fault.RangeNotSatisfiable:
		return StatusRangeNotSatisfiable
	default:
		return StatusInternalServerError
	}
}

// FullHeader is the head of a 200 response carrying the whole file.
func FullHeader(contentType string, size int64) []byte {
	var b strings.Builder
	statusLine(&b, StatusOK)
	header(&b, "Content-Type", contentType)
	header(&b, "Content-Length", strconv.FormatInt(size, 10))
	header(&b, "Accept-Ranges", "bytes")
	header(&b, "Connection", "close")
	b.WriteString("\r\n")
	return []byte(b.String())
}

// PartialHeader is the head of a 206 response carrying r out of a resource
// of the given size. Content-Length always equals r.Length().
func PartialHeader(contentType string, r ByteRange, size int64) []byte {
	var b strings.Builder
	statusLine(&b, StatusPartialContent)
	header(&b, "Content-Type", contentType)
	header(&b, "Content-Range", fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size))
	header(&b, "Content-Length", strconv.FormatInt(r.Length(), 10))
	header(&b, "Accept-Ranges", "bytes")
	header(&b, "Connection", "close")
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ErrorResponse is a complete response, head and HTML body, for an error
// status. detail is escaped before it is echoed into the page.
func ErrorResponse(code int, detail string) []byte {
	return errorResponse(code, detail, nil)
}

// RangeNotSatisfiableResponse is the 416 response for a resource of the
// given size (RFC 7233 Section 4.4).
func RangeNotSatisfiableResponse(size int64) []byte {
	return errorResponse(StatusRangeNotSatisfiable, "no satisfiable range",
		[][2]string{{"Content-Range", fmt.Sprintf("bytes */%d", size)}})
}

func errorResponse(code int, detail string, extra [][2]string) []byte {
	title := strconv.Itoa(code) + " " + StatusText(code)
	heading := title
	if detail != "" {
		heading += ": " + html.EscapeString(detail)
	}
	body := "<html><head><title>" + title + "</title></head><body><h1>" + heading + "</h1></body></html>"

	var b strings.Builder
	statusLine(&b, code)
	header(&b, "Content-Type", "text/html")
	header(&b, "Content-Length", strconv.Itoa(len(body)))
	for _, h := range extra {
		header(&b, h[0], h[1])
	}
	header(&b, "Connection", "close")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func statusLine(b *strings.Builder, code int) {
	fmt.Fprintf(b, "HTTP/1.1 %d %s\r\n", code, StatusText(code))
}

func header(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}
