package http

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittohttp/internal/fault"
)

func TestMIMETable(t *testing.T) {
	table := NewMIMETable(map[string]string{
		".md":  "text/markdown",
		"WASM": "application/wasm",
		".bad": "",
		".ts":  "application/typescript",
	})

	tests := []struct {
		path string
		want string
	}{
		{"/index.html", "text/html"},
		{"/INDEX.HTML", "text/html"},
		{"/a/b.c/movie.MP4", "video/mp4"},
		{"/live/seg.m3u8", "application/vnd.apple.mpegurl"},
		{"/README", DefaultContentType},
		{"/archive.xyz", DefaultContentType},
		{"/notes.md", "text/markdown"},
		{"/mod.wasm", "application/wasm"},
		{"/x.bad", DefaultContentType},
		{"/src/app.ts", "application/typescript"},
		{"/dir.d/", DefaultContentType},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, table.Lookup(tt.path), tt.path)
	}

	// overrides do not leak into a fresh table
	assert.Equal(t, "video/mp2t", NewMIMETable(nil).Lookup("/seg.ts"))
}

func TestFullHeader(t *testing.T) {
	got := string(FullHeader("text/html", 1234))
	assert.Equal(t, "HTTP/1.1 200 OK\r\n"+
		"Content-Type: text/html\r\n"+
		"Content-Length: 1234\r\n"+
		"Accept-Ranges: bytes\r\n"+
		"Connection: close\r\n\r\n", got)
}

func TestPartialHeader(t *testing.T) {
	got := string(PartialHeader("video/mp4", ByteRange{Start: 0, End: 0, Valid: true}, 100))
	assert.True(t, strings.HasPrefix(got, "HTTP/1.1 206 Partial Content\r\n"))
	assert.Contains(t, got, "Content-Range: bytes 0-0/100\r\n")
	assert.Contains(t, got, "Content-Length: 1\r\n")
	assert.Contains(t, got, "Connection: close\r\n")
	assert.True(t, strings.HasSuffix(got, "\r\n\r\n"))
}

func TestErrorResponse(t *testing.T) {
	resp := string(ErrorResponse(StatusForbidden, `<script>"x"</script>`))

	head, body, ok := strings.Cut(resp, "\r\n\r\n")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 403 Forbidden\r\n"))
	assert.Contains(t, head, "Content-Type: text/html")
	assert.Contains(t, head, "Connection: close")
	assert.Contains(t, head, "Content-Length: "+strconv.Itoa(len(body)))
	assert.Contains(t, body, "<title>403 Forbidden</title>")
	assert.Contains(t, body, "403 Forbidden: &lt;script&gt;")
	assert.NotContains(t, body, "<script>")
}

func TestRangeNotSatisfiableResponse(t *testing.T) {
	resp := string(RangeNotSatisfiableResponse(100))
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 416 Range Not Satisfiable\r\n"))
	assert.Contains(t, resp, "Content-Range: bytes */100\r\n")
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fault.New(fault.ProtocolFraming, "", "x"), 400},
		{fault.New(fault.MalformedRequest, "", "x"), 400},
		{fault.New(fault.Forbidden, "", "x"), 403},
		{fault.New(fault.NotFound, "", "x"), 404},
		{fault.New(fault.RangeNotSatisfiable, "", "x"), 416},
		{fault.New(fault.IncompleteTransfer, "", "x"), 500},
		{errors.New("plain"), 500},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForError(tt.err), tt.err.Error())
	}
	assert.Equal(t, "Unknown Error", StatusText(599))
}
