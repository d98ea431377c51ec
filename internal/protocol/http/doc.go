// Package http implements the small subset of HTTP/1.x the file server speaks:
// request head parsing (request line and Range header), byte range resolution
// per RFC 7233, the extension to MIME type table, and the response heads the
// server writes.
//
// Nothing in this package touches a socket. Heads come in as raw bytes
// captured by the engine and go out as raw bytes handed to sockio.
package http
