package metrics

import "time"

// EngineMetrics observes the connection lifecycle inside the epoll engine.
//
// The engine calls these from the dispatcher goroutine and, for closes, from
// worker goroutines; implementations must be safe for concurrent use.
type EngineMetrics interface {
	// RecordConnectionAccepted counts a connection admitted into the table.
	RecordConnectionAccepted()

	// RecordConnectionClosed counts a connection leaving the table.
	//
	// Parameters:
	//   - reason: "peer" (hangup or error flags), "idle", "handler", "error"
	//     or "shutdown"
	RecordConnectionClosed(reason string)

	// RecordConnectionRejected counts a connection closed right after accept.
	//
	// Parameters:
	//   - reason: "max_connections" or "rate_limit"
	RecordConnectionRejected(reason string)

	// SetActiveConnections updates the live connection gauge.
	SetActiveConnections(count int)
}

// HTTPMetrics provides observability for the HTTP file server.
//
// This interface is optional - if not provided to the HTTP adapter, a no-op
// implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewHTTPMetrics()
//	adapter, err := http.New(config, m)
//
//	// Without metrics (no-op)
//	adapter, err := http.New(config, nil)
type HTTPMetrics interface {
	EngineMetrics

	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - status: HTTP status code sent (0 if nothing could be sent)
	//   - duration: Time from enqueue to connection close
	RecordRequest(status int, duration time.Duration)

	// RecordRequestStart increments the in-flight request gauge.
	RecordRequestStart()

	// RecordRequestEnd decrements the in-flight request gauge.
	RecordRequestEnd()

	// RecordBytesSent records bytes written to a client.
	//
	// Parameters:
	//   - kind: "header", "body" or "error" (a complete error page)
	//   - bytes: Number of bytes sent
	RecordBytesSent(kind string, bytes int64)

	// SetQueueDepth updates the pending work item gauge.
	SetQueueDepth(depth int)
}

// NewNoopHTTPMetrics returns an HTTPMetrics that discards everything.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

// noopHTTPMetrics is a no-op implementation of HTTPMetrics with zero overhead.
type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordConnectionAccepted()                        {}
func (noopHTTPMetrics) RecordConnectionClosed(reason string)             {}
func (noopHTTPMetrics) RecordConnectionRejected(reason string)           {}
func (noopHTTPMetrics) SetActiveConnections(count int)                   {}
func (noopHTTPMetrics) RecordRequest(status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordRequestStart()                              {}
func (noopHTTPMetrics) RecordRequestEnd()                                {}
func (noopHTTPMetrics) RecordBytesSent(kind string, bytes int64)         {}
func (noopHTTPMetrics) SetQueueDepth(depth int)                          {}
