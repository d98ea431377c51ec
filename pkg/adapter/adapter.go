package adapter

import (
	"context"
)

// Adapter is a protocol front end that the server orchestrator manages.
//
// Each adapter owns its listening socket and its goroutines; the orchestrator
// only drives the lifecycle. Adapters are fully constructed (socket bound,
// resources opened) before they are handed to the orchestrator, so a
// configuration or bind error surfaces at construction, not inside Serve.
//
// Lifecycle:
//  1. Creation: Adapter is built from its configuration and binds its port
//  2. Startup: Serve() runs the event loop and blocks until shutdown
//  3. Shutdown: Stop() drains in-flight work within the context deadline
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve runs the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must shut down gracefully:
	//   - Stop accepting new connections
	//   - Let queued requests finish (bounded by the shutdown timeout)
	//   - Release the listening socket
	//
	// If Serve returns before context cancellation, the orchestrator treats it
	// as fatal and stops every other adapter.
	//
	// Returns:
	//   - nil or context.Canceled on graceful shutdown
	//   - error if the event loop failed
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown.
	//
	// Implementations must:
	//   - Be safe to call multiple times (idempotent)
	//   - Be safe to call concurrently with Serve()
	//   - Respect the context deadline and force cleanup when it passes
	//
	// Returns:
	//   - nil if shutdown completed within the deadline
	//   - error if the deadline passed with work still running
	Stop(ctx context.Context) error

	// Protocol returns the protocol name for logging and metrics, e.g. "HTTP".
	Protocol() string

	// Port returns the bound TCP port. Valid right after construction, even
	// when an ephemeral port was requested.
	Port() int
}
