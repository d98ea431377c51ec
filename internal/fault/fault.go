// Package fault defines the error taxonomy shared by the engine, the I/O
// primitives and the HTTP layer.
//
// Every failure that crosses a package boundary is a *Error carrying a Kind.
// Callers branch on the Kind (KindOf / Is) instead of matching strings or
// sentinel values, which keeps fatal construction-time failures distinct from
// recoverable per-connection and per-request failures.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	// Internal is any failure that does not fit another category.
	Internal Kind = iota

	// SocketSetupFault is a bind/listen/epoll registration failure during
	// engine construction. Fatal: the server does not start.
	SocketSetupFault

	// ConnectionFault is a per-connection I/O failure: peer closed, reset,
	// broken pipe or any non-transient OS error on the socket.
	ConnectionFault

	// RetryExhausted means a non-blocking operation kept reporting
	// EAGAIN/EINTR until the retry budget was spent.
	RetryExhausted

	// ProtocolFraming means the request head delimiter was not found within
	// the size limit.
	ProtocolFraming

	// MalformedRequest means the request line could not be parsed.
	MalformedRequest

	// Forbidden means the requested path escapes the web root.
	Forbidden

	// NotFound means the target is missing, unreadable or a directory.
	NotFound

	// RangeNotSatisfiable means a Range header yielded no usable interval.
	RangeNotSatisfiable

	// IncompleteTransfer means a zero-copy body transfer could not be driven
	// to completion.
	IncompleteTransfer

	// InvalidHandle means a connection handle is stale, unknown, or aliases
	// a standard stream.
	InvalidHandle
)

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case SocketSetupFault:
		return "socket_setup"
	case ConnectionFault:
		return "connection"
	case RetryExhausted:
		return "retry_exhausted"
	case ProtocolFraming:
		return "protocol_framing"
	case MalformedRequest:
		return "malformed_request"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case RangeNotSatisfiable:
		return "range_not_satisfiable"
	case IncompleteTransfer:
		return "incomplete_transfer"
	case InvalidHandle:
		return "invalid_handle"
	default:
		return "unknown"
	}
}

// Fatal reports whether a failure of this kind must stop the server.
func (k Kind) Fatal() bool {
	return k == SocketSetupFault
}

// Error is a categorized failure.
type Error struct {
	// Kind is the failure category
	Kind Kind

	// Op names the operation that failed (e.g. "recv", "sendfile", "bind")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying cause.
func Wrap(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or
// Internal if there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
