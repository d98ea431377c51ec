package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittohttp/internal/fault"
	"github.com/marmos91/dittohttp/internal/logger"
	httpproto "github.com/marmos91/dittohttp/internal/protocol/http"
	"github.com/marmos91/dittohttp/internal/sockio"
	"github.com/marmos91/dittohttp/pkg/engine"
)

// OnAccept implements engine.Handler.
func (a *HTTPAdapter) OnAccept(c engine.Conn) {
	logger.Debug("HTTP connection accepted: %s", c)
}

// OnReadable implements engine.Handler. It runs on the dispatcher goroutine.
//
// The request head is read up to the blank line and parsed. On success the
// connection is detached and queued for a worker. A head that is too long or
// not a valid GET gets a 400 sent right here; a peer that disconnects or
// stalls is dropped without a response. Nothing is queued on failure.
func (a *HTTPAdapter) OnReadable(c engine.Conn) error {
	head, err := sockio.ReceiveUntil(c.Fd(), a.config.MaxHeaderSize, httpproto.HeadDelimiter, a.config.SocketRetry)
	if err != nil {
		a.reject(c, err)
		return nil
	}

	req, err := httpproto.ParseRequest(head)
	if err != nil {
		a.reject(c, err)
		return nil
	}

	// from here on the connection belongs to whichever worker pops it
	if err := a.engine.Detach(c); err != nil {
		return err
	}

	item := &workItem{
		id:       uuid.NewString(),
		conn:     c,
		request:  req,
		enqueued: time.Now(),
	}
	if !a.queue.Push(item) {
		logger.Debug("HTTP [%s] shutting down, dropping GET %s from %s", item.id, req.Path, c.Peer())
		_ = a.engine.CloseConnection(c)
		return nil
	}
	logger.Debug("HTTP [%s] queued GET %s from %s (range: %v)", item.id, req.Path, c.Peer(), req.IsRange)
	return nil
}

// reject answers a request head that could not be captured and closes the
// connection.
func (a *HTTPAdapter) reject(c engine.Conn, err error) {
	switch fault.KindOf(err) {
	case fault.ProtocolFraming, fault.MalformedRequest:
		code := httpproto.StatusForError(err)
		logger.Debug("HTTP bad request from %s: %v", c.Peer(), err)

		resp := httpproto.ErrorResponse(code, errorDetail(code, ""))
		if sendErr := sockio.Send(c.Fd(), resp, a.config.SocketRetry); sendErr != nil {
			logger.Debug("HTTP error response to %s not delivered: %v", c.Peer(), sendErr)
			code = 0
		} else {
			a.metrics.RecordBytesSent("error", int64(len(resp)))
		}
		a.metrics.RecordRequest(code, 0)

	default:
		// disconnect or stalled peer: there is nobody to answer
		logger.Debug("HTTP dropping %s: %v", c, err)
	}

	if closeErr := a.engine.CloseConnection(c); closeErr != nil {
		logger.Debug("HTTP close %s: %v", c, closeErr)
	}
}

// errorDetail is the human-readable line of an error page.
func errorDetail(code int, path string) string {
	switch code {
	case httpproto.StatusBadRequest:
		return "The request could not be understood by the server."
	case httpproto.StatusForbidden:
		return "Access to " + path + " is not allowed."
	case httpproto.StatusNotFound:
		return "The requested URL " + path + " was not found on this server."
	case httpproto.StatusRangeNotSatisfiable:
		return "The requested range is not satisfiable."
	default:
		return "The server encountered an internal error."
	}
}
