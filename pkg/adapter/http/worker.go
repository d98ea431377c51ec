package http

import (
	"time"

	"github.com/marmos91/dittohttp/internal/logger"
	httpproto "github.com/marmos91/dittohttp/internal/protocol/http"
	"github.com/marmos91/dittohttp/internal/sockio"
)

// runWorker serves queued requests until the queue is closed and drained.
func (a *HTTPAdapter) runWorker(id int) {
	defer a.workers.Done()
	logger.Debug("HTTP worker %d started", id)

	for {
		item, ok := a.queue.Pop()
		if !ok {
			logger.Debug("HTTP worker %d exiting", id)
			return
		}
		a.serve(item)
	}
}

// serve answers one request and always closes its connection. A panic is
// contained to the request.
func (a *HTTPAdapter) serve(item *workItem) {
	a.metrics.RecordRequestStart()
	status := 0

	defer func() {
		if r := recover(); r != nil {
			logger.Error("HTTP [%s] panic serving %s: %v", item.id, item.request.Path, r)
		}
		if err := a.engine.CloseConnection(item.conn); err != nil {
			logger.Debug("HTTP [%s] close: %v", item.id, err)
		}

		duration := time.Since(item.enqueued)
		a.metrics.RecordRequestEnd()
		a.metrics.RecordRequest(status, duration)
		a.served.Add(1)
		logger.Debug("HTTP [%s] GET %s -> %d (%v)", item.id, item.request.Path, status, duration)
	}()

	status = a.respond(item)
}

// respond writes the response for item and returns the status actually sent,
// or 0 when not even the head reached the client.
//
// Failures before the head is sent become an error response. Once the head
// is out the status is committed, so a failed body transfer is only logged.
func (a *HTTPAdapter) respond(item *workItem) int {
	req := item.request

	// ========================================================================
	// Step 1: Resolve the target below the web root
	// ========================================================================

	file, err := a.root.Resolve(req.Path)
	if err != nil {
		return a.sendError(item, err)
	}
	contentType := a.mime.Lookup(file.Name)

	// ========================================================================
	// Step 2: Pick the response shape
	// ========================================================================

	status := httpproto.StatusOK
	head := httpproto.FullHeader(contentType, file.Size)
	offset, length := int64(0), file.Size

	if req.IsRange {
		ranges := httpproto.ResolveRanges(req.RangeHeader, file.Size)
		if len(ranges) == 0 {
			logger.Debug("HTTP [%s] no satisfiable range in %q (size %d)", item.id, req.RangeHeader, file.Size)
			if !a.send(item, httpproto.RangeNotSatisfiableResponse(file.Size), "error") {
				return 0
			}
			return httpproto.StatusRangeNotSatisfiable
		}

		// only the first range is honored
		r := ranges[0]
		status = httpproto.StatusPartialContent
		head = httpproto.PartialHeader(contentType, r, file.Size)
		offset, length = r.Start, r.Length()
	}

	// ========================================================================
	// Step 3: Head, then zero-copy body
	// ========================================================================

	if !a.send(item, head, "header") {
		return 0
	}
	if length == 0 {
		return status
	}

	sent, err := sockio.TransferFileRange(item.conn.Fd(), file.Path, offset, length, a.config.TransferRetry)
	a.metrics.RecordBytesSent("body", sent)
	if err != nil {
		logger.Warn("HTTP [%s] incomplete transfer of %s: %d/%d bytes: %v",
			item.id, req.Path, sent, length, err)
	}
	return status
}

// sendError answers with the error page matching err.
func (a *HTTPAdapter) sendError(item *workItem, err error) int {
	code := httpproto.StatusForError(err)
	if code == httpproto.StatusInternalServerError {
		logger.Error("HTTP [%s] GET %s failed: %v", item.id, item.request.Path, err)
	} else {
		logger.Debug("HTTP [%s] GET %s rejected: %v", item.id, item.request.Path, err)
	}

	if !a.send(item, httpproto.ErrorResponse(code, errorDetail(code, item.request.Path)), "error") {
		return 0
	}
	return code
}

// send writes b in full. It reports whether the client got it.
func (a *HTTPAdapter) send(item *workItem, b []byte, kind string) bool {
	if err := sockio.Send(item.conn.Fd(), b, a.config.TransferRetry); err != nil {
		logger.Debug("HTTP [%s] send %s: %v", item.id, kind, err)
		return false
	}
	a.metrics.RecordBytesSent(kind, int64(len(b)))
	return true
}
