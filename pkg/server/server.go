package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittohttp/internal/logger"
	"github.com/marmos91/dittohttp/pkg/adapter"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve already called")

// DefaultStopTimeout bounds the Stop call of every adapter during shutdown.
const DefaultStopTimeout = 30 * time.Second

// Server manages the lifecycle of the protocol adapters of one process.
//
// Lifecycle:
//  1. Creation: New() with the per-adapter stop timeout
//  2. Registration: AddAdapter() for each constructed adapter
//  3. Startup: Serve() runs all adapters concurrently
//  4. Shutdown: context cancellation or the failure of any adapter stops
//     all of them
//
// Thread safety:
// Server is safe for concurrent use. AddAdapter() must not be called after
// Serve().
//
// Example usage:
//
//	srv := server.New(cfg.Server.ShutdownTimeout)
//	if err := srv.AddAdapter(httpAdapter); err != nil {
//	    return err
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type Server struct {
	// stopTimeout bounds each adapter's Stop during shutdown
	stopTimeout time.Duration

	// mu protects adapters and served
	mu       sync.RWMutex
	adapters []adapter.Adapter
	served   bool
}

// New creates a Server. A stopTimeout <= 0 uses DefaultStopTimeout.
func New(stopTimeout time.Duration) *Server {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Server{
		stopTimeout: stopTimeout,
		adapters:    make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a constructed adapter.
//
// Returns an error if another adapter already serves the same protocol or
// listens on the same port, or if Serve() has been called.
//
// Panics if a is nil (programmer error).
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add %s adapter after Serve() has been called", a.Protocol())
	}

	protocol, port := a.Protocol(), a.Port()
	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve runs every registered adapter and blocks until the context is
// cancelled or an adapter fails.
//
// Shutdown behavior:
//   - All adapters receive Stop() in reverse registration order, each bounded
//     by the stop timeout
//   - Serve() waits for every adapter's Serve() to return
//
// Returns:
//   - ctx.Err() if shutdown was triggered by the context
//   - the first adapter error if an adapter failed
//   - ErrAlreadyServed on a second call
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting server with %d adapter(s)", len(adapters))

	// buffered so a failing adapter never blocks on send
	errChan := make(chan adapterError, len(adapters))

	// adapters stop serving when either the caller or a sibling failure
	// cancels this context
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Debug("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(runCtx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", protocol)
				if runCtx.Err() == nil {
					errChan <- adapterError{protocol: protocol, err: errors.New("stopped unexpectedly")}
				}
			case errors.Is(err, context.Canceled) && runCtx.Err() != nil:
				logger.Debug("%s adapter stopped gracefully", protocol)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()
	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	cancel()
	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("Server stopped")
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters stops adapters in reverse registration order. Errors are
// logged and never stop the remaining adapters from being stopped.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]

		ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
		err := adp.Stop(ctx)
		cancel()

		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", adp.Protocol(), err)
		} else {
			logger.Debug("%s adapter stopped (port %d)", adp.Protocol(), adp.Port())
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
