package http

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittohttp/internal/logger"
	httpproto "github.com/marmos91/dittohttp/internal/protocol/http"
	"github.com/marmos91/dittohttp/internal/sockio"
	"github.com/marmos91/dittohttp/pkg/engine"
	"github.com/marmos91/dittohttp/pkg/metrics"
	"github.com/marmos91/dittohttp/pkg/webroot"
)

// HTTPAdapter implements the adapter.Adapter interface for a static file
// server over HTTP/1.x.
//
// Architecture:
// One dispatcher goroutine (Serve) drives the epoll engine. When a connection
// becomes readable the dispatcher captures the request head, detaches the
// connection from the engine and queues it. A fixed pool of workers pops
// requests, resolves the target below the web root and writes the response
// head followed by a sendfile(2) body. Every connection carries exactly one
// request and is closed by the worker that served it.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. The dispatcher stops stepping the engine (no new requests are captured)
//  3. The queue is closed; workers drain what was already queued
//  4. Wait for the workers (up to ShutdownTimeout or the Stop context)
//  5. Close the engine: listener, idle connections, and a shutdown(2) of any
//     connection a worker still holds
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once so Stop() may be called any number of times.
type HTTPAdapter struct {
	config HTTPConfig

	// root sandboxes every request target
	root *webroot.Root

	// mime is built once and read by all workers
	mime *httpproto.MIMETable

	// engine owns the listening socket and all connections
	engine *engine.Engine

	// metrics provides optional Prometheus metrics collection
	metrics metrics.HTTPMetrics

	// queue hands captured requests from the dispatcher to the workers
	queue *workQueue

	// workers tracks worker goroutines for the shutdown drain
	workers sync.WaitGroup

	// shutdown is closed by initiateShutdown and stops the dispatcher loop
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// stopped is closed once the drain finished; stopErr is its result
	stopped  chan struct{}
	stopOnce sync.Once
	stopErr  error

	// served counts completed requests for the periodic metrics log
	served atomic.Uint64
}

// HTTPConfig holds configuration parameters for the HTTP server.
//
// Default values (applied by New if zero):
//   - Workers: 4
//   - MaxHeaderSize: 65536
//   - ShutdownTimeout: 30s
//   - MetricsLogInterval: 5m
//   - SocketRetry: 10 retries, 2ms backoff
//   - TransferRetry: 1000 retries, 5ms backoff
//   - engine parameters: see engine.Config
//
// Port 0 binds an ephemeral port; the configuration layer supplies 8080.
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Root is the web root directory. It is filled in from the content
	// section of the configuration file.
	Root string `mapstructure:"-" yaml:"-" json:"-"`

	// Address is the IP literal to bind. Empty binds all IPv4 interfaces.
	Address string `mapstructure:"address" yaml:"address" validate:"omitempty,ip"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// Workers is the size of the worker pool serving queued requests.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"min=0"`

	// MaxHeaderSize bounds the request head. Larger heads get a 400.
	MaxHeaderSize int `mapstructure:"max_header_size" yaml:"max_header_size" validate:"min=0"`

	// Backlog is the listen(2) queue length.
	Backlog int `mapstructure:"backlog" yaml:"backlog" validate:"min=0"`

	// MaxEvents caps the events handled per engine step.
	MaxEvents int `mapstructure:"max_events" yaml:"max_events" validate:"min=0"`

	// WaitTimeout bounds a single epoll_wait.
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout" validate:"min=0"`

	// AcceptBatch caps the connections accepted per notification.
	AcceptBatch int `mapstructure:"accept_batch" yaml:"accept_batch" validate:"min=0"`

	// MaxConnections limits open connections. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// IdleTimeout closes connections that never send a complete head.
	// 0 disables the sweep.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// AcceptRate limits new connections per second. 0 means unlimited.
	AcceptRate uint `mapstructure:"accept_rate" yaml:"accept_rate"`

	// AcceptBurst is the burst allowed above AcceptRate. 0 uses AcceptRate.
	AcceptBurst uint `mapstructure:"accept_burst" yaml:"accept_burst"`

	// ShutdownTimeout bounds the drain of queued requests on shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the period of the metrics log line.
	// 0 uses the default; a negative value disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval"`

	// SocketRetry bounds request head capture on the dispatcher.
	SocketRetry sockio.RetryPolicy `mapstructure:"socket_retry" yaml:"socket_retry"`

	// TransferRetry bounds response writes in the workers.
	TransferRetry sockio.RetryPolicy `mapstructure:"transfer_retry" yaml:"transfer_retry"`

	// MIMETypes adds or overrides extension to content type mappings,
	// e.g. ".md": "text/markdown".
	MIMETypes map[string]string `mapstructure:"mime_types" yaml:"mime_types"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *HTTPConfig) applyDefaults() {
	// Note: Enabled and Port defaults live in pkg/config/defaults.go so an
	// explicit false or 0 survives here.

	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxHeaderSize <= 0 {
		c.MaxHeaderSize = 65536
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
	if c.SocketRetry == (sockio.RetryPolicy{}) {
		c.SocketRetry = sockio.DefaultSocketPolicy
	}
	if c.TransferRetry == (sockio.RetryPolicy{}) {
		c.TransferRetry = sockio.DefaultTransferPolicy
	}
}

// validate checks the values applyDefaults cannot fix. Engine parameters are
// validated by the engine itself.
func (c *HTTPConfig) validate() error {
	if c.Root == "" {
		return fmt.Errorf("web root is required")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be >= 0", c.ShutdownTimeout)
	}
	if c.SocketRetry.MaxRetries < 0 || c.SocketRetry.Backoff < 0 {
		return fmt.Errorf("invalid SocketRetry %+v: must be >= 0", c.SocketRetry)
	}
	if c.TransferRetry.MaxRetries < 0 || c.TransferRetry.Backoff < 0 {
		return fmt.Errorf("invalid TransferRetry %+v: must be >= 0", c.TransferRetry)
	}
	return nil
}

func (c *HTTPConfig) engineConfig() engine.Config {
	return engine.Config{
		Address:        c.Address,
		Port:           c.Port,
		Backlog:        c.Backlog,
		MaxEvents:      c.MaxEvents,
		WaitTimeout:    c.WaitTimeout,
		AcceptBatch:    c.AcceptBatch,
		MaxConnections: c.MaxConnections,
		IdleTimeout:    c.IdleTimeout,
		AcceptRate:     c.AcceptRate,
		AcceptBurst:    c.AcceptBurst,
	}
}

// New creates an HTTPAdapter, binds its listening socket and starts the
// worker pool.
//
// The adapter accepts connections into the kernel backlog right away but
// captures no request until Serve (or Step) runs the engine.
//
// Parameters:
//   - config: Server configuration; zero values get defaults
//   - httpMetrics: Optional metrics collector (nil for no metrics)
//
// Returns:
//   - *HTTPAdapter: A bound adapter with running workers
//   - error: Invalid config, bad web root, or a SocketSetupFault from bind
func New(config HTTPConfig, httpMetrics metrics.HTTPMetrics) (*HTTPAdapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid HTTP config: %w", err)
	}

	root, err := webroot.New(config.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open web root: %w", err)
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	a := &HTTPAdapter{
		config:   config,
		root:     root,
		mime:     httpproto.NewMIMETable(config.MIMETypes),
		metrics:  httpMetrics,
		queue:    newWorkQueue(httpMetrics.SetQueueDepth),
		shutdown: make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	eng, err := engine.New(config.engineConfig(), a, httpMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP listener on %s:%d: %w", config.Address, config.Port, err)
	}
	a.engine = eng

	for i := 0; i < config.Workers; i++ {
		a.workers.Add(1)
		go a.runWorker(i)
	}

	logger.Debug("HTTP config: root=%s workers=%d max_header_size=%d max_connections=%d idle_timeout=%v",
		root.Dir(), config.Workers, config.MaxHeaderSize, config.MaxConnections, config.IdleTimeout)
	return a, nil
}

// Serve runs the dispatcher loop until the context is cancelled, Stop is
// called, or the engine fails.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the event loop failed or the drain timed out
//
// Thread safety:
// Serve() should only be called once per HTTPAdapter instance, and never
// concurrently with Step().
func (a *HTTPAdapter) Serve(ctx context.Context) error {
	logger.Info("HTTP server listening on %s (root: %s)", a.engine.Addr(), a.root.Dir())

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			a.initiateShutdown()
		case <-a.shutdown:
		}
	}()

	if a.config.MetricsLogInterval > 0 {
		go a.logMetrics(ctx)
	}

	for {
		select {
		case <-a.shutdown:
			return a.Stop(context.Background())
		default:
		}

		if err := a.engine.Step(); err != nil {
			if errors.Is(err, engine.ErrClosed) {
				return a.Stop(context.Background())
			}
			logger.Error("HTTP event loop failed: %v", err)
			_ = a.Stop(context.Background())
			return fmt.Errorf("HTTP event loop: %w", err)
		}
	}
}

// Step runs one engine iteration. It lets callers drive the adapter without
// Serve, e.g. from their own loop.
func (a *HTTPAdapter) Step() error {
	return a.engine.Step()
}

// initiateShutdown stops the dispatcher loop. Safe to call multiple times.
func (a *HTTPAdapter) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")
		close(a.shutdown)
		a.engine.Wake()
	})
}

// gracefulShutdown drains the queue and closes the engine.
//
// Queued requests are still served. If the workers are not done within
// ShutdownTimeout (or before ctx ends) the engine is closed anyway, which
// shuts down the sockets the workers hold so their transfers fail fast.
func (a *HTTPAdapter) gracefulShutdown(ctx context.Context) error {
	pending := a.queue.Len()
	logger.Info("HTTP graceful shutdown: draining %d queued request(s) (timeout: %v)",
		pending, a.config.ShutdownTimeout)

	a.queue.Close()

	done := make(chan struct{})
	go func() {
		a.workers.Wait()
		close(done)
	}()

	timer := time.NewTimer(a.config.ShutdownTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-done:
		logger.Info("HTTP graceful shutdown complete: all workers finished")
	case <-timer.C:
		logger.Warn("HTTP shutdown timeout exceeded after %v: %d request(s) still queued - closing connections",
			a.config.ShutdownTimeout, a.queue.Len())
		err = fmt.Errorf("HTTP shutdown timeout: workers still busy after %v", a.config.ShutdownTimeout)
	case <-ctx.Done():
		logger.Warn("HTTP shutdown context cancelled: %v", ctx.Err())
		err = ctx.Err()
	}

	if closeErr := a.engine.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close engine: %w", closeErr)
	}
	return err
}

// Stop initiates graceful shutdown and waits for it.
//
// Stop is safe to call multiple times and concurrently with Serve(). The
// drain runs once; later callers wait for it and get the same result.
//
// Parameters:
//   - ctx: Bounds the wait in addition to ShutdownTimeout
//
// Returns:
//   - nil on successful graceful shutdown
//   - error if the drain timed out or ctx ended first
func (a *HTTPAdapter) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.initiateShutdown()

	go a.stopOnce.Do(func() {
		a.stopErr = a.gracefulShutdown(ctx)
		close(a.stopped)
	})

	select {
	case <-a.stopped:
		return a.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// logMetrics periodically logs server load for operators.
func (a *HTTPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(a.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopped:
			return
		case <-ticker.C:
			logger.Info("HTTP metrics: %s", a.metricsLine())
		}
	}
}

// metricsLine formats the periodic load summary.
func (a *HTTPAdapter) metricsLine() string {
	return fmt.Sprintf("active_connections=%d queue_depth=%d requests_served=%d rate_limited=%d",
		a.engine.ActiveConnections(), a.queue.Len(), a.served.Load(), a.engine.RateLimited())
}

// QueueDepth returns the number of requests waiting for a worker.
func (a *HTTPAdapter) QueueDepth() int {
	return a.queue.Len()
}

// ActiveConnections returns the number of open connections, including
// those being served.
func (a *HTTPAdapter) ActiveConnections() int {
	return a.engine.ActiveConnections()
}

// Port returns the bound TCP port, also when an ephemeral port was
// requested.
func (a *HTTPAdapter) Port() int {
	return a.engine.Port()
}

// Protocol returns "HTTP" for logging and metrics.
func (a *HTTPAdapter) Protocol() string {
	return "HTTP"
}
