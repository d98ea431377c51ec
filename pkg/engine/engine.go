// Package engine implements a single-dispatcher, edge-triggered epoll TCP
// engine.
//
// The engine owns the listening socket, the epoll instance and a table of
// live connections. The caller drives it by calling Step in a loop; each Step
// waits for readiness (bounded by WaitTimeout) and turns notifications into
// two callbacks on a Handler: a connection was accepted, and a connection has
// data to read.
//
// Connection lifecycle:
//
//	accept -> OnAccept -> OnReadable (repeatable) -> CloseConnection
//
// A handler that wants to finish a connection on another goroutine calls
// Detach, which removes the socket from epoll interest and makes that
// goroutine its sole owner until it calls CloseConnection.
//
// Linux only.
package engine

import (
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/dittohttp/internal/fault"
	"github.com/marmos91/dittohttp/internal/logger"
	"github.com/marmos91/dittohttp/internal/ratelimiter"
	"github.com/marmos91/dittohttp/pkg/metrics"
)

// ErrClosed is returned by Step after Close.
var ErrClosed = errors.New("engine closed")

// sweepInterval is how often the idle sweep runs at most.
var sweepInterval = time.Second

// fdLimitRetry bounds the wait between accept retries while the process is
// out of descriptors.
var fdLimitRetry = 100 * time.Millisecond

// Handler receives the engine's callbacks on the dispatcher goroutine.
//
// Callbacks must not block beyond the bounded retries of sockio; long work
// belongs on another goroutine after Detach.
type Handler interface {
	// OnAccept is called once per admitted connection, after it is
	// registered for readability.
	OnAccept(c Conn)

	// OnReadable is called when the connection has data. The edge-triggered
	// notification is not repeated, so the handler must consume what it
	// needs now. A returned error is logged and the connection closed.
	OnReadable(c Conn) error
}

// Engine is an epoll-driven TCP acceptor and readiness dispatcher.
//
// Thread safety:
// Step must only be called from one goroutine at a time (the dispatcher).
// CloseConnection, Detach, ActiveConnections, Wake and Close are safe from
// any goroutine.
type Engine struct {
	config  Config
	handler Handler
	metrics metrics.EngineMetrics
	limiter *ratelimiter.RateLimiter

	epfd   int
	lfd    int
	wakefd int
	port   int

	// events is reused by every epoll_wait; only touched under stepMu
	events []unix.EpollEvent

	// stepMu serializes Step against Close so descriptors are never closed
	// under a running epoll_wait
	stepMu sync.Mutex

	// acceptPending is set when an accept loop stopped at AcceptBatch with
	// the backlog possibly non-empty
	acceptPending bool

	// acceptRetry is set when accept failed with EMFILE/ENFILE; the next
	// Step retries after a short wait instead of spinning
	acceptRetry bool
	lastFdWarn  time.Time

	lastSweep time.Time

	mu      sync.Mutex
	conns   map[int]*entry
	nextGen uint32

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates the epoll instance and the listening socket, binds, listens and
// registers the listener for edge-triggered readability.
//
// Parameters:
//   - config: Address, port and loop parameters; zero values get defaults
//   - handler: Receives accept and readable callbacks
//   - m: Optional connection metrics (nil for no-op)
//
// Returns:
//   - *Engine: A listening engine; call Step to drive it
//   - error: SocketSetupFault on any failure, with nothing left open
func New(config Config, handler Handler, m metrics.EngineMetrics) (*Engine, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fault.Wrap(fault.SocketSetupFault, "config", err, "invalid engine config")
	}
	if handler == nil {
		return nil, fault.New(fault.SocketSetupFault, "config", "nil handler")
	}
	if m == nil {
		m = metrics.NewNoopHTTPMetrics()
	}

	e := &Engine{
		config:  config,
		handler: handler,
		metrics: m,
		limiter: ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		epfd:    -1,
		lfd:     -1,
		wakefd:  -1,
		events:  make([]unix.EpollEvent, config.MaxEvents),
		conns:   make(map[int]*entry),
	}

	if err := e.setup(); err != nil {
		e.release()
		return nil, err
	}

	logger.Info("Engine listening on %s (backlog=%d max_events=%d wait=%v)",
		e.Addr(), config.Backlog, config.MaxEvents, config.WaitTimeout)
	return e, nil
}

func (e *Engine) setup() error {
	var err error

	// ========================================================================
	// Step 1: Multiplexer and wake descriptor
	// ========================================================================

	if e.epfd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		return fault.Wrap(fault.SocketSetupFault, "epoll_create", err, "create epoll instance")
	}
	if e.wakefd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		return fault.Wrap(fault.SocketSetupFault, "eventfd", err, "create wake descriptor")
	}
	if err = e.register(e.wakefd, unix.EPOLLIN, 0); err != nil {
		return fault.Wrap(fault.SocketSetupFault, "epoll_ctl", err, "register wake descriptor")
	}

	// ========================================================================
	// Step 2: Listening socket
	// ========================================================================

	addr := netip.IPv4Unspecified()
	if e.config.Address != "" {
		addr = netip.MustParseAddr(e.config.Address).Unmap()
	}

	var (
		domain int
		sa     unix.Sockaddr
	)
	if addr.Is4() {
		domain = unix.AF_INET
		sa = &unix.SockaddrInet4{Port: e.config.Port, Addr: addr.As4()}
	} else {
		domain = unix.AF_INET6
		sa = &unix.SockaddrInet6{Port: e.config.Port, Addr: addr.As16()}
	}

	if e.lfd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0); err != nil {
		return fault.Wrap(fault.SocketSetupFault, "socket", err, "create listening socket")
	}
	if err = unix.SetsockoptInt(e.lfd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fault.Wrap(fault.SocketSetupFault, "setsockopt", err, "SO_REUSEADDR")
	}
	if err = unix.Bind(e.lfd, sa); err != nil {
		return fault.Wrap(fault.SocketSetupFault, "bind", err, "%s", e.bindAddr(addr))
	}
	if err = unix.Listen(e.lfd, e.config.Backlog); err != nil {
		return fault.Wrap(fault.SocketSetupFault, "listen", err, "%s", e.bindAddr(addr))
	}

	bound, err := unix.Getsockname(e.lfd)
	if err != nil {
		return fault.Wrap(fault.SocketSetupFault, "getsockname", err, "listening socket")
	}
	switch b := bound.(type) {
	case *unix.SockaddrInet4:
		e.port = b.Port
	case *unix.SockaddrInet6:
		e.port = b.Port
	}

	// ========================================================================
	// Step 3: Edge-triggered listener registration
	// ========================================================================

	if err = e.register(e.lfd, unix.EPOLLIN|unix.EPOLLET, 0); err != nil {
		return fault.Wrap(fault.SocketSetupFault, "epoll_ctl", err, "register listener")
	}
	return nil
}

func (e *Engine) bindAddr(addr netip.Addr) string {
	return netip.AddrPortFrom(addr, uint16(e.config.Port)).String()
}

// register adds fd to the epoll interest list. gen is stored in the event
// payload so notifications can be matched to the table entry.
func (e *Engine) register(fd int, events uint32, gen uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd), Pad: int32(gen)}
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// release closes whatever setup managed to open.
func (e *Engine) release() {
	for _, fd := range []*int{&e.lfd, &e.wakefd, &e.epfd} {
		if *fd >= 0 {
			_ = unix.Close(*fd)
			*fd = -1
		}
	}
}

// Step runs one iteration of the event loop: wait for readiness, dispatch
// every returned event, then sweep idle connections.
//
// Per event:
//   - listener: accept until EAGAIN or AcceptBatch
//   - EPOLLERR, EPOLLHUP or EPOLLRDHUP: the connection is closed (a peer
//     shutdown is not an error)
//   - otherwise: Handler.OnReadable
//
// A handler error or panic is logged and never stops the rest of the batch.
// An interrupted wait is not an error.
//
// Returns ErrClosed after Close, or an Internal fault if epoll_wait fails.
func (e *Engine) Step() error {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}

	wait := e.config.WaitTimeout
	if e.acceptPending || e.acceptRetry {
		e.acceptPending, e.acceptRetry = false, false
		e.acceptLoop()
		if e.acceptRetry {
			wait = min(wait, fdLimitRetry)
		} else {
			wait = 0
		}
	}

	n, err := unix.EpollWait(e.epfd, e.events, int(wait/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fault.Wrap(fault.Internal, "epoll_wait", err, "epfd %d", e.epfd)
	}

	for i := 0; i < n; i++ {
		e.dispatch(e.events[i])
	}

	e.sweepIdle(time.Now())
	return nil
}

func (e *Engine) dispatch(ev unix.EpollEvent) {
	fd := int(ev.Fd)

	switch fd {
	case e.lfd:
		e.acceptLoop()
		return
	case e.wakefd:
		var buf [8]byte
		_, _ = unix.Read(e.wakefd, buf[:])
		return
	}

	c, ok := e.lookup(fd, uint32(ev.Pad))
	if !ok {
		// closed earlier in this batch
		return
	}

	if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		logger.Debug("Engine: peer closed %s (events=%#x)", c, ev.Events)
		_ = e.closeConn(c, "peer")
		return
	}
	if ev.Events&unix.EPOLLIN == 0 {
		return
	}

	e.touch(c)
	e.invoke(c)
}

// invoke runs OnReadable, containing errors and panics to this connection.
func (e *Engine) invoke(c Conn) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Engine: handler panic on %s: %v", c, r)
			e.closeAttached(c)
		}
	}()

	if err := e.handler.OnReadable(c); err != nil {
		logger.Debug("Engine: handler error on %s: %v", c, err)
		e.closeAttached(c)
	}
}

// closeAttached closes c unless it was already closed or handed off.
func (e *Engine) closeAttached(c Conn) {
	e.mu.Lock()
	ent, ok := e.conns[c.fd]
	attached := ok && ent.conn.gen == c.gen && !ent.detached
	e.mu.Unlock()

	if attached {
		_ = e.closeConn(c, "error")
	}
}

// acceptLoop drains the listen backlog. Edge-triggered readiness is reported
// once per burst, so stopping early would strand connections; when the batch
// ceiling is hit the next Step resumes without waiting. At the descriptor
// limit it resumes after at most fdLimitRetry.
func (e *Engine) acceptLoop() {
	for i := 0; i < e.config.AcceptBatch; i++ {
		nfd, sa, err := unix.Accept4(e.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN):
				return
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
				continue
			case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE):
				if now := time.Now(); now.Sub(e.lastFdWarn) >= time.Second {
					logger.Warn("Engine: descriptor limit reached, accept deferred: %v", err)
					e.lastFdWarn = now
				}
				e.acceptRetry = true
				return
			default:
				logger.Error("Engine: accept failed: %v", err)
				return
			}
		}
		e.admit(nfd, sa)
	}
	e.acceptPending = true
}

// admit applies connection shedding, registers nfd and inserts it into the
// table.
func (e *Engine) admit(nfd int, sa unix.Sockaddr) {
	peer := peerString(sa)

	if e.limiter.Enabled() && !e.limiter.Allow() {
		logger.Debug("Engine: accept rate exceeded, shedding %s", peer)
		_ = unix.Close(nfd)
		e.metrics.RecordConnectionRejected("rate_limit")
		return
	}

	e.mu.Lock()
	if e.config.MaxConnections > 0 && len(e.conns) >= e.config.MaxConnections {
		e.mu.Unlock()
		logger.Debug("Engine: connection limit %d reached, shedding %s", e.config.MaxConnections, peer)
		_ = unix.Close(nfd)
		e.metrics.RecordConnectionRejected("max_connections")
		return
	}
	e.nextGen++
	c := Conn{fd: nfd, gen: e.nextGen, peer: peer}
	e.conns[nfd] = &entry{conn: c, lastActive: time.Now()}
	active := len(e.conns)
	e.mu.Unlock()

	if err := e.register(nfd, unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLET, c.gen); err != nil {
		logger.Error("Engine: register %s: %v", c, err)
		e.mu.Lock()
		delete(e.conns, nfd)
		e.mu.Unlock()
		_ = unix.Close(nfd)
		return
	}

	e.metrics.RecordConnectionAccepted()
	e.metrics.SetActiveConnections(active)
	logger.Debug("Engine: accepted %s (active: %d)", c, active)

	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Engine: OnAccept panic on %s: %v", c, r)
			}
		}()
		e.handler.OnAccept(c)
	}()
}

// lookup returns the live handle for fd if its generation matches.
func (e *Engine) lookup(fd int, gen uint32) (Conn, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.conns[fd]
	if !ok || ent.conn.gen != gen || ent.detached {
		return Conn{}, false
	}
	return ent.conn, true
}

func (e *Engine) touch(c Conn) {
	e.mu.Lock()
	if ent, ok := e.conns[c.fd]; ok && ent.conn.gen == c.gen {
		ent.lastActive = time.Now()
	}
	e.mu.Unlock()
}

// sweepIdle closes attached connections silent for longer than IdleTimeout.
// Detached connections belong to a worker and are never swept.
func (e *Engine) sweepIdle(now time.Time) {
	if e.config.IdleTimeout <= 0 || now.Sub(e.lastSweep) < sweepInterval {
		return
	}
	e.lastSweep = now

	var idle []Conn
	e.mu.Lock()
	for _, ent := range e.conns {
		if !ent.detached && now.Sub(ent.lastActive) > e.config.IdleTimeout {
			idle = append(idle, ent.conn)
		}
	}
	e.mu.Unlock()

	for _, c := range idle {
		logger.Debug("Engine: closing idle %s", c)
		_ = e.closeConn(c, "idle")
	}
}

// validate rejects standard-stream descriptors and stale handles. Callers
// hold e.mu.
func (e *Engine) validate(op string, c Conn) (*entry, error) {
	if c.fd <= 2 {
		return nil, fault.New(fault.InvalidHandle, op, "refusing standard stream fd %d", c.fd)
	}
	ent, ok := e.conns[c.fd]
	if !ok || ent.conn.gen != c.gen {
		return nil, fault.New(fault.InvalidHandle, op, "stale or unknown handle %s", c)
	}
	return ent, nil
}

// CloseConnection deregisters and closes c and drops it from the table.
//
// Returns InvalidHandle for descriptors 0-2 and for handles that are stale
// or unknown. Safe to call from any goroutine.
func (e *Engine) CloseConnection(c Conn) error {
	return e.closeConn(c, "handler")
}

func (e *Engine) closeConn(c Conn, reason string) error {
	e.mu.Lock()
	ent, err := e.validate("close", c)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	delete(e.conns, c.fd)
	detached := ent.detached
	active := len(e.conns)
	e.mu.Unlock()

	// the fd stays open until here, so it cannot be reused under us
	if !detached {
		if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, c.fd, nil); err != nil {
			logger.Debug("Engine: epoll deregister %s: %v", c, err)
		}
	}
	if err := unix.Close(c.fd); err != nil {
		logger.Debug("Engine: close %s: %v", c, err)
	}

	e.metrics.RecordConnectionClosed(reason)
	e.metrics.SetActiveConnections(active)
	return nil
}

// Detach removes c from epoll interest and hands it to the caller, who must
// eventually call CloseConnection. Idle sweeps skip detached connections.
// Detaching twice is a no-op.
func (e *Engine) Detach(c Conn) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, err := e.validate("detach", c)
	if err != nil {
		return err
	}
	if ent.detached {
		return nil
	}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, c.fd, nil); err != nil {
		return fault.Wrap(fault.ConnectionFault, "detach", err, "%s", c)
	}
	ent.detached = true
	return nil
}

// Wake interrupts a blocked Step.
func (e *Engine) Wake() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return
	}
	one := [8]byte{1}
	_, _ = unix.Write(e.wakefd, one[:])
}

// Close closes every attached connection, the listener and the epoll
// instance. It waits for a running Step to return. Safe to call more than
// once.
//
// Detached connections still belong to their worker: they are shut down so
// the worker's pending I/O fails fast, but the descriptor is only closed by
// the worker's CloseConnection. Closing it here would let the kernel hand the
// number to an unrelated file while the worker still writes to it.
func (e *Engine) Close() error {
	e.Wake()

	e.closeOnce.Do(func() {
		e.stepMu.Lock()
		defer e.stepMu.Unlock()

		e.mu.Lock()
		e.closed.Store(true)
		var attached []Conn
		for fd, ent := range e.conns {
			if ent.detached {
				_ = unix.Shutdown(fd, unix.SHUT_RDWR)
				continue
			}
			attached = append(attached, ent.conn)
		}
		e.mu.Unlock()

		for _, c := range attached {
			_ = e.closeConn(c, "shutdown")
		}
		e.release()
		logger.Debug("Engine closed (%d connection(s) dropped)", len(attached))
	})
	return nil
}

// Port returns the bound TCP port.
func (e *Engine) Port() int {
	return e.port
}

// Addr returns the bound address as host:port.
func (e *Engine) Addr() string {
	host := e.config.Address
	if host == "" {
		host = "0.0.0.0"
	}
	return netip.AddrPortFrom(netip.MustParseAddr(host), uint16(e.port)).String()
}

// RateLimited returns the number of connections shed by the accept rate
// limiter.
func (e *Engine) RateLimited() uint64 {
	return e.limiter.Rejected()
}

// ActiveConnections returns the number of connections in the table,
// detached ones included.
func (e *Engine) ActiveConnections() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}
