// Package listener accepts agent connections on the controller and decodes
// each stream onto the routing bus.
package listener

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"liebert/internal/bus"
	liberrors "liebert/internal/errors"
	"liebert/internal/metrics"
	"liebert/internal/plugin"
	"liebert/internal/worker"
)

// acceptBackoff is the pause after a non-fatal Accept error.
const acceptBackoff = 100 * time.Millisecond

// Listener owns the server socket and every accepted connection.
type Listener struct {
	addr    string
	routing bus.Sender
	inbox   *bus.Bus
	logger  *slog.Logger
	self    *metrics.SelfMonitor
	watcher plugin.Watcher

	ln    net.Listener
	group errgroup.Group

	mu    sync.Mutex
	conns map[string]net.Conn
}

// Option configures a Listener.
type Option func(*Listener)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		l.logger = logger.With("component", "listener")
	}
}

func WithSelfMonitor(sm *metrics.SelfMonitor) Option {
	return func(l *Listener) {
		l.self = sm
	}
}

// WithWatcher hands the accept loop and every connection worker to w.
func WithWatcher(w plugin.Watcher) Option {
	return func(l *Listener) {
		l.watcher = w
	}
}

// New creates a listener for addr that sends decoded messages to routing.
func New(addr string, routing bus.Sender, opts ...Option) *Listener {
	l := &Listener{
		addr:    addr,
		routing: routing,
		inbox:   bus.New("listener"),
		logger:  slog.Default().With("component", "listener"),
		conns:   make(map[string]net.Conn),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Inbox accepts Shutdown.
func (l *Listener) Inbox() *bus.Bus { return l.inbox }

// Addr is the bound address. It is nil before Start.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Start binds the socket and runs the listener on its own worker. The
// worker returns once every connection has been closed and drained.
func (l *Listener) Start() (*worker.Handle, error) {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		nerr := liberrors.NetworkError("listener", "listen "+l.addr, err)
		nerr.Severity = liberrors.SeverityCritical
		return nil, nerr
	}
	l.ln = ln
	l.logger.Info("Listening for agents", "addr", ln.Addr().String())

	return worker.Spawn("listener", func() {
		defer l.inbox.Close()
		l.run()
	}), nil
}

func (l *Listener) run() {
	accept := worker.Spawn("listener_accept", l.accept)
	l.watch(accept)

	for {
		m, err := l.inbox.Recv(context.Background())
		if err != nil {
			return
		}
		s, ok := m.(bus.Shutdown)
		if !ok {
			plugin.Unexpected(l.logger, m)
			continue
		}

		l.logger.Info("Stopping listener", "reason", s.Reason)
		if err := l.ln.Close(); err != nil {
			l.logger.Debug("Close listener failed", "error", err)
		}
		accept.Join()
		l.closeAll()
		if err := l.group.Wait(); err != nil {
			l.logger.Error("Connection worker failed", "error", err)
		}
		return
	}
}

func (l *Listener) watch(h *worker.Handle) {
	if l.watcher != nil {
		l.watcher.Watch(h)
	}
}

func (l *Listener) accept() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("Accept failed", "error", err)
			time.Sleep(acceptBackoff)
			continue
		}

		session := uuid.NewString()
		l.track(session, conn)
		l.group.Go(func() error {
			defer l.untrack(session)
			return l.serve(session, conn)
		})
	}
}

func (l *Listener) track(session string, conn net.Conn) {
	l.mu.Lock()
	l.conns[session] = conn
	l.mu.Unlock()
	l.self.ConnectionOpened()
}

func (l *Listener) untrack(session string) {
	l.mu.Lock()
	delete(l.conns, session)
	l.mu.Unlock()
	l.self.ConnectionClosed()
}

func (l *Listener) closeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, conn := range l.conns {
		conn.Close()
	}
}

// Sessions reports the number of open connections.
func (l *Listener) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

// RemoteHost is the origin identity of a connection: its peer IP address.
func RemoteHost(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
