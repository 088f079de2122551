// File: socket/server.go
// Package socket implements the multi-listener TCP server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/momentics/evsock/api"
	"github.com/momentics/evsock/control"
	"github.com/momentics/evsock/internal/concurrency"
	"github.com/momentics/evsock/internal/transport"
)

// ConnInfo describes one tracked connection.
type ConnInfo struct {
	ID         uint64
	FD         int
	RemoteAddr string
}

type listener struct {
	fd   int
	addr netip.AddrPort
}

// Server accepts connections on every address its host resolves to and
// hands each one, wrapped in a Socket, to the CONNECTION handler.
type Server struct {
	reg  *registry
	opts options

	// listenMu guards listeners; the accept loop holds it for a whole pass.
	listenMu  sync.Mutex
	listeners []listener
	listening atomic.Bool
	started   atomic.Bool

	conns      *concurrency.TaskGroup[uint64, *Socket]
	nextID     atomic.Uint64
	acceptDone chan struct{}

	probes *control.DebugProbes
}

var _ api.GracefulShutdown = (*Server)(nil)

// NewServer creates a server whose CONNECTION handler is onConnection
// (nil means no-op). LISTENING defaults to a no-op, ERROR to a log line.
func NewServer(onConnection func(*Socket), opts ...Option) *Server {
	s := &Server{
		reg:        newRegistry(),
		opts:       buildOptions(opts),
		conns:      concurrency.NewTaskGroup[uint64, *Socket](),
		acceptDone: make(chan struct{}),
		probes:     control.NewDebugProbes(),
	}
	if onConnection == nil {
		onConnection = func(*Socket) {}
	}
	s.On(OnListening(func() {}))
	s.On(OnError(func(msg string) {
		s.opts.logger.Error("server error", "err", msg)
	}))
	s.On(OnConnection(onConnection))

	s.probes.RegisterProbe("listening_sockets", func() any { return s.Addrs() })
	s.probes.RegisterProbe("connections", func() any { return s.ConnectionCount() })
	s.probes.RegisterProbe("tasks", func() any { return s.conns.Stats() })
	return s
}

// On registers a server handler (LISTENING, CONNECTION or ERROR),
// replacing any earlier one for the same event.
func (s *Server) On(b Binding) *Server {
	s.reg.set(b)
	return s
}

// Debug exposes the server's state probes.
func (s *Server) Debug() api.Debug {
	return s.probes
}

// Listen opens one non-blocking listening descriptor per address host
// resolves to ("*" or "" meaning every local address of both families),
// fires LISTENING for each and starts accepting in the background. Port 0
// picks an ephemeral port per descriptor; LISTENING reports the bound one.
// Failures are reported through ERROR; a server listens at most once.
func (s *Server) Listen(port int, host string) *Server {
	if s.started.Load() || !s.listening.CompareAndSwap(false, true) {
		s.fireError(api.ErrAlreadyListening.Error())
		return s
	}

	candidates, err := transport.Resolve(context.Background(), host, port, true)
	if err != nil {
		s.listening.Store(false)
		s.fireError(err.Error())
		return s
	}

	var opened []listener
	for _, ap := range candidates {
		if l, ok := s.open(ap); ok {
			opened = append(opened, l)
		}
	}

	var ready []listener
	for _, l := range opened {
		if err := transport.SetNonblock(l.fd); err != nil {
			_ = transport.Close(l.fd)
			s.fireError(err.Error())
			continue
		}
		ready = append(ready, l)
	}
	if len(ready) == 0 {
		s.listening.Store(false)
		s.fireError(api.ErrNoListeners.Error())
		return s
	}

	s.listenMu.Lock()
	s.listeners = ready
	s.listenMu.Unlock()

	for _, l := range ready {
		s.opts.metrics.ListenerOpened()
		s.opts.logger.Debug("listening", "addr", l.addr)
		s.fireListening(int(l.addr.Port()), l.addr.Addr().String())
	}

	s.started.Store(true)
	go s.acceptLoop()
	return s
}

// open creates, binds and listens one candidate. Failures skip it.
func (s *Server) open(ap netip.AddrPort) (listener, bool) {
	fd, err := transport.OpenStream(ap)
	if err != nil {
		s.opts.logger.Debug("listen candidate skipped", "addr", ap, "err", err)
		return listener{}, false
	}
	if err := transport.SetReuseAddr(fd); err != nil {
		s.fireError("could not setsockopt")
	}
	if err := transport.SetV6Only(fd, ap); err != nil {
		s.opts.logger.Debug("IPV6_V6ONLY unavailable", "addr", ap, "err", err)
	}
	if err := transport.Bind(fd, ap); err != nil {
		_ = transport.Close(fd)
		s.opts.logger.Debug("listen candidate skipped", "addr", ap, "err", err)
		return listener{}, false
	}
	if err := transport.Listen(fd, s.opts.backlog); err != nil {
		_ = transport.Close(fd)
		s.fireError("listen error after bind of address")
		return listener{}, false
	}
	bound, err := transport.LocalAddr(fd)
	if err != nil {
		bound = ap
	}
	return listener{fd: fd, addr: bound}, true
}

// Addrs returns the addresses currently listened on.
func (s *Server) Addrs() []string {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	out := make([]string, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l.addr.String())
	}
	return out
}

// GetConnections calls fn for every connection still being served.
func (s *Server) GetConnections(fn func(ConnInfo)) {
	s.conns.Each(func(id uint64, c *Socket) {
		fn(ConnInfo{ID: id, FD: c.FD(), RemoteAddr: c.RemoteAddr()})
	})
}

// ConnectionCount returns the number of connections still being served.
func (s *Server) ConnectionCount() int {
	return s.conns.Len()
}

// closeListeners closes every listening descriptor; the accept loop stops
// once it sees the empty set.
func (s *Server) closeListeners() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	for _, l := range s.listeners {
		_ = transport.Close(l.fd)
		s.opts.metrics.ListenerClosed()
	}
	s.listeners = nil
}

// Close stops listening and waits for the accept loop and every
// connection to finish. Open connections keep it waiting; use Shutdown to
// bound the wait. Calling Close or Shutdown from a CONNECTION handler or
// from a handler of an accepted socket deadlocks, since the wait includes
// that connection; start it on its own goroutine instead.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}

// Shutdown stops listening and waits like Close. When ctx ends first,
// every remaining connection is closed and waited for, and ctx's error is
// returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeListeners()
	if !s.started.Load() {
		return nil
	}
	select {
	case <-s.acceptDone:
		return nil
	case <-ctx.Done():
	}
	s.conns.Each(func(_ uint64, c *Socket) {
		_ = c.Close()
	})
	<-s.acceptDone
	return fmt.Errorf("shutdown: %w", ctx.Err())
}
