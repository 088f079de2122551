// File: socket/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"

	"github.com/momentics/evsock/api"
	"github.com/momentics/evsock/internal/transport"
)

const (
	stateIdle int32 = iota
	stateConnecting
	stateActive
	stateDone
)

// Socket is one TCP stream endpoint driven by event handlers. It owns one
// descriptor and one receive loop. A Socket is single-use: once its loop
// has finished it cannot connect again.
type Socket struct {
	reg  *registry
	opts options

	state  atomic.Int32
	active atomic.Bool

	// fdMu guards fd: readers of fd hold RLock, the final close holds Lock.
	fdMu   sync.RWMutex
	fd     int
	remote string

	writeMu sync.Mutex

	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
	bg        conc.WaitGroup
}

// NewSocket creates an unconnected socket. CONNECT and END default to
// no-ops and ERROR to a log line.
func NewSocket(opts ...Option) *Socket {
	return newSocket(buildOptions(opts))
}

func newSocket(o options) *Socket {
	s := &Socket{
		reg:     newRegistry(),
		opts:    o,
		fd:      -1,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.On(OnConnect(func() {}))
	s.On(OnEnd(func() {}))
	s.On(OnError(func(msg string) {
		s.opts.logger.Error("socket error", "err", msg, "remote", s.RemoteAddr())
	}))
	return s
}

// On registers a handler, replacing any earlier one for the same event.
// It is safe to call from any goroutine, including from inside a handler.
func (s *Socket) On(b Binding) *Socket {
	s.reg.set(b)
	return s
}

// IsActive reports whether the socket sits between a successful
// connect/wrap and the end of its receive loop.
func (s *Socket) IsActive() bool {
	return s.active.Load()
}

// FD returns the descriptor, or -1 when unconnected or closed.
func (s *Socket) FD() int {
	s.fdMu.RLock()
	defer s.fdMu.RUnlock()
	return s.fd
}

// RemoteAddr returns the peer as host:port, empty until connected.
func (s *Socket) RemoteAddr() string {
	s.fdMu.RLock()
	defer s.fdMu.RUnlock()
	return s.remote
}

// Write sends all of p, retrying partial sends, and blocks until every byte
// is handed to the kernel or the connection fails.
func (s *Socket) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.send(p)
}

// WriteString is Write for text.
func (s *Socket) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// End sends any final chunks and then half-closes: the peer sees
// end-of-stream while this side keeps receiving until the peer closes too.
func (s *Socket) End(data ...[]byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, p := range data {
		if _, err := s.send(p); err != nil {
			return err
		}
	}
	s.fdMu.RLock()
	defer s.fdMu.RUnlock()
	if s.fd < 0 {
		return api.ErrSocketClosed
	}
	if err := transport.ShutdownWrite(s.fd); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// send writes p fully; callers hold writeMu.
func (s *Socket) send(p []byte) (int, error) {
	s.fdMu.RLock()
	defer s.fdMu.RUnlock()
	if s.fd < 0 {
		return 0, api.ErrSocketClosed
	}
	written := 0
	defer func() { s.opts.metrics.BytesSent(written) }()
	for written < len(p) {
		n, err := transport.Send(s.fd, p[written:])
		if n > 0 {
			written += n
		}
		if err == nil {
			continue
		}
		if transport.IsWouldBlock(err) {
			continue
		}
		if transport.IsBrokenPipe(err) {
			return written, fmt.Errorf("%w: %w", api.ErrBrokenPipe, err)
		}
		return written, api.WrapError(api.ErrCodeIO, fmt.Errorf("send: %w", err))
	}
	return written, nil
}

// Connect dials host:port in the background and returns at once. On
// success CONNECT fires and the receive loop starts; when resolution or
// every candidate address fails, ERROR fires instead. Closing the socket
// before CONNECT aborts the attempt and ERROR reports ErrConnectAborted.
// Connecting a socket that was already connected or wrapped fails
// synchronously.
func (s *Socket) Connect(port int, host string) error {
	if !s.state.CompareAndSwap(stateIdle, stateConnecting) {
		if s.state.Load() == stateDone {
			return api.ErrSocketClosed
		}
		return api.ErrAlreadyConnected
	}
	s.bg.Go(func() {
		defer s.finish()
		s.dial(port, host)
	})
	return nil
}

func (s *Socket) dial(port int, host string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	candidates, err := transport.Resolve(ctx, host, port, false)
	if err != nil {
		s.failConnect(err.Error())
		return
	}
	for _, ap := range candidates {
		if s.isClosing() {
			break
		}
		fd, err := transport.OpenStream(ap)
		if err != nil {
			s.opts.logger.Debug("connect candidate skipped", "addr", ap, "err", err)
			continue
		}
		if err := transport.ConnectContext(ctx, fd, ap); err != nil {
			_ = transport.Close(fd)
			s.opts.logger.Debug("connect candidate failed", "addr", ap, "err", err)
			continue
		}
		if !s.adopt(fd) {
			break
		}
		s.run()
		return
	}
	s.failConnect(api.ErrConnectFailed.Error())
}

// failConnect fires the single ERROR of a connect that never produced a
// connection.
func (s *Socket) failConnect(msg string) {
	if s.isClosing() {
		msg = api.ErrConnectAborted.Error()
	}
	s.fireError(msg)
}

// Wrap adopts an already connected descriptor, fires CONNECT and runs the
// receive loop on the calling goroutine until the connection ends. The
// socket owns fd from then on, unless ErrAlreadyConnected is returned.
func (s *Socket) Wrap(fd int) error {
	if fd < 0 {
		return fmt.Errorf("%w: descriptor %d", api.ErrInvalidArgument, fd)
	}
	if !s.state.CompareAndSwap(stateIdle, stateConnecting) {
		if s.state.Load() == stateDone {
			// Closed before use: the descriptor was handed over all the same.
			_ = transport.Close(fd)
			return api.ErrSocketClosed
		}
		return api.ErrAlreadyConnected
	}
	defer s.finish()
	if !s.adopt(fd) {
		return api.ErrSocketClosed
	}
	s.run()
	return nil
}

// adopt installs fd unless Close won the race, in which case fd is released.
func (s *Socket) adopt(fd int) bool {
	s.fdMu.Lock()
	defer s.fdMu.Unlock()
	if s.isClosing() {
		_ = transport.Close(fd)
		return false
	}
	s.fd = fd
	s.remote = transport.PeerAddr(fd)
	s.state.Store(stateActive)
	s.active.Store(true)
	s.opts.metrics.ConnectionOpened()
	s.opts.logger.Debug("connected", "fd", fd, "remote", s.remote)
	return true
}

func (s *Socket) run() {
	s.fireConnect()
	s.receive()
}

// release closes the descriptor once the receive loop is over.
func (s *Socket) release() {
	s.fdMu.Lock()
	if s.fd >= 0 {
		_ = transport.Close(s.fd)
		s.opts.logger.Debug("connection closed", "fd", s.fd, "remote", s.remote)
		s.fd = -1
	}
	s.active.Store(false)
	s.fdMu.Unlock()
	s.opts.metrics.ConnectionClosed()
}

func (s *Socket) finish() {
	s.doneOnce.Do(func() {
		s.state.Store(stateDone)
		close(s.done)
	})
}

func (s *Socket) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// Close breaks the connection in both directions without waiting. The
// receive loop then ends normally, firing END. A socket still connecting
// gives up its attempt instead and fires ERROR with ErrConnectAborted, and
// no END. A socket never connected fires nothing. It is safe to call from
// a handler; use Wait to block until the loop is gone.
func (s *Socket) Close() error {
	first := false
	s.closeOnce.Do(func() {
		close(s.closing)
		first = true
	})
	if !first {
		return nil
	}
	if s.state.CompareAndSwap(stateIdle, stateDone) {
		s.finish()
		return nil
	}
	s.fdMu.RLock()
	defer s.fdMu.RUnlock()
	if s.fd < 0 {
		return nil
	}
	if err := transport.ShutdownBoth(s.fd); err != nil && !transport.IsNotConnected(err) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Wait blocks until the socket's background work has finished. It returns
// at once for a socket that never connected. Calling Wait from one of the
// socket's own handlers deadlocks.
func (s *Socket) Wait() {
	if s.state.Load() == stateIdle {
		return
	}
	<-s.done
	if rec := s.bg.WaitAndRecover(); rec != nil {
		s.opts.logger.Error("socket task panicked", "panic", rec.Value)
	}
}

// Done is closed once the socket's background work has finished.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}
