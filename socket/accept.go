// File: socket/accept.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"time"

	"github.com/momentics/evsock/internal/transport"
)

// acceptLoop polls every listening descriptor, accepting at most one
// connection per descriptor per pass, until the listening set is empty.
// It then waits for every connection task.
func (s *Server) acceptLoop() {
	defer close(s.acceptDone)
	for {
		fds := s.listenFDs()
		if len(fds) == 0 {
			break
		}
		if _, err := transport.WaitReadable(fds, s.opts.acceptInterval); err != nil {
			s.opts.logger.Debug("accept poll failed", "err", err)
			time.Sleep(s.opts.acceptInterval)
		}
		s.acceptPass()
	}
	if rec := s.conns.Wait(); rec != nil {
		s.opts.logger.Error("connection task panicked", "panic", rec.Value)
	}
	s.opts.logger.Debug("accept loop stopped")
}

func (s *Server) listenFDs() []int {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	fds := make([]int, len(s.listeners))
	for i, l := range s.listeners {
		fds[i] = l.fd
	}
	return fds
}

// acceptPass tries one non-blocking accept per descriptor. A descriptor
// failing with anything but a transient error leaves the set for good.
func (s *Server) acceptPass() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	kept := s.listeners[:0]
	for _, l := range s.listeners {
		fd, peer, err := transport.Accept(l.fd)
		switch {
		case err == nil:
			s.spawn(fd, peer)
		case transport.IsWouldBlock(err):
		case transport.IsTransientAccept(err):
			s.opts.logger.Debug("accept skipped", "addr", l.addr, "err", err)
		default:
			_ = transport.Close(l.fd)
			s.opts.metrics.ListenerClosed()
			s.opts.metrics.Error("accept")
			s.opts.logger.Warn("listener dropped", "addr", l.addr, "err", err)
			continue
		}
		kept = append(kept, l)
	}
	s.listeners = kept
}

// spawn starts the connection task for an accepted descriptor. The task's
// socket forwards its CONNECT to the server CONNECTION handler.
func (s *Server) spawn(fd int, peer string) {
	id := s.nextID.Add(1)
	c := newSocket(s.opts)
	c.On(OnConnect(s.fireConnection))
	s.opts.metrics.ConnectionAccepted()
	s.opts.logger.Debug("accepted", "id", id, "fd", fd, "remote", peer)
	s.conns.Go(id, c, func() {
		if err := c.Wrap(fd); err != nil {
			s.opts.logger.Debug("connection not served", "id", id, "err", err)
		}
	})
}
