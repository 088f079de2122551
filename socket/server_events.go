// File: socket/server_events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"fmt"

	"github.com/momentics/evsock/api"
)

func (s *Server) dispatch(kind api.EventKind, call func()) {
	if p := s.reg.call(call); p != nil {
		s.raiseError(handlerPanic(kind, p), 0)
	}
}

func (s *Server) fireListening(port int, host string) {
	s.opts.metrics.Event(api.EventListening)
	switch fn := s.reg.get(api.EventListening).(type) {
	case nil:
	case noArgSlot:
		s.dispatch(api.EventListening, func() { fn() })
	case listenSlot:
		s.dispatch(api.EventListening, func() { fn(port, host) })
	default:
		s.raiseError(fmt.Sprintf("%s %s: %T", api.ErrBadHandler, api.EventListening, fn), 0)
	}
}

// fireConnection runs on the connection's own goroutine, inside its CONNECT
// dispatch. It skips the server invocation lock so different connections
// are served concurrently.
func (s *Server) fireConnection(c *Socket) {
	s.opts.metrics.Event(api.EventConnection)
	var p any
	switch fn := s.reg.get(api.EventConnection).(type) {
	case nil:
		return
	case socketSlot:
		p = recovered(func() { fn(c) })
	case handleSlot:
		p = recovered(func() { fn(c.FD()) })
	default:
		s.raiseError(fmt.Sprintf("%s %s: %T", api.ErrBadHandler, api.EventConnection, fn), 0)
		return
	}
	if p != nil {
		s.raiseError(handlerPanic(api.EventConnection, p), 0)
	}
}

func (s *Server) fireError(msg string) {
	s.raiseError(msg, 0)
}

func (s *Server) raiseError(msg string, depth int) {
	s.opts.metrics.Event(api.EventError)
	s.opts.metrics.Error("server")
	if depth > maxErrorDepth {
		s.opts.logger.Error("unhandled server error", "err", msg)
		return
	}
	var p any
	switch fn := s.reg.get(api.EventError).(type) {
	case nil:
		s.opts.logger.Error("server error", "err", msg)
		return
	case noArgSlot:
		p = s.reg.call(func() { fn() })
	case stringSlot:
		p = s.reg.call(func() { fn(msg) })
	default:
		s.raiseError(fmt.Sprintf("%s ERROR: %T; err: %s", api.ErrBadHandler, fn, msg), depth+1)
		return
	}
	if p != nil {
		s.raiseError(fmt.Sprintf("panic in ERROR handler: %v; err: %s", p, msg), depth+1)
	}
}

func recovered(fn func()) (p any) {
	defer func() { p = recover() }()
	fn()
	return nil
}
