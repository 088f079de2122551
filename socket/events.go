// File: socket/events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"fmt"

	"github.com/momentics/evsock/api"
)

// dispatch runs call under the invocation lock. A panicking handler is
// reported through ERROR and the connection carries on.
func (s *Socket) dispatch(kind api.EventKind, call func()) {
	if p := s.reg.call(call); p != nil {
		s.raiseError(handlerPanic(kind, p), 0)
	}
}

func handlerPanic(kind api.EventKind, p any) string {
	return api.NewError(api.ErrCodeHandler, fmt.Sprintf("panic in %s handler: %v", kind, p)).Error()
}

func (s *Socket) badHandler(kind api.EventKind, fn slot) {
	s.raiseError(fmt.Sprintf("%s %s: %T", api.ErrBadHandler, kind, fn), 0)
}

func (s *Socket) fireConnect() {
	s.opts.metrics.Event(api.EventConnect)
	switch fn := s.reg.get(api.EventConnect).(type) {
	case nil:
	case noArgSlot:
		s.dispatch(api.EventConnect, func() { fn() })
	case socketSlot:
		s.dispatch(api.EventConnect, func() { fn(s) })
	default:
		s.badHandler(api.EventConnect, fn)
	}
}

// fireData delivers one chunk. It reports false when no DATA handler is
// registered, leaving the chunk for a later attempt.
func (s *Socket) fireData(chunk []byte) bool {
	switch fn := s.reg.get(api.EventData).(type) {
	case nil:
		return false
	case stringSlot:
		s.opts.metrics.Event(api.EventData)
		s.dispatch(api.EventData, func() { fn(string(chunk)) })
	case bytesSlot:
		s.opts.metrics.Event(api.EventData)
		s.dispatch(api.EventData, func() { fn(chunk) })
	default:
		s.badHandler(api.EventData, fn)
		return false
	}
	return true
}

func (s *Socket) fireEnd() {
	s.opts.metrics.Event(api.EventEnd)
	switch fn := s.reg.get(api.EventEnd).(type) {
	case nil:
	case noArgSlot:
		s.dispatch(api.EventEnd, func() { fn() })
	case socketSlot:
		s.dispatch(api.EventEnd, func() { fn(s) })
	default:
		s.badHandler(api.EventEnd, fn)
	}
}

func (s *Socket) fireError(msg string) {
	s.raiseError(msg, 0)
}

// raiseError dispatches ERROR. A failing ERROR handler gets one more
// attempt describing the failure; past that the error is only logged.
func (s *Socket) raiseError(msg string, depth int) {
	s.opts.metrics.Event(api.EventError)
	s.opts.metrics.Error("socket")
	if depth > maxErrorDepth {
		s.opts.logger.Error("unhandled socket error", "err", msg, "remote", s.RemoteAddr())
		return
	}
	var p any
	switch fn := s.reg.get(api.EventError).(type) {
	case nil:
		s.opts.logger.Error("socket error", "err", msg, "remote", s.RemoteAddr())
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
