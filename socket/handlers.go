// File: socket/handlers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import "github.com/momentics/evsock/api"

// slot is the closed set of handler shapes a registry can hold.
type slot interface {
	isSlot()
}

type (
	noArgSlot  func()
	stringSlot func(string)
	bytesSlot  func([]byte)
	socketSlot func(*Socket)
	listenSlot func(port int, host string)
	handleSlot func(fd int)
)

func (noArgSlot) isSlot()  {}
func (stringSlot) isSlot() {}
func (bytesSlot) isSlot()  {}
func (socketSlot) isSlot() {}
func (listenSlot) isSlot() {}
func (handleSlot) isSlot() {}

// Handler shapes accepted per event kind.
type (
	ConnectFunc    interface{ func() | func(*Socket) }
	DataFunc       interface{ func(string) | func([]byte) }
	EndFunc        interface{ func() | func(*Socket) }
	ErrorFunc      interface{ func() | func(string) }
	ListeningFunc  interface{ func() | func(port int, host string) }
	ConnectionFunc interface{ func(*Socket) | func(fd int) }
)

// Binding pairs an event kind with a handler of a shape valid for it.
// Registering a Binding built from a nil function removes the handler.
type Binding struct {
	kind api.EventKind
	fn   slot
}

// Kind returns the event the binding targets.
func (b Binding) Kind() api.EventKind {
	return b.kind
}

// OnConnect fires once the socket is connected, before any other event.
func OnConnect[F ConnectFunc](fn F) Binding {
	return Binding{kind: api.EventConnect, fn: toSlot(fn)}
}

// OnData receives the bytes of one receive pass, in arrival order.
func OnData[F DataFunc](fn F) Binding {
	return Binding{kind: api.EventData, fn: toSlot(fn)}
}

// OnEnd fires exactly once when the receive loop stops.
func OnEnd[F EndFunc](fn F) Binding {
	return Binding{kind: api.EventEnd, fn: toSlot(fn)}
}

// OnError receives transport and handler faults as text.
func OnError[F ErrorFunc](fn F) Binding {
	return Binding{kind: api.EventError, fn: toSlot(fn)}
}

// OnListening fires once per listening descriptor with its bound port and host.
func OnListening[F ListeningFunc](fn F) Binding {
	return Binding{kind: api.EventListening, fn: toSlot(fn)}
}

// OnConnection receives every accepted connection, either as a Socket or
// as its raw descriptor.
func OnConnection[F ConnectionFunc](fn F) Binding {
	return Binding{kind: api.EventConnection, fn: toSlot(fn)}
}

func toSlot(fn any) slot {
	switch f := fn.(type) {
	case func():
		if f != nil {
			return noArgSlot(f)
		}
	case func(string):
		if f != nil {
			return stringSlot(f)
		}
	case func([]byte):
		if f != nil {
			return bytesSlot(f)
		}
	case func(*Socket):
		if f != nil {
			return socketSlot(f)
		}
	case func(int, string):
		if f != nil {
			return listenSlot(f)
		}
	case func(int):
		if f != nil {
			return handleSlot(f)
		}
	}
	return nil
}
