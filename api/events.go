// File: api/events.go
// Package api defines the event kinds shared by sockets and servers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// EventKind names one lifecycle event. Sockets emit Connect, Data, End and
// Error; servers emit Listening, Connection and Error.
type EventKind int

const (
	EventConnect EventKind = iota
	EventError
	EventData
	EventEnd
	EventListening
	EventConnection
)

// String returns the upper-case event name used in error messages and metrics.
func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "CONNECT"
	case EventError:
		return "ERROR"
	case EventData:
		return "DATA"
	case EventEnd:
		return "END"
	case EventListening:
		return "LISTENING"
	case EventConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// SocketEvents lists the kinds a Socket dispatches.
var SocketEvents = []EventKind{EventConnect, EventError, EventData, EventEnd}

// ServerEvents lists the kinds a Server dispatches.
var ServerEvents = []EventKind{EventListening, EventConnection, EventError}
