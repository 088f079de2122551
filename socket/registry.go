// File: socket/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"sync"

	"github.com/momentics/evsock/api"
)

// registry maps event kinds to handlers. mu guards the table; invoke is
// held while a handler runs so handlers of one owner never overlap, while
// registration stays possible during a dispatch.
type registry struct {
	mu      sync.RWMutex
	slots   map[api.EventKind]slot
	invoke  sync.Mutex
	changed chan struct{}
}

func newRegistry() *registry {
	return &registry{
		slots:   make(map[api.EventKind]slot),
		changed: make(chan struct{}, 1),
	}
}

// set stores b, replacing the previous handler for its kind.
func (r *registry) set(b Binding) {
	r.mu.Lock()
	if b.fn == nil {
		delete(r.slots, b.kind)
	} else {
		r.slots[b.kind] = b.fn
	}
	r.mu.Unlock()

	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// get returns the current handler for kind, or nil.
func (r *registry) get(kind api.EventKind) slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[kind]
}

// call runs fn under the invocation lock and returns a recovered panic value.
func (r *registry) call(fn func()) (p any) {
	r.invoke.Lock()
	defer r.invoke.Unlock()
	defer func() { p = recover() }()
	fn()
	return nil
}

// maxErrorDepth bounds ERROR re-dispatch when the ERROR handler itself fails.
const maxErrorDepth = 1
