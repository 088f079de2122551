// Package api
// Author: momentics
//
// Runtime introspection contract for servers and their connections.

package api

// Debug exposes named state probes.
type Debug interface {
	// DumpState evaluates every probe and returns the values by name.
	DumpState() map[string]any

	// RegisterProbe adds or replaces a probe.
	RegisterProbe(name string, fn func() any)

	// UnregisterProbe removes a probe; unknown names are ignored.
	UnregisterProbe(name string)
}
