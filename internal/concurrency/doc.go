// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for evsock. TaskGroup supervises the long-lived
// goroutines that serve accepted connections: it tracks them by key while
// they run, recovers their panics and joins all of them on shutdown.
package concurrency
