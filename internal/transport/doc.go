// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw stream-socket primitives for evsock. Every operation works on a plain
// OS file descriptor through golang.org/x/sys/unix so the socket layer keeps
// full control over blocking, half-close and descriptor lifetime. Platform
// code is split by build tags (linux / stub).

package transport
