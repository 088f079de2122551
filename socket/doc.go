// File: socket/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package socket is a callback-driven TCP layer. Callers register handlers
// for lifecycle events and the package owns every blocking call, goroutine
// and descriptor behind them.
//
// A Socket is one stream endpoint. It is either adopted from an accepted
// descriptor (Wrap) or dialed (Connect); afterwards a receive loop delivers
// DATA events in arrival order and finishes with exactly one END.
//
// A Server listens on every address a host resolves to, accepts on all of
// them from one goroutine and runs each connection on its own supervised
// goroutine, handing the new Socket to the CONNECTION handler.
//
// Handlers are registered through per-event constructors whose signatures
// are checked at compile time:
//
//	srv := socket.NewServer(func(c *socket.Socket) {
//		c.On(socket.OnData(func(b []byte) { c.Write(b) }))
//	})
//	srv.On(socket.OnListening(func(port int, host string) {
//		fmt.Println("listening on", host, port)
//	})).Listen(2212, "*")
package socket
