// File: internal/mockserver/mockserver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package mockserver is a raw-descriptor loopback acceptor for client tests.
// It deliberately bypasses the socket package so client behaviour is checked
// against an independent peer.

package mockserver

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/momentics/evsock/internal/transport"
)

const pollInterval = 20 * time.Millisecond

// Conn is one accepted connection as seen by a handler.
type Conn struct {
	fd   int
	Peer string
}

// Write sends all of p.
func (c *Conn) Write(p []byte) error {
	for len(p) > 0 {
		n, err := transport.Send(c.fd, p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Read reads once into buf. Zero bytes with a nil error means end-of-stream.
func (c *Conn) Read(buf []byte) (int, error) {
	return transport.Recv(c.fd, buf)
}

// ReadAll reads until the peer half-closes.
func (c *Conn) ReadAll() ([]byte, error) {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := c.Read(buf)
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}

// CloseWrite half-closes the connection.
func (c *Conn) CloseWrite() error {
	return transport.ShutdownWrite(c.fd)
}

// Abort arranges for the connection to be reset, not shut down, once the
// handler returns.
func (c *Conn) Abort() error {
	return transport.SetLingerZero(c.fd)
}

// Server accepts on 127.0.0.1 and runs handler once per connection. The
// descriptor is closed when handler returns.
type Server struct {
	fd      int
	addr    netip.AddrPort
	handler func(*Conn)

	stop     chan struct{}
	stopOnce sync.Once
	wg       conc.WaitGroup
}

// Start listens on an ephemeral loopback port.
func Start(handler func(*Conn)) (*Server, error) {
	if !transport.Supported {
		return nil, errors.New("mockserver: descriptors not supported on this platform")
	}
	ap := netip.MustParseAddrPort("127.0.0.1:0")
	fd, err := transport.OpenStream(ap)
	if err != nil {
		return nil, err
	}
	for _, step := range []func() error{
		func() error { return transport.SetReuseAddr(fd) },
		func() error { return transport.Bind(fd, ap) },
		func() error { return transport.Listen(fd, 16) },
		func() error { return transport.SetNonblock(fd) },
	} {
		if err := step(); err != nil {
			_ = transport.Close(fd)
			return nil, fmt.Errorf("mockserver: %w", err)
		}
	}
	bound, err := transport.LocalAddr(fd)
	if err != nil {
		_ = transport.Close(fd)
		return nil, fmt.Errorf("mockserver: %w", err)
	}
	s := &Server{fd: fd, addr: bound, handler: handler, stop: make(chan struct{})}
	s.wg.Go(s.loop)
	return s, nil
}

// Port returns the bound port.
func (s *Server) Port() int {
	return int(s.addr.Port())
}

func (s *Server) loop() {
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		if _, err := transport.WaitReadable([]int{s.fd}, pollInterval); err != nil {
			return
		}
		cfd, peer, err := transport.Accept(s.fd)
		if err != nil {
			if transport.IsWouldBlock(err) || transport.IsTransientAccept(err) {
				continue
			}
			return
		}
		c := &Conn{fd: cfd, Peer: peer}
		s.wg.Go(func() {
			defer transport.Close(c.fd)
			s.handler(c)
		})
	}
}

// Close stops accepting and waits for running handlers.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	_ = transport.Close(s.fd)
}
