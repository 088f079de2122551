// internal/transport/transport_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux stream-socket primitives over golang.org/x/sys/unix.

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/evsock/api"
)

// Supported reports whether descriptor operations are available on this platform.
const Supported = true

// OpenStream creates a blocking, close-on-exec stream socket for the family of ap.
func OpenStream(ap netip.AddrPort) (int, error) {
	fd, err := unix.Socket(family(ap), unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket create: %w", err)
	}
	return fd, nil
}

// SetReuseAddr enables SO_REUSEADDR.
func SetReuseAddr(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	return nil
}

// SetV6Only keeps an IPv6 listener off the IPv4 space so both families can
// be bound on the same port. It is a no-op for IPv4 endpoints.
func SetV6Only(fd int, ap netip.AddrPort) error {
	if family(ap) != unix.AF_INET6 {
		return nil
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
		return fmt.Errorf("setsockopt IPV6_V6ONLY: %w", err)
	}
	return nil
}

// Bind binds fd to ap.
func Bind(fd int, ap netip.AddrPort) error {
	if err := unix.Bind(fd, sockaddr(ap)); err != nil {
		return api.WrapError(api.ErrCodeBind, fmt.Errorf("bind %s: %w", ap, err))
	}
	return nil
}

// Listen marks fd as a listening socket with the given backlog.
func Listen(fd, backlog int) error {
	if err := unix.Listen(fd, backlog); err != nil {
		return api.WrapError(api.ErrCodeListen, fmt.Errorf("listen: %w", err))
	}
	return nil
}

// SetNonblock switches fd to non-blocking mode.
func SetNonblock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("fcntl O_NONBLOCK: %w", err)
	}
	return nil
}

// Accept takes one pending connection from a non-blocking listener. The
// returned descriptor is blocking. A listener with nothing pending returns
// an error for which IsWouldBlock is true.
func Accept(fd int) (int, string, error) {
	for {
		nfd, sa, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, "", api.WrapError(api.ErrCodeAccept, fmt.Errorf("accept: %w", err))
		}
		return nfd, formatSockaddr(sa), nil
	}
}

// connectPollSlice bounds each readiness wait of a pending connect so a
// cancelled context is noticed promptly.
const connectPollSlice = 50 * time.Millisecond

// Connect connects a blocking socket to ap.
func Connect(fd int, ap netip.AddrPort) error {
	return ConnectContext(context.Background(), fd, ap)
}

// ConnectContext connects fd to ap, giving up once ctx is done. The connect
// runs non-blocking and completion is awaited through poll; fd is blocking
// again when ConnectContext returns.
func ConnectContext(ctx context.Context, fd int, ap netip.AddrPort) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("fcntl O_NONBLOCK: %w", err)
	}
	defer func() { _ = unix.SetNonblock(fd, false) }()

	err := unix.Connect(fd, sockaddr(ap))
	if err == nil {
		return nil
	}
	if err != unix.EINTR && err != unix.EINPROGRESS {
		return api.WrapError(api.ErrCodeConnect, fmt.Errorf("connect %s: %w", ap, err))
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		if err := ctx.Err(); err != nil {
			return api.WrapError(api.ErrCodeConnect, fmt.Errorf("connect %s: %w", ap, err))
		}
		n, err := unix.Poll(fds, int(connectPollSlice/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return api.WrapError(api.ErrCodeConnect, fmt.Errorf("connect %s: poll: %w", ap, err))
		}
		if n > 0 {
			break
		}
	}
	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("connect %s: getsockopt: %w", ap, err)
	}
	if soErr != 0 {
		return api.WrapError(api.ErrCodeConnect, fmt.Errorf("connect %s: %w", ap, unix.Errno(soErr)))
	}
	return nil
}

// Recv reads once from fd into buf. Interrupted reads are retried.
func Recv(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// Send writes once to fd. MSG_NOSIGNAL turns a dead peer into EPIPE instead
// of a process-wide SIGPIPE.
func Send(fd int, p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// SetLingerZero makes a later Close reset the connection instead of
// shutting it down gracefully.
func SetLingerZero(fd int) error {
	if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0}); err != nil {
		return fmt.Errorf("setsockopt SO_LINGER: %w", err)
	}
	return nil
}

// ShutdownWrite half-closes fd: the peer sees end-of-stream, reads continue.
func ShutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

// ShutdownBoth stops both directions, waking a reader blocked on fd.
func ShutdownBoth(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_RDWR)
}

// Close releases fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// LocalAddr returns the bound address of fd.
func LocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("getsockname: %w", err)
	}
	return addrPort(sa), nil
}

// PeerAddr returns the remote address of a connected fd as host:port.
func PeerAddr(fd int) string {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return ""
	}
	return formatSockaddr(sa)
}

// WaitReadable blocks until one of fds is readable or timeout elapses.
// Descriptors closed underneath the wait report as ready so the caller can
// notice the change on its next pass.
func WaitReadable(fds []int, timeout time.Duration) (int, error) {
	if len(fds) == 0 {
		time.Sleep(timeout)
		return 0, nil
	}
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	n, err := unix.Poll(pfds, int(timeout/time.Millisecond))
	if err == unix.EINTR {
		return 0, nil
	}
	return n, err
}

// IsWouldBlock reports a transient "no data / no connection yet" condition.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// IsBrokenPipe reports a peer that went away while we were writing.
func IsBrokenPipe(err error) bool {
	return errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET)
}

// IsNotConnected reports a shutdown on a connection the peer already tore down.
func IsNotConnected(err error) bool {
	return errors.Is(err, unix.ENOTCONN)
}

// IsTransientAccept reports accept failures that concern one pending
// connection or a momentary resource shortage rather than the listener.
func IsTransientAccept(err error) bool {
	switch {
	case errors.Is(err, unix.ECONNABORTED), errors.Is(err, unix.EPROTO), errors.Is(err, unix.EINTR):
		return true
	case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE), errors.Is(err, unix.ENOBUFS), errors.Is(err, unix.ENOMEM):
		return true
	}
	return false
}

func family(ap netip.AddrPort) int {
	if ap.Addr().Unmap().Is4() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func sockaddr(ap netip.AddrPort) unix.Sockaddr {
	addr := ap.Addr().Unmap()
	if addr.Is4() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}
	}
	sa := &unix.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16()}
	if zone := addr.Zone(); zone != "" {
		if ifi, err := net.InterfaceByName(zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return sa
}

func addrPort(sa unix.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port))
	default:
		return netip.AddrPort{}
	}
}

func formatSockaddr(sa unix.Sockaddr) string {
	ap := addrPort(sa)
	if !ap.IsValid() {
		return ""
	}
	return ap.String()
}
