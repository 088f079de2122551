//go:build !linux
// +build !linux

// internal/transport/transport_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Placeholder for platforms without raw descriptor support.

package transport

import (
	"context"
	"net/netip"
	"time"

	"github.com/momentics/evsock/api"
)

// Supported reports whether descriptor operations are available on this platform.
const Supported = false

func OpenStream(netip.AddrPort) (int, error)        { return -1, api.ErrNotSupported }
func SetReuseAddr(int) error                        { return api.ErrNotSupported }
func SetV6Only(int, netip.AddrPort) error           { return api.ErrNotSupported }
func Bind(int, netip.AddrPort) error                { return api.ErrNotSupported }
func Listen(int, int) error                         { return api.ErrNotSupported }
func SetNonblock(int) error                         { return api.ErrNotSupported }
func Accept(int) (int, string, error)               { return -1, "", api.ErrNotSupported }
func Connect(int, netip.AddrPort) error             { return api.ErrNotSupported }
func Recv(int, []byte) (int, error)                 { return 0, api.ErrNotSupported }
func Send(int, []byte) (int, error)                 { return 0, api.ErrNotSupported }
func ShutdownWrite(int) error                       { return api.ErrNotSupported }
func ShutdownBoth(int) error                        { return api.ErrNotSupported }
func Close(int) error                               { return api.ErrNotSupported }
func LocalAddr(int) (netip.AddrPort, error)         { return netip.AddrPort{}, api.ErrNotSupported }
func PeerAddr(int) string                           { return "" }
func WaitReadable([]int, time.Duration) (int, error) { return 0, api.ErrNotSupported }
func IsWouldBlock(error) bool                       { return false }
func IsBrokenPipe(error) bool                       { return false }
func IsTransientAccept(error) bool                  { return false }
func IsNotConnected(error) bool                     { return false }

func ConnectContext(context.Context, int, netip.AddrPort) error {
	return api.ErrNotSupported
}

func SetLingerZero(int) error {
	return api.ErrNotSupported
}
