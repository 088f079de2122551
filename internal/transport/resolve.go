// File: internal/transport/resolve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Host and service resolution for listen and connect candidates.

package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/momentics/evsock/api"
)

// Wildcard is the host spelling for "any local address".
const Wildcard = "*"

// IsWildcard reports whether host asks for every local address.
func IsWildcard(host string) bool {
	return host == "" || host == Wildcard
}

// Resolve turns host and port into an ordered list of stream endpoints.
// With passive set, a wildcard host yields one IPv4 and one IPv6 any-address
// so a server can listen on both families independently.
func Resolve(ctx context.Context, host string, port int, passive bool) ([]netip.AddrPort, error) {
	if port < 0 || port > 65535 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, fmt.Sprintf("port out of range: %d", port)).
			WithContext("port", port)
	}
	p := uint16(port)
	if IsWildcard(host) {
		if passive {
			return []netip.AddrPort{
				netip.AddrPortFrom(netip.IPv4Unspecified(), p),
				netip.AddrPortFrom(netip.IPv6Unspecified(), p),
			}, nil
		}
		host = "localhost"
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.AddrPort{netip.AddrPortFrom(addr.Unmap(), p)}, nil
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, &api.Error{
			Code:    api.ErrCodeResolve,
			Message: fmt.Sprintf("%s: %v", api.ErrResolve, err),
			Context: map[string]any{"host": host},
			Err:     fmt.Errorf("%w: %w", api.ErrResolve, err),
		}
	}
	out := make([]netip.AddrPort, 0, len(addrs))
	seen := make(map[netip.Addr]struct{}, len(addrs))
	for _, a := range addrs {
		a = a.Unmap()
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, netip.AddrPortFrom(a, p))
	}
	if len(out) == 0 {
		return nil, api.NewError(api.ErrCodeResolve, fmt.Sprintf("%s: no addresses for %q", api.ErrResolve, host))
	}
	return out, nil
}

// LookupPort accepts a numeric port or a service name ("http", "ssh").
func LookupPort(service string) (int, error) {
	if n, err := strconv.Atoi(service); err == nil {
		if n < 0 || n > 65535 {
			return 0, fmt.Errorf("%w: port out of range: %d", api.ErrInvalidArgument, n)
		}
		return n, nil
	}
	n, err := net.LookupPort("tcp", service)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", api.ErrResolve, err)
	}
	return n, nil
}
