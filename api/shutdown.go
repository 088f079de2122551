// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "context"

// GracefulShutdown stops a component and releases everything it owns.
// When ctx expires before the graceful path completes, implementations
// force the remaining work down and still wait for it before returning.
type GracefulShutdown interface {
	Shutdown(ctx context.Context) error
}
