// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for evsock.
//
// Provides:
//   - Config loading through viper (defaults, file, EVSOCK_* env, flags)
//     with reload hooks when the config file changes
//   - Prometheus metrics for sockets and servers
//   - Named debug probes for state dumps
//   - A chi-routed admin handler serving metrics, probes and liveness
package control
