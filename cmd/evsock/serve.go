// File: cmd/evsock/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/momentics/evsock/api"
	"github.com/momentics/evsock/control"
	"github.com/momentics/evsock/internal/transport"
	"github.com/momentics/evsock/socket"
)

const shutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sample callback server",
	Long: `Run the sample server. Every received chunk is answered with ">>" and the
chunk; a chunk starting with "end" is answered with "goodbye", half-closes that
connection and stops the server. Try it with: nc localhost 2212`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	defaults := control.DefaultConfig()
	f := serveCmd.Flags()
	f.Int("listen-backlog", defaults.ListenBacklog, "listen(2) backlog")
	f.Duration("accept-interval", defaults.AcceptInterval, "how long one accept pass waits for readiness")
	f.String("metrics-addr", defaults.MetricsAddr, "serve /metrics, /debug/state and /healthz on this address")
	f.Bool("debug", false, "dump server state on exit")
}

func runServe(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	port, err := transport.LookupPort(env.cfg.Port)
	if err != nil {
		return err
	}

	metrics := control.NewMetrics()
	stop := make(chan struct{})
	var stopOnce sync.Once
	srv := newSampleServer(cmd.OutOrStdout(), env.logger, func() {
		stopOnce.Do(func() { close(stop) })
	}, socketOptions(env.cfg, env.logger, metrics)...)

	srv.Listen(port, env.cfg.Host)
	if len(srv.Addrs()) == 0 {
		return api.ErrNoListeners
	}

	var admin *http.Server
	if env.cfg.MetricsAddr != "" {
		admin = startAdmin(env.cfg.MetricsAddr, control.NewAdminHandler(metrics, srv.Debug()), env.logger)
	}

	select {
	case <-stop:
		env.logger.Info("stop requested by client")
	case <-cmd.Context().Done():
		env.logger.Info("signal received, shutting down")
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		dumpState(cmd.OutOrStdout(), srv.Debug())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if admin != nil {
		_ = admin.Shutdown(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil {
		env.logger.Warn("connections force-closed", "err", err)
	}
	return nil
}

// newSampleServer builds the echo-style server; stop is called when a
// client sends a chunk starting with "end".
func newSampleServer(out io.Writer, logger *log.Logger, stop func(), opts ...socket.Option) *socket.Server {
	var outMu sync.Mutex
	srv := socket.NewServer(func(c *socket.Socket) {
		remote := c.RemoteAddr()
		logger.Debug("client connected", "remote", remote)
		c.On(socket.OnData(func(data string) {
			outMu.Lock()
			fmt.Fprintf(out, "<<%s\n", data)
			outMu.Unlock()
			if strings.HasPrefix(data, "end") {
				_ = c.End([]byte("goodbye"))
				stop()
				return
			}
			if _, err := c.WriteString(">>" + data); err != nil {
				logger.Warn("reply failed", "remote", remote, "err", err)
			}
		}))
		c.On(socket.OnEnd(func() {
			logger.Debug("client disconnected", "remote", remote)
		}))
	}, opts...)

	srv.On(socket.OnListening(func(port int, host string) {
		logger.Info(SuccessStyle.Render("listening"), "port", port, "addr", host)
	}))
	srv.On(socket.OnError(func(msg string) {
		logger.Error("server error", "err", msg)
	}))
	return srv
}

func startAdmin(addr string, h http.Handler, logger *log.Logger) *http.Server {
	admin := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin endpoint failed", "addr", addr, "err", err)
		}
	}()
	logger.Info("admin endpoint", "addr", addr)
	return admin
}

func dumpState(out io.Writer, dbg api.Debug) {
	state := dbg.DumpState()
	fmt.Fprintln(out, TitleStyle.Render("server state"))
	for _, name := range slices.Sorted(maps.Keys(state)) {
		fmt.Fprintf(out, "  %s: %v\n", name, state[name])
	}
}
