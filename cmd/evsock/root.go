// File: cmd/evsock/root.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/momentics/evsock/control"
	"github.com/momentics/evsock/socket"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "evsock",
		Short: "Callback-driven TCP sockets",
		Long: TitleStyle.Render("evsock") + SubtitleStyle.Render(" - callback-driven TCP sockets") + `

Handlers are attached to connection lifecycle events (CONNECT, DATA, END,
ERROR, LISTENING, CONNECTION) and evsock owns the I/O goroutines.

` + SubtitleStyle.Render("Examples:") + `
  evsock serve --port 2212          Run the sample server on every local address
  evsock connect --host localhost   Send stdin lines to a server
  EVSOCK_LOG_LEVEL=debug evsock serve`,
		SilenceUsage: true,
	}
)

func init() {
	defaults := control.DefaultConfig()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (any format viper reads)")
	pf.String("log-level", defaults.LogLevel, "log level: debug, info, warn, error")
	pf.String("host", defaults.Host, `host to listen on or connect to ("*" means every local address)`)
	pf.String("port", defaults.Port, "port number or service name")
	pf.Int("recv-buffer-size", defaults.RecvBufferSize, "receive buffer size, the largest DATA chunk")
	pf.Int("max-pending-chunks", defaults.MaxPendingChunks, "chunks held while no DATA handler is registered")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(versionCmd)
}

func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}

// cliEnv is what every subcommand needs: the validated config, the loader
// for reloads and a logger at the configured level.
type cliEnv struct {
	loader *control.Loader
	cfg    *control.Config
	logger *log.Logger
}

func loadEnv(cmd *cobra.Command) (*cliEnv, error) {
	loader, err := control.NewLoader(control.LoadOptions{ConfigFile: cfgFile, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}
	cfg, err := loader.Config()
	if err != nil {
		return nil, err
	}
	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Prefix:          "evsock",
		ReportTimestamp: true,
	})
	applyLogLevel(logger, cfg.LogLevel)

	loader.OnReload(func(c *control.Config) {
		applyLogLevel(logger, c.LogLevel)
		logger.Info("configuration reloaded", "log_level", c.LogLevel)
	})
	return &cliEnv{loader: loader, cfg: cfg, logger: logger}, nil
}

func applyLogLevel(logger *log.Logger, level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Warn(WarningStyle.Render("unknown log level, keeping current"), "log_level", level)
		return
	}
	logger.SetLevel(lvl)
}

// socketOptions turns the shared config into socket/server options.
func socketOptions(cfg *control.Config, logger *log.Logger, m *control.Metrics) []socket.Option {
	return []socket.Option{
		socket.WithLogger(logger),
		socket.WithMetrics(m),
		socket.WithRecvBufferSize(cfg.RecvBufferSize),
		socket.WithMaxPendingChunks(cfg.MaxPendingChunks),
		socket.WithListenBacklog(cfg.ListenBacklog),
		socket.WithAcceptInterval(cfg.AcceptInterval),
	}
}
