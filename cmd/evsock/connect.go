// File: cmd/evsock/connect.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/momentics/evsock/api"
	"github.com/momentics/evsock/internal/transport"
	"github.com/momentics/evsock/socket"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Send stdin lines to a server and print what comes back",
	Long: `Connect to host:port, send every stdin line, print received data to stdout.
On end of input the write side is closed and the command exits once the
server closes its side too.`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

// halfCloser is the part of a socket the stdin pump writes to.
type halfCloser interface {
	WriteString(s string) (int, error)
	End(data ...[]byte) error
}

func runConnect(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	port, err := transport.LookupPort(env.cfg.Port)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var outMu sync.Mutex
	connected := make(chan struct{})
	ended := make(chan struct{})
	failed := make(chan string, 1)

	s := socket.NewSocket(socketOptions(env.cfg, env.logger, nil)...).
		On(socket.OnConnect(func() { close(connected) })).
		On(socket.OnData(func(p []byte) {
			outMu.Lock()
			defer outMu.Unlock()
			_, _ = out.Write(p)
		})).
		On(socket.OnError(func(msg string) {
			env.logger.Error("connection error", "err", msg)
			select {
			case failed <- msg:
			default:
			}
		})).
		On(socket.OnEnd(func() { close(ended) }))

	if err := s.Connect(port, env.cfg.Host); err != nil {
		return err
	}
	select {
	case <-connected:
	case msg := <-failed:
		s.Wait()
		return fmt.Errorf("%w: %s", api.ErrConnectFailed, msg)
	case <-cmd.Context().Done():
		_ = s.Close()
		s.Wait()
		return nil
	}

	go func() {
		if err := pumpLines(cmd.InOrStdin(), s); err != nil {
			env.logger.Warn("input stopped", "err", err)
		}
	}()

	select {
	case <-ended:
	case <-cmd.Context().Done():
		_ = s.Close()
	}
	s.Wait()
	return nil
}

// pumpLines sends every line of r, newline included, then half-closes w.
func pumpLines(r io.Reader, w halfCloser) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if _, err := w.WriteString(sc.Text() + "\n"); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		_ = w.End()
		return fmt.Errorf("read input: %w", err)
	}
	return w.End()
}
