//go:build linux

package socket_test

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/momentics/evsock/control"
	"github.com/momentics/evsock/socket"
)

const testTimeout = 5 * time.Second

func quiet() socket.Option {
	return socket.WithLogger(log.New(io.Discard))
}

// collector gathers DATA chunks and signals END.
type collector struct {
	mu   sync.Mutex
	data bytes.Buffer
	ends int
	done chan struct{}
}

func newCollector() *collector {
	return &collector{done: make(chan struct{})}
}

func (c *collector) onData(p []byte) {
	c.mu.Lock()
	c.data.Write(p)
	c.mu.Unlock()
}

func (c *collector) onEnd() {
	c.mu.Lock()
	c.ends++
	first := c.ends == 1
	c.mu.Unlock()
	if first {
		close(c.done)
	}
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.String()
}

func (c *collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Len()
}

func (c *collector) Ends() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ends
}

func (c *collector) bind(s *socket.Socket) *socket.Socket {
	return s.On(socket.OnData(c.onData)).On(socket.OnEnd(c.onEnd))
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(testTimeout):
		require.FailNow(t, "timed out waiting for "+what)
	}
}

// listenLoopback starts srv on an ephemeral loopback port and returns it.
func listenLoopback(t *testing.T, srv *socket.Server) int {
	t.Helper()
	port := 0
	srv.On(socket.OnListening(func(p int, _ string) { port = p }))
	srv.Listen(0, "127.0.0.1")
	require.NotZero(t, port, "server did not report LISTENING")
	return port
}

// metricValue sums every series of the named family.
func metricValue(t *testing.T, m *control.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var v float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				v += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				v += metric.GetGauge().GetValue()
			}
		}
	}
	return v
}
