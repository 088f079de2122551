//go:build linux

package socket_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/evsock/api"
	"github.com/momentics/evsock/control"
	"github.com/momentics/evsock/socket"
)

func TestServerListeningIsSynchronous(t *testing.T) {
	var events []string
	srv := socket.NewServer(nil, quiet()).
		On(socket.OnListening(func(port int, host string) {
			events = append(events, host)
			assert.NotZero(t, port)
		}))
	srv.Listen(0, "127.0.0.1")
	defer srv.Close()

	require.Equal(t, []string{"127.0.0.1"}, events)
	addrs := srv.Addrs()
	require.Len(t, addrs, 1)
	assert.True(t, strings.HasPrefix(addrs[0], "127.0.0.1:"))
}

func TestServerWildcardListensPerFamily(t *testing.T) {
	var count atomic.Int32
	srv := socket.NewServer(nil, quiet()).
		On(socket.OnListening(func() { count.Add(1) }))
	srv.Listen(0, "*")
	defer srv.Close()

	require.GreaterOrEqual(t, int(count.Load()), 1)
	assert.Len(t, srv.Addrs(), int(count.Load()))
}

func TestServerGreetsAndEchoes(t *testing.T) {
	srv := socket.NewServer(func(c *socket.Socket) {
		_, _ = c.WriteString("hi from server")
		c.On(socket.OnData(func(d string) {
			_, _ = c.WriteString("echo:" + d)
		}))
	}, quiet())
	port := listenLoopback(t, srv)
	defer srv.Close()

	col := newCollector()
	client := col.bind(socket.NewSocket(quiet()))
	client.On(socket.OnConnect(func(c *socket.Socket) {
		_, _ = c.WriteString("abc")
	}))
	require.NoError(t, client.Connect(port, "127.0.0.1"))

	want := "hi from serverecho:abc"
	require.Eventually(t, func() bool { return col.Len() == len(want) }, testTimeout, 5*time.Millisecond)
	require.NoError(t, client.End())
	waitClosed(t, col.done, "client END")
	client.Wait()

	assert.Equal(t, want, col.String())
	require.Eventually(t, func() bool { return srv.ConnectionCount() == 0 }, testTimeout, 5*time.Millisecond)
}

func TestServerHalfCloseRoundTrip(t *testing.T) {
	serverGot := make(chan string, 1)
	srv := socket.NewServer(func(c *socket.Socket) {
		var buf strings.Builder
		c.On(socket.OnEnd(func(c *socket.Socket) {
			serverGot <- buf.String()
		}))
		c.On(socket.OnData(func(d string) {
			buf.WriteString(d)
			if strings.HasSuffix(buf.String(), "\n") {
				_ = c.End([]byte("bye"))
			}
		}))
	}, quiet())
	port := listenLoopback(t, srv)
	defer srv.Close()

	col := newCollector()
	client := col.bind(socket.NewSocket(quiet()))
	client.On(socket.OnConnect(func(c *socket.Socket) {
		_, _ = c.WriteString("request\n")
	}))
	client.On(socket.OnEnd(func(c *socket.Socket) {
		_ = c.End()
		col.onEnd()
	}))
	require.NoError(t, client.Connect(port, "127.0.0.1"))
	waitClosed(t, col.done, "client END")
	client.Wait()

	assert.Equal(t, "bye", col.String())
	select {
	case got := <-serverGot:
		assert.Equal(t, "request\n", got)
	case <-time.After(testTimeout):
		require.FailNow(t, "server END not fired")
	}
}

func TestServerListenTwiceFiresError(t *testing.T) {
	var errs []string
	srv := socket.NewServer(nil, quiet()).
		On(socket.OnError(func(msg string) { errs = append(errs, msg) }))
	listenLoopback(t, srv)
	defer srv.Close()

	srv.Listen(0, "127.0.0.1")
	require.Len(t, errs, 1)
	assert.Equal(t, api.ErrAlreadyListening.Error(), errs[0])
	assert.Len(t, srv.Addrs(), 1)
}

func TestServerLastConnectionHandlerWins(t *testing.T) {
	var first atomic.Int32
	second := make(chan int, 1)
	srv := socket.NewServer(func(*socket.Socket) { first.Add(1) }, quiet())
	srv.On(socket.OnConnection(func(fd int) { second <- fd }))
	port := listenLoopback(t, srv)
	defer srv.Close()

	col := newCollector()
	client := col.bind(socket.NewSocket(quiet()))
	connected := make(chan struct{})
	client.On(socket.OnConnect(func() { close(connected) }))
	require.NoError(t, client.Connect(port, "127.0.0.1"))

	select {
	case fd := <-second:
		assert.Greater(t, fd, 0)
	case <-time.After(testTimeout):
		require.FailNow(t, "CONNECTION not fired")
	}
	waitClosed(t, connected, "client CONNECT")
	require.NoError(t, client.Close())
	waitClosed(t, col.done, "client END")
	client.Wait()
	assert.Zero(t, first.Load())
}

func TestServerConnectionPanicBecomesError(t *testing.T) {
	errs := make(chan string, 4)
	srv := socket.NewServer(func(*socket.Socket) { panic("bad connection handler") }, quiet()).
		On(socket.OnError(func(msg string) { errs <- msg }))
	port := listenLoopback(t, srv)
	defer srv.Close()

	col := newCollector()
	client := col.bind(socket.NewSocket(quiet()))
	connected := make(chan struct{})
	client.On(socket.OnConnect(func() { close(connected) }))
	require.NoError(t, client.Connect(port, "127.0.0.1"))

	select {
	case msg := <-errs:
		assert.Contains(t, msg, "panic in CONNECTION handler")
	case <-time.After(testTimeout):
		require.FailNow(t, "ERROR not fired")
	}
	waitClosed(t, connected, "client CONNECT")
	require.NoError(t, client.Close())
	waitClosed(t, col.done, "client END")
	client.Wait()
}

func TestServerShutdownForceClosesConnections(t *testing.T) {
	m := control.NewMetrics()
	srv := socket.NewServer(nil, quiet(), socket.WithMetrics(m))
	port := listenLoopback(t, srv)

	col := newCollector()
	client := col.bind(socket.NewSocket(quiet()))
	require.NoError(t, client.Connect(port, "127.0.0.1"))
	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, testTimeout, 5*time.Millisecond)

	var infos []socket.ConnInfo
	srv.GetConnections(func(ci socket.ConnInfo) { infos = append(infos, ci) })
	require.Len(t, infos, 1)
	assert.NotZero(t, infos[0].ID)
	assert.NotEmpty(t, infos[0].RemoteAddr)
	assert.Equal(t, 1, srv.Debug().DumpState()["connections"])

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := srv.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, srv.ConnectionCount())
	assert.Empty(t, srv.Addrs())

	waitClosed(t, col.done, "client END")
	client.Wait()

	assert.Equal(t, 1.0, metricValue(t, m, "evsock_connections_accepted_total"))
	assert.Equal(t, 0.0, metricValue(t, m, "evsock_active_connections"))
	assert.Equal(t, 0.0, metricValue(t, m, "evsock_listening_sockets"))
}

func TestServerCloseWithoutConnections(t *testing.T) {
	srv := socket.NewServer(nil, quiet())
	listenLoopback(t, srv)
	require.NoError(t, srv.Close())
	assert.Empty(t, srv.Addrs())

	idle := socket.NewServer(nil, quiet())
	assert.NoError(t, idle.Close())
}

func TestServerManyClients(t *testing.T) {
	var served atomic.Int32
	srv := socket.NewServer(func(c *socket.Socket) {
		c.On(socket.OnData(func(d string) {
			_ = c.End([]byte(strings.ToUpper(d)))
		}))
		served.Add(1)
	}, quiet())
	port := listenLoopback(t, srv)
	defer srv.Close()

	const clients = 8
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			col := newCollector()
			c := col.bind(socket.NewSocket(quiet()))
			c.On(socket.OnConnect(func(c *socket.Socket) { _, _ = c.WriteString("ping") }))
			c.On(socket.OnEnd(func(c *socket.Socket) {
				_ = c.End()
				col.onEnd()
			}))
			if !assert.NoError(t, c.Connect(port, "127.0.0.1")) {
				return
			}
			select {
			case <-col.done:
			case <-time.After(testTimeout):
				assert.Fail(t, "client timed out")
				_ = c.Close()
			}
			c.Wait()
			assert.Equal(t, "PING", col.String())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(clients), served.Load())
}

func TestServerEndThenClientReplies(t *testing.T) {
	serverGot := make(chan string, 1)
	srv := socket.NewServer(func(c *socket.Socket) {
		var buf strings.Builder
		c.On(socket.OnData(func(d string) { buf.WriteString(d) }))
		c.On(socket.OnEnd(func() { serverGot <- buf.String() }))
		_ = c.End([]byte("hello"))
	}, quiet())
	port := listenLoopback(t, srv)
	defer srv.Close()

	col := newCollector()
	client := socket.NewSocket(quiet()).
		On(socket.OnData(col.onData)).
		On(socket.OnEnd(func(c *socket.Socket) {
			_, _ = c.WriteString("bye")
			_ = c.End()
			col.onEnd()
		}))
	require.NoError(t, client.Connect(port, "127.0.0.1"))
	waitClosed(t, col.done, "client END")
	client.Wait()
	assert.Equal(t, "hello", col.String())

	select {
	case got := <-serverGot:
		assert.Equal(t, "bye", got)
	case <-time.After(testTimeout):
		require.FailNow(t, "server END not fired")
	}
}

func TestServerCloseStartedFromHandler(t *testing.T) {
	closed := make(chan error, 1)
	var srv *socket.Server
	srv = socket.NewServer(func(c *socket.Socket) {
		c.On(socket.OnData(func(string) {
			go func() { closed <- srv.Close() }()
			_ = c.End()
		}))
	}, quiet())
	port := listenLoopback(t, srv)

	col := newCollector()
	client := col.bind(socket.NewSocket(quiet()))
	client.On(socket.OnConnect(func(c *socket.Socket) { _, _ = c.WriteString("stop") }))
	client.On(socket.OnEnd(func(c *socket.Socket) {
		_ = c.End()
		col.onEnd()
	}))
	require.NoError(t, client.Connect(port, "127.0.0.1"))
	waitClosed(t, col.done, "client END")
	client.Wait()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		require.FailNow(t, "server Close did not return")
	}
	assert.Empty(t, srv.Addrs())
	assert.Zero(t, srv.ConnectionCount())
}
