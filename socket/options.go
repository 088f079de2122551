// File: socket/options.go
// Package socket defines functional options shared by Socket and Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/momentics/evsock/api"
	"github.com/momentics/evsock/control"
	"github.com/momentics/evsock/pool"
)

const (
	// DefaultListenBacklog is the listen(2) queue length.
	DefaultListenBacklog = 100
	// DefaultAcceptInterval bounds how long one accept pass waits for readiness.
	DefaultAcceptInterval = 100 * time.Millisecond
	// DefaultMaxPendingChunks caps received chunks held while no DATA handler is set.
	DefaultMaxPendingChunks = 64
)

var defaultLogger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "evsock"})

type options struct {
	logger         *log.Logger
	metrics        *control.Metrics
	pool           api.BytePool
	maxPending     int
	backlog        int
	acceptInterval time.Duration
}

func defaultOptions() options {
	return options{
		logger:         defaultLogger,
		pool:           pool.Shared(pool.DefaultBufferSize),
		maxPending:     DefaultMaxPendingChunks,
		backlog:        DefaultListenBacklog,
		acceptInterval: DefaultAcceptInterval,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option customizes a Socket or Server. Servers pass their options on to
// every Socket they accept.
type Option func(*options)

// WithLogger sets the logger used for default ERROR handlers and lifecycle tracing.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records traffic and events into m.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRecvBufferSize sets the receive buffer length, i.e. the largest DATA chunk.
func WithRecvBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pool = pool.Shared(n)
		}
	}
}

// WithBytePool supplies the receive buffer pool directly.
func WithBytePool(p api.BytePool) Option {
	return func(o *options) {
		if p != nil {
			o.pool = p
		}
	}
}

// WithMaxPendingChunks sets how many received chunks may wait for a DATA
// handler before the receive loop stops reading.
func WithMaxPendingChunks(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPending = n
		}
	}
}

// WithListenBacklog overrides the listen(2) backlog.
func WithListenBacklog(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.backlog = n
		}
	}
}

// WithAcceptInterval overrides the accept pass wait.
func WithAcceptInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.acceptInterval = d
		}
	}
}
