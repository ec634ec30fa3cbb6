package session

import (
	"time"

	"drinksync/internal/capability"
	"drinksync/internal/metrics"
	"drinksync/util"
)

// DefaultOutboxSize is how many sends may wait for the write loop
// before Send starts failing with ErrBufferFull.
const DefaultOutboxSize = 64

// options holds the configuration for a Controller.
type options struct {
	listener       Listener
	checker        capability.Checker
	dispatcher     Dispatcher
	logger         *util.Logger
	metrics        *metrics.Collector
	readSize       int
	outboxSize     int
	connectTimeout time.Duration
}

func defaultOptions() options {
	return options{
		listener:   NopListener{},
		checker:    capability.Granted,
		readSize:   util.ReadChunkSize,
		outboxSize: DefaultOutboxSize,
	}
}

// Option configures a Controller.
type Option func(*options)

// WithListener sets the initial listener.  Change it later with
// Controller.SetListener.
func WithListener(l Listener) Option {
	return func(o *options) {
		if l != nil {
			o.listener = l
		}
	}
}

// WithChecker sets the capability consulted before every connect and
// accept.  The default always grants.
func WithChecker(c capability.Checker) Option {
	return func(o *options) {
		if c != nil {
			o.checker = c
		}
	}
}

// WithDispatcher replaces the default serial callback queue.
func WithDispatcher(d Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// WithLogger sets the logger.  The default logs errors only.
func WithLogger(l *util.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records session counters into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithReadBufferSize sets the receive chunk size.  Each read of up to
// size bytes becomes one OnMessageReceived.
func WithReadBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.readSize = size
		}
	}
}

// WithOutboxSize sets how many sends may be queued per connection.
func WithOutboxSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.outboxSize = size
		}
	}
}

// WithConnectTimeout bounds each dial or accept.  Zero waits until the
// attempt completes or Close is called.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = d
	}
}
