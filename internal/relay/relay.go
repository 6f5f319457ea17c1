package relay

import (
	"context"
	"sync/atomic"
	"time"

	"TradeDesk/internal/domain/models"
	drepo "TradeDesk/internal/domain/repository"
	applogger "TradeDesk/pkg/logger"
	"TradeDesk/pkg/metrics"

	"github.com/gorilla/websocket"
)

// Option configures Relay.
type Option func(*Config)

// Config holds per-session tuning shared by all sessions of a Relay.
type Config struct {
	PingInterval    time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	MaxAttempts     int
	SendBuffer      int
	SnapshotTimeout time.Duration
	DialTimeout     time.Duration
	Debug           bool
}

// Relay creates one Session per client connection. Sessions share only immutable dependencies.
type Relay struct {
	cfg     Config
	dialer  drepo.UpstreamDialer
	quotes  drepo.QuoteProvider
	sink    drepo.PriceSink
	metrics drepo.Metrics
	log     *applogger.Logger
	active  atomic.Int64

	// base is cancelled by Shutdown and ends every session
	base     context.Context
	shutdown context.CancelFunc
}

// New creates a Relay. sink and m may be nil.
func New(dialer drepo.UpstreamDialer, quotes drepo.QuoteProvider, sink drepo.PriceSink, m drepo.Metrics, l *applogger.Logger, opts ...Option) *Relay {
	cfg := Config{
		PingInterval:    30 * time.Second,
		BackoffBase:     time.Second,
		BackoffMax:      30 * time.Second,
		MaxAttempts:     5,
		SendBuffer:      256,
		SnapshotTimeout: 10 * time.Second,
		DialTimeout:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if sink == nil {
		sink = discardSink{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	r := &Relay{cfg: cfg, dialer: dialer, quotes: quotes, sink: sink, metrics: m, log: l}
	r.base, r.shutdown = context.WithCancel(context.Background())
	return r
}

// Serve runs a session on an upgraded client connection and blocks until it ends.
// The connection is closed on return.
func (r *Relay) Serve(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.base, cancel)
	defer stop()

	r.active.Add(1)
	r.metrics.RecordSessions(1)
	defer func() {
		r.active.Add(-1)
		r.metrics.RecordSessions(-1)
	}()

	newSession(r, conn).run(ctx)
}

// Shutdown ends all running sessions. Serve calls made afterwards return immediately.
func (r *Relay) Shutdown() {
	r.shutdown()
}

// ActiveSessions returns the number of connected clients.
func (r *Relay) ActiveSessions() int64 { return r.active.Load() }

// WithPingInterval sets the upstream heartbeat interval.
func WithPingInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PingInterval = d
		}
	}
}

// WithBackoff sets the reconnect base delay and cap.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Config) {
		if base > 0 {
			c.BackoffBase = base
		}
		if max >= c.BackoffBase {
			c.BackoffMax = max
		}
	}
}

// WithMaxAttempts sets how many reconnects are tried before giving up.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxAttempts = n
		}
	}
}

// WithSendBuffer sets the per-client outbound queue length.
func WithSendBuffer(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SendBuffer = n
		}
	}
}

// WithSnapshotTimeout bounds each snapshot quote fetch.
func WithSnapshotTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.SnapshotTimeout = d
		}
	}
}

// WithDebugMessages enables diagnostic debug frames to the client.
func WithDebugMessages(enabled bool) Option {
	return func(c *Config) {
		c.Debug = enabled
	}
}

type discardSink struct{}

func (discardSink) Enqueue(*models.PriceRecord) {}
