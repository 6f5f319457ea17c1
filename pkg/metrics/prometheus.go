package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	sessions     prometheus.Gauge
	reconnects   *prometheus.CounterVec
}

// New creates a Prometheus recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder bound to reg (tests pass a fresh registry).
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedesk_messages_sent_total",
				Help: "Total number of price records handed to a persistence backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedesk_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradedesk_last_price",
				Help: "Last relayed price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradedesk_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		sessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradedesk_relay_sessions",
				Help: "Currently open relay client sessions",
			},
		),
		reconnects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedesk_relay_reconnects_total",
				Help: "Upstream reconnect attempts by result",
			},
			[]string{"result"},
		),
	}
}

// RecordMessageSent records a record sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordSessions adjusts the open session gauge.
func (r *Recorder) RecordSessions(delta int) {
	r.sessions.Add(float64(delta))
}

// RecordReconnect counts an upstream reconnect attempt ("ok", "error", "exhausted").
func (r *Recorder) RecordReconnect(result string) {
	r.reconnects.WithLabelValues(result).Inc()
}

// Nop discards everything. Useful in tests and when metrics are disabled.
type Nop struct{}

func (Nop) RecordMessageSent(string, string) {}
func (Nop) RecordError(string)               {}
func (Nop) RecordLastPrice(string, float64)  {}
func (Nop) RecordLatency(string, float64)    {}
func (Nop) RecordSessions(int)               {}
func (Nop) RecordReconnect(string)           {}
