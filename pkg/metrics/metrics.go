package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records dispatcher metrics.
type Collector struct {
	submitted    *prometheus.CounterVec
	attempts     *prometheus.CounterVec
	terminal     *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
	queueDepth   *prometheus.GaugeVec
	events       *prometheus.CounterVec
}

// Option configures a Collector.
type Option func(*options)

type options struct {
	namespace string
	buckets   []float64
}

// WithNamespace sets the metric name prefix. Default is "notifykit".
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithBuckets overrides the send duration histogram buckets, in seconds.
func WithBuckets(b []float64) Option {
	return func(o *options) {
		if len(b) > 0 {
			o.buckets = b
		}
	}
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer, opts ...Option) (*Collector, error) {
	o := options{
		namespace: "notifykit",
		buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Collector{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "submitted_total",
			Help:      "Notifications submitted, by channel and result (accepted, duplicate, rejected).",
		}, []string{"channel", "result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "attempts_total",
			Help:      "Delivery attempts, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "terminal_total",
			Help:      "Notifications reaching a terminal state, by channel and state.",
		}, []string{"channel", "state"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.namespace,
			Name:      "send_duration_seconds",
			Help:      "Adapter call latency.",
			Buckets:   o.buckets,
		}, []string{"channel"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per channel: 0 closed, 1 open, 2 half-open.",
		}, []string{"channel"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Name:      "queue_depth",
			Help:      "Pending tasks per channel queue, ready and delayed.",
		}, []string{"channel"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "events_published_total",
			Help:      "Delivery events handed to the publisher, by result (ok, error).",
		}, []string{"result"}),
	}

	if reg != nil {
		for _, col := range c.collectors() {
			if err := reg.Register(col); err != nil {
				return nil, errors.Join(ErrRegister, err)
			}
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.submitted, c.attempts, c.terminal, c.sendDuration,
		c.breakerState, c.queueDepth, c.events,
	}
}

func (c *Collector) Submitted(channel, result string) {
	if c == nil {
		return
	}
	c.submitted.WithLabelValues(channel, result).Inc()
}

// Attempt records one adapter call and its latency.
func (c *Collector) Attempt(channel, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(channel, outcome).Inc()
	c.sendDuration.WithLabelValues(channel).Observe(d.Seconds())
}

func (c *Collector) Terminal(channel, state string) {
	if c == nil {
		return
	}
	c.terminal.WithLabelValues(channel, state).Inc()
}

// BreakerState takes the numeric value of breaker.State.
func (c *Collector) BreakerState(channel string, state int) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(channel).Set(float64(state))
}

func (c *Collector) QueueDepth(channel string, n int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(channel).Set(float64(n))
}

func (c *Collector) EventPublished(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.events.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
