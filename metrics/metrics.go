// Package metrics exposes gateway counters and latency histograms through
// Prometheus. All record methods are nil-receiver safe, so callers never
// need to guard on whether metrics are enabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	callsTotal      *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	cacheEvents     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,

		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llmgw",
				Name:      "attempts_total",
				Help:      "Network attempts by route and outcome",
			},
			[]string{"provider", "model", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "llmgw",
				Name:      "attempt_duration_seconds",
				Help:      "Attempt duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llmgw",
				Name:      "calls_total",
				Help:      "Gateway calls by task, policy and outcome",
			},
			[]string{"task", "policy", "outcome"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llmgw",
				Name:      "tokens_total",
				Help:      "Tokens processed by provider and direction",
			},
			[]string{"provider", "model", "type"},
		),
		cacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llmgw",
				Name:      "cache_events_total",
				Help:      "Cache lookups and writes by event",
			},
			[]string{"event"},
		),
	}

	registry.MustRegister(
		m.attemptsTotal,
		m.attemptDuration,
		m.callsTotal,
		m.tokensTotal,
		m.cacheEvents,
	)
	return m
}

// RecordAttempt records one network attempt's outcome. outcome is "success"
// or the attempt's error classification.
func (m *Metrics) RecordAttempt(provider string, model string, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(provider, model, outcome).Inc()
	m.attemptDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordCall(task string, policy string, outcome string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(task, policy, outcome).Inc()
}

func (m *Metrics) RecordTokens(provider string, model string, tokensIn int, tokensOut int) {
	if m == nil {
		return
	}
	if tokensIn > 0 {
		m.tokensTotal.WithLabelValues(provider, model, "input").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		m.tokensTotal.WithLabelValues(provider, model, "output").Add(float64(tokensOut))
	}
}

// RecordCacheEvent records "hit", "miss" or "write".
func (m *Metrics) RecordCacheEvent(event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(event).Inc()
}

// Handler serves the scrape endpoint for this gateway's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
