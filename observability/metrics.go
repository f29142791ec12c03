package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type crowdfundMetrics struct {
	operations *prometheus.CounterVec
	value      *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	campaigns  prometheus.Gauge
}

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	crowdfundMetricsOnce sync.Once
	crowdfundRegistry    *crowdfundMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics
)

// Crowdfund returns the lazily-initialised registry tracking ledger operations.
func Crowdfund() *crowdfundMetrics {
	crowdfundMetricsOnce.Do(func() {
		crowdfundRegistry = &crowdfundMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdchain",
				Subsystem: "crowdfund",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome kind.",
			}, []string{"op", "outcome"}),
			value: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdchain",
				Subsystem: "crowdfund",
				Name:      "value_total",
				Help:      "Settlement units moved by committed operations.",
			}, []string{"op"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crowdchain",
				Subsystem: "crowdfund",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			campaigns: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "crowdchain",
				Subsystem: "crowdfund",
				Name:      "campaigns",
				Help:      "Number of campaigns registered.",
			}),
		}
		prometheus.MustRegister(
			crowdfundRegistry.operations,
			crowdfundRegistry.value,
			crowdfundRegistry.latency,
			crowdfundRegistry.campaigns,
		)
	})
	return crowdfundRegistry
}

// Observe records a finished operation. outcome is "ok" or the error kind.
func (m *crowdfundMetrics) Observe(op, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	op = normalizeLabel(op)
	m.operations.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// AddValue accumulates moved value. Amounts beyond float precision are
// approximated.
func (m *crowdfundMetrics) AddValue(op string, amount *uint256.Int) {
	if m == nil || amount == nil || amount.IsZero() {
		return
	}
	value, err := strconv.ParseFloat(amount.Dec(), 64)
	if err != nil {
		return
	}
	m.value.WithLabelValues(normalizeLabel(op)).Add(value)
}

// SetCampaigns publishes the current campaign count.
func (m *crowdfundMetrics) SetCampaigns(count uint64) {
	if m == nil {
		return
	}
	m.campaigns.Set(float64(count))
}

// RPC returns the registry tracking JSON-RPC requests.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdchain",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crowdchain",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crowdchain",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of a JSON-RPC request.
func (m *rpcMetrics) Observe(method string, errCode int, duration time.Duration) {
	if m == nil {
		return
	}
	method = normalizeLabel(method)
	outcome := "ok"
	if errCode != 0 {
		outcome = strconv.Itoa(errCode)
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter.
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
