package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketsim/lob/pkg/lob"
)

// Metrics instruments the submit path of a simulation run.
type Metrics struct {
	registry *prometheus.Registry

	OrdersProcessed prometheus.Counter
	TradesExecuted  prometheus.Counter
	BookDepth       *prometheus.GaugeVec
	SubmitLatency   prometheus.Histogram
}

// New creates a self-contained registry with the engine metrics.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		OrdersProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_processed_total",
			Help:      "Total number of orders processed",
		}),

		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Total number of trades executed",
		}),

		BookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_depth_levels",
			Help:      "Distinct price levels per book side",
		}, []string{"side"}),

		SubmitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_latency_nanoseconds",
			Help:      "Order submit latency in nanoseconds",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000, 100000},
		}),
	}

	registry.MustRegister(m.OrdersProcessed, m.TradesExecuted, m.BookDepth, m.SubmitLatency)
	return m
}

// RecordSubmit accounts for one processed order.
func (m *Metrics) RecordSubmit(latency time.Duration, trades int, depth lob.Depth) {
	m.OrdersProcessed.Inc()
	m.TradesExecuted.Add(float64(trades))
	m.BookDepth.WithLabelValues("ask").Set(float64(depth.AskLevels))
	m.BookDepth.WithLabelValues("bid").Set(float64(depth.BidLevels))
	m.SubmitLatency.Observe(float64(latency.Nanoseconds()))
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
