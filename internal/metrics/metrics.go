// Package metrics collects and exposes Prometheus metrics for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the storefront metrics. A nil *Collector is valid and
// records nothing, which keeps services usable without a registry.
type Collector struct {
	checkouts       *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	cartMutations   *prometheus.CounterVec
	eventsFailed    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	checkoutLatency prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Checkout attempts by outcome (created, stock_rejected, replayed, failed).",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_token_refreshes_total",
			Help: "Refresh token exchanges by outcome (rotated, reuse_detected, invalid).",
		}, []string{"outcome"}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Cart writes by operation (set, clamp, remove, merge).",
		}, []string{"op"}),
		eventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_events_publish_failed_total",
			Help: "Domain events that could not be published, by event type.",
		}, []string{"type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		checkoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_checkout_tx_seconds",
			Help:    "Duration of the stock transaction of a checkout.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}

	reg.MustRegister(
		c.checkouts,
		c.refreshes,
		c.cartMutations,
		c.eventsFailed,
		c.httpRequests,
		c.httpDuration,
		c.checkoutLatency,
	)
	return c
}

func (c *Collector) Checkout(outcome string) {
	if c == nil {
		return
	}
	c.checkouts.WithLabelValues(outcome).Inc()
}

func (c *Collector) CheckoutTx(d time.Duration) {
	if c == nil {
		return
	}
	c.checkoutLatency.Observe(d.Seconds())
}

func (c *Collector) Refresh(outcome string) {
	if c == nil {
		return
	}
	c.refreshes.WithLabelValues(outcome).Inc()
}

func (c *Collector) CartMutation(op string) {
	if c == nil {
		return
	}
	c.cartMutations.WithLabelValues(op).Inc()
}

func (c *Collector) EventFailed(eventType string) {
	if c == nil {
		return
	}
	c.eventsFailed.WithLabelValues(eventType).Inc()
}

// HTTPRequest records one served request. route is the echo route pattern,
// never the raw path, to keep label cardinality bounded.
func (c *Collector) HTTPRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
