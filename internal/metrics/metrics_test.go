package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Checkout("created")
	c.Checkout("created")
	c.Checkout("stock_rejected")
	c.Refresh("reuse_detected")

	require.Equal(t, 2.0, testutil.ToFloat64(c.checkouts.WithLabelValues("created")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.checkouts.WithLabelValues("stock_rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.refreshes.WithLabelValues("reuse_detected")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.Checkout("created")
		c.Refresh("rotated")
		c.CartMutation("set")
		c.EventFailed("order.created")
		c.HTTPRequest("GET", "/cart", 200, time.Millisecond)
		c.CheckoutTx(time.Millisecond)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.HTTPRequest("GET", "/search", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `storefront_http_requests_total{method="GET",route="/search",status="200"} 1`))
}
