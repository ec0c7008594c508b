package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(301))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(502))
	assert.Equal(t, "unknown", statusClass(0))
}

func TestMiddleware_RecordsStatusClass(t *testing.T) {
	c := NewCollector()
	before := testutil.ToFloat64(requestsTotal.WithLabelValues(http.MethodPost, "4xx"))

	h := Middleware(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	after := testutil.ToFloat64(requestsTotal.WithLabelValues(http.MethodPost, "4xx"))
	assert.Equal(t, before+1, after)
}

func TestCollector_ForwardAndSweepCounters(t *testing.T) {
	c := NewCollector()

	before := testutil.ToFloat64(forwardTotal.WithLabelValues("fallback_ok"))
	c.Forward("fallback_ok")
	assert.Equal(t, before+1, testutil.ToFloat64(forwardTotal.WithLabelValues("fallback_ok")))

	sweptBefore := testutil.ToFloat64(sweptTotal.WithLabelValues("routes"))
	c.Swept("routes", 0)
	c.Swept("routes", 3)
	assert.Equal(t, sweptBefore+3, testutil.ToFloat64(sweptTotal.WithLabelValues("routes")))

	c.SetLiveRoutes(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(routesLive))
	c.UpstreamLatency("primary", 10*time.Millisecond)
}

func TestHandler_ExposesGatewayMetrics(t *testing.T) {
	NewCollector().Admission("rate_limit")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "gateway_admission_total"))
}
