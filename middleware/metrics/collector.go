// Package metrics expõe as métricas Prometheus do gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of requests handled by the gateway",
		},
		[]string{"method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	inFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_requests_in_flight",
			Help: "Number of requests currently being handled",
		},
	)

	admissionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_admission_total",
			Help: "Admission decisions by reason",
		},
		[]string{"reason"},
	)

	forwardTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_forward_total",
			Help: "Forwarding outcomes by result",
		},
		[]string{"outcome"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_upstream_duration_seconds",
			Help:    "Outbound call duration by attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"attempt"},
	)

	routesRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_routes_registered_total",
			Help: "Dynamic routes created",
		},
	)

	routesLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_routes_live",
			Help: "Dynamic routes currently held by the registry",
		},
	)

	identitiesTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_rate_identities",
			Help: "Identities currently tracked by the rate limiter",
		},
	)

	sweptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_swept_total",
			Help: "Entries removed by maintenance sweeps",
		},
		[]string{"store"},
	)
)

// Collector registra as métricas do gateway. O valor zero é utilizável.
type Collector struct {
	startTime time.Time
}

func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) RecordRequest(method string, status int, d time.Duration) {
	requestsTotal.WithLabelValues(method, statusClass(status)).Inc()
	requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (c *Collector) Admission(reason string) {
	admissionTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) Forward(outcome string) {
	forwardTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) UpstreamLatency(attempt string, d time.Duration) {
	upstreamDuration.WithLabelValues(attempt).Observe(d.Seconds())
}

func (c *Collector) RouteRegistered() { routesRegistered.Inc() }

func (c *Collector) SetLiveRoutes(n int) { routesLive.Set(float64(n)) }

func (c *Collector) SetTrackedIdentities(n int) { identitiesTracked.Set(float64(n)) }

func (c *Collector) Swept(store string, n int) {
	if n > 0 {
		sweptTotal.WithLabelValues(store).Add(float64(n))
	}
}

func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Handler expõe o registry padrão no formato Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
