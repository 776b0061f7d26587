// Package metrics defines the Prometheus metrics of the SchoolBus client.
// Metrics register with the default registry on import.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "schoolbus"
	subsystem = "client"
)

// RequestsTotal counts completed API requests.
// Labels:
//   - method: HTTP method
//   - code: HTTP status code
var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "Total number of API requests issued, by method and status code.",
	},
	[]string{"method", "code"},
)

// RequestDuration measures API round-trip latency.
var RequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Duration of API requests from send to response headers.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method"},
)

// RequestsInFlight tracks requests waiting for a response.
var RequestsInFlight = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_in_flight",
		Help:      "Number of API requests currently waiting for a response.",
	},
)

// TokenRefreshTotal counts silent token refresh attempts.
// Label:
//   - result: "ok", "error" or "skipped" (no token stored)
var TokenRefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "token_refresh_total",
		Help:      "Total number of background token refresh attempts, by result.",
	},
	[]string{"result"},
)

// LiveUpdatesTotal counts bus-position events received on the live feed.
var LiveUpdatesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "live_updates_total",
		Help:      "Total number of bus-position events received from the live feed.",
	},
)

// InstrumentTransport wraps rt so every request updates RequestsTotal,
// RequestDuration and RequestsInFlight. A nil rt means http.DefaultTransport.
func InstrumentTransport(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperInFlight(RequestsInFlight,
		promhttp.InstrumentRoundTripperCounter(RequestsTotal,
			promhttp.InstrumentRoundTripperDuration(RequestDuration, rt),
		),
	)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
