// Package metrics holds the Prometheus collectors for the relay.
//
// Labels are kept to small closed sets (update kind, rule name, outcome,
// registered route) so series cardinality stays bounded.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// updatesTotal counts routed updates by kind and the rule that handled them.
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_updates_total",
			Help: "Inbound updates by kind and matched rule.",
		},
		[]string{"kind", "rule"},
	)

	updateDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relaybot_update_duration_seconds",
			Help:    "Time spent handling one inbound update.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// deliveriesTotal counts broadcast recipients by outcome.
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_broadcast_deliveries_total",
			Help: "Broadcast deliveries by outcome.",
		},
		[]string{"outcome"},
	)

	broadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_broadcasts_total",
			Help: "Completed broadcasts by whether an image was attached.",
		},
		[]string{"image"},
	)

	broadcastDur = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relaybot_broadcast_duration_seconds",
			Help:    "Wall time of a full broadcast fan-out.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_rate_limited_total",
			Help: "Retry-after signals received from Telegram, by call site.",
		},
		[]string{"where"},
	)

	usersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relaybot_directory_users",
			Help: "Users currently known to the directory.",
		},
	)

	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relaybot_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relaybot_http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		updatesTotal, updateDur,
		deliveriesTotal, broadcastsTotal, broadcastDur,
		rateLimitedTotal, usersGauge,
		httpReqs, httpLat, httpInflight,
	)
}

// Update records one handled update.
func Update(kind, rule string, d time.Duration) {
	updatesTotal.WithLabelValues(kind, rule).Inc()
	updateDur.WithLabelValues(kind).Observe(d.Seconds())
}

// Delivery records one broadcast recipient outcome.
func Delivery(outcome string) { deliveriesTotal.WithLabelValues(outcome).Inc() }

// Broadcast records a finished fan-out.
func Broadcast(withImage bool, d time.Duration) {
	broadcastsTotal.WithLabelValues(strconv.FormatBool(withImage)).Inc()
	broadcastDur.Observe(d.Seconds())
}

func RateLimited(where string) { rateLimitedTotal.WithLabelValues(where).Inc() }

func SetUsers(n int) { usersGauge.Set(float64(n)) }

// HTTP instruments gin requests. The path label is the registered route,
// falling back to the raw URL path when nothing matched.
func HTTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
