package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notify_gateway"

// Metrics groups every Prometheus collector the gateway exports.
type Metrics struct {
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	SendDuration        *prometheus.HistogramVec
	WorkerInflight      prometheus.Gauge
	DedupSuppressed     *prometheus.CounterVec
	RateLimited         *prometheus.CounterVec
	ColdQueueScheduled  *prometheus.CounterVec
	WebhookEvents       *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notifications delivered successfully, by channel.",
		}, []string{"channel"}),
		NotificationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Notifications that failed delivery, by channel and reason.",
		}, []string{"channel", "reason"}),
		SendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_send_duration_seconds",
			Help:      "Provider send latency, by channel.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		WorkerInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_inflight",
			Help:      "Notifications currently being processed by workers.",
		}),
		DedupSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_suppressed_total",
			Help:      "Requests suppressed as duplicates at admission, by channel.",
		}, []string{"channel"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by channel.",
		}, []string{"channel"}),
		ColdQueueScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cold_queue_scheduled_total",
			Help:      "Notifications scheduled for a cold retry, by channel.",
		}, []string{"channel"}),
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Provider webhook events processed, by event type.",
		}, []string{"type"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// FiberMiddleware records request counts and latency per route.
func (m *Metrics) FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		m.httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())

		return err
	}
}
