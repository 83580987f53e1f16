package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taka_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WsDisconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taka_ws_disconnects_total",
		Help: "Total number of websocket disconnections",
	})
	MessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taka_messages_total",
		Help: "Total number of chat messages accepted",
	})
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taka_events_total",
		Help: "Total number of inbound events dispatched, by event name",
	}, []string{"event"})
	BansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taka_bans_total",
		Help: "Total number of bans issued",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		WsDisconnects,
		MessagesTotal,
		EventsTotal,
		BansTotal,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// GinMiddleware records basic per-request metrics for Prometheus scraping.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
