package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	shaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shainfinity_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	shaRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shainfinity_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	shaHashOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shainfinity_hash_operations_total",
		Help: "Total hashing operations by kind (bytes, chain, merkle, timelock, crossref).",
	}, []string{"kind"})

	shaVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shainfinity_verifications_total",
		Help: "Total verification outcomes by result.",
	}, []string{"result"})

	shaAuditEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shainfinity_audit_entries_total",
		Help: "Total audit log entries appended.",
	})

	shaSweepChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shainfinity_sweep_checks_total",
		Help: "Total drift sweep checks by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		shaRequestsTotal.WithLabelValues(method, path, status).Inc()
		shaRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordHashOp records one core hashing operation.
func RecordHashOp(kind string) {
	shaHashOpsTotal.WithLabelValues(kind).Inc()
}

// RecordVerification records a verification outcome.
func RecordVerification(result string) {
	shaVerificationsTotal.WithLabelValues(result).Inc()
}

// RecordAuditAppend records an audit log entry append.
func RecordAuditAppend() {
	shaAuditEntriesTotal.Inc()
}

// RecordSweepCheck records a drift sweep check result.
func RecordSweepCheck(intact bool) {
	if intact {
		shaSweepChecksTotal.WithLabelValues("intact").Inc()
	} else {
		shaSweepChecksTotal.WithLabelValues("drifted").Inc()
	}
}
