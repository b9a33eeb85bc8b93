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
	ledgerTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_total",
		Help: "Submitted transactions by outcome (committed, rejected, failed).",
	}, []string{"result"})

	ledgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_poh_entries_total",
		Help: "Chain entries appended by kind (tick, record).",
	}, []string{"kind"})

	ledgerHashesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_poh_hashes_total",
		Help: "Total hash iterations performed by the recorder.",
	})

	ledgerChainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_poh_chain_height",
		Help: "Number of entries in the chain.",
	})

	ledgerChainVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_chain_verifications_total",
		Help: "Background chain verifications by result.",
	}, []string{"result"})

	ledgerArchiveDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_archive_dropped_entries_total",
		Help: "Chain entries not archived because the archive buffer was full.",
	})

	ledgerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	ledgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		ledgerRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		ledgerRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTransaction counts a submission outcome.
func RecordTransaction(result string) {
	ledgerTransactionsTotal.WithLabelValues(result).Inc()
}

// RecordEntry counts an appended chain entry.
func RecordEntry(tick bool, hashes uint64) {
	kind := "record"
	if tick {
		kind = "tick"
	}
	ledgerEntriesTotal.WithLabelValues(kind).Inc()
	ledgerHashesTotal.Add(float64(hashes))
	ledgerChainHeight.Inc()
}

// RecordVerification counts a background chain verification.
func RecordVerification(ok bool) {
	if ok {
		ledgerChainVerifications.WithLabelValues("ok").Inc()
	} else {
		ledgerChainVerifications.WithLabelValues("mismatch").Inc()
	}
}

// RecordArchiveDrop counts an entry shed by the archiver.
func RecordArchiveDrop() {
	ledgerArchiveDropsTotal.Inc()
}
