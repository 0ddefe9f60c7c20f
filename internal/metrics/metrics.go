// Package metrics provides Prometheus instrumentation for fraudwatch.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fraudwatch"

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TransactionsTotal counts generated transactions by risk label.
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Total generated transactions by risk label.",
		},
		[]string{"label"},
	)

	// TransactionsBlockedTotal counts transactions scored above the block threshold.
	TransactionsBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_blocked_total",
		Help:      "Total transactions blocked (risk score above 90).",
	})

	// VerificationRequiredTotal counts transactions sent to verification.
	VerificationRequiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verification_required_total",
		Help:      "Total transactions requiring verification (risk score in (70, 90]).",
	})

	// RiskScore observes the distribution of assigned risk scores.
	RiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "risk_score",
		Help:      "Distribution of assigned risk scores.",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100},
	})

	// GenerateBatchDuration observes how long one generate call takes.
	GenerateBatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generate_batch_duration_seconds",
		Help:      "Time to generate and persist one batch of transactions.",
		Buckets:   prometheus.DefBuckets,
	})

	// TxnIDCollisionsTotal counts transaction ID collisions that forced a retry.
	TxnIDCollisionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "txn_id_collisions_total",
		Help:      "Total transaction ID collisions retried during generation.",
	})

	// ActiveWebSocketClients is the size of the realtime feed audience.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_websocket_clients",
		Help:      "Connected realtime feed clients.",
	})

	// DBConnections samples sql.DBStats by pool state (open, idle, in_use).
	DBConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections",
		Help:      "Database pool connections by state.",
	}, []string{"state"})

	// DBWaits is sql.DBStats.WaitCount at the last sample.
	DBWaits = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_waits",
		Help:      "Connections the pool had to wait for since startup.",
	})

	// Goroutines is sampled alongside the pool stats.
	Goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "goroutines",
		Help:      "Live goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TransactionsTotal,
		TransactionsBlockedTotal,
		VerificationRequiredTotal,
		RiskScore,
		GenerateBatchDuration,
		TxnIDCollisionsTotal,
		ActiveWebSocketClients,
		DBConnections,
		DBWaits,
		Goroutines,
	)
}

// RecordTransaction records the outcome of one scored transaction.
func RecordTransaction(label string, score float64, blocked, verificationRequired bool) {
	TransactionsTotal.WithLabelValues(label).Inc()
	RiskScore.Observe(score)
	if blocked {
		TransactionsBlockedTotal.Inc()
	}
	if verificationRequired {
		VerificationRequiredTotal.Inc()
	}
}

// StartDBStatsCollector samples pool stats every interval until ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sampleDB(db.Stats())
		}
	}
}

func sampleDB(st sql.DBStats) {
	DBConnections.WithLabelValues("open").Set(float64(st.OpenConnections))
	DBConnections.WithLabelValues("idle").Set(float64(st.Idle))
	DBConnections.WithLabelValues("in_use").Set(float64(st.InUse))
	DBWaits.Set(float64(st.WaitCount))
	Goroutines.Set(float64(runtime.NumGoroutine()))
}

// Middleware records count and latency per route pattern. Unmatched
// routes share the empty pattern so path cardinality stays bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, statusBucket(c.Writer.Status())).Inc()
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func statusBucket(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return string(rune('0'+code/100)) + "xx"
}
