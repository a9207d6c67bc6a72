// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Price metrics
	PriceSourceResults *prometheus.CounterVec
	PriceSourceLatency *prometheus.HistogramVec
	PriceCacheHits     prometheus.Counter
	PriceCacheMisses   prometheus.Counter

	// Referral metrics
	ClaimsTotal      *prometheus.CounterVec
	ClaimedLamports  prometheus.Counter
	AccruedLamports  prometheus.Counter
	ClaimsRolledBack prometheus.Counter
	ClaimsInProgress prometheus.Gauge

	// Chain metrics
	RPCCallLatency   *prometheus.HistogramVec
	RPCCallErrors    *prometheus.CounterVec
	ConfirmationWait *prometheus.HistogramVec
	TransactionsSent *prometheus.CounterVec

	// Trading metrics
	TradesExecuted *prometheus.CounterVec
	TokensLaunched *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Job metrics
	JobRunsTotal *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "aqua_launchpad"
	}

	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),

		PriceSourceResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "source_results_total",
			Help:      "Price source outcomes by source and result",
		}, []string{"source", "result"}),
		PriceSourceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "source_latency_seconds",
			Help:      "Price source call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		PriceCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "cache_hits_total",
			Help:      "Total number of price cache hits",
		}),
		PriceCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "cache_misses_total",
			Help:      "Total number of price cache misses",
		}),

		ClaimsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "claims_total",
			Help:      "Referral claim attempts by outcome",
		}, []string{"outcome"}),
		ClaimedLamports: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "claimed_lamports_total",
			Help:      "Total lamports paid out to referrers",
		}),
		AccruedLamports: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "accrued_lamports_total",
			Help:      "Total lamports accrued to referrers",
		}),
		ClaimsRolledBack: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "claims_rolled_back_total",
			Help:      "Total number of claims whose balance was restored",
		}),
		ClaimsInProgress: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "claims_in_progress",
			Help:      "Claims currently holding a user lock",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Solana RPC call errors by method",
		}, []string{"method"}),
		ConfirmationWait: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "confirmation_wait_seconds",
			Help:      "Time spent waiting for transaction confirmation",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}, []string{"result"}),
		TransactionsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "transactions_sent_total",
			Help:      "Transactions submitted by purpose",
		}, []string{"purpose"}),

		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "executed_total",
			Help:      "Executed trades by side",
		}, []string{"side"}),
		TokensLaunched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "launched_total",
			Help:      "Launched tokens by platform",
		}, []string{"platform"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		JobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total number of scheduled job runs by status",
		}, []string{"job", "status"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Scheduled job duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"job"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordHTTPRequest records a served request.
func RecordHTTPRequest(route, method, status string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, method, status).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(route, method).Observe(seconds)
}

// RecordPriceSource records one attempt against a price source.
func RecordPriceSource(source, result string, seconds float64) {
	DefaultMetrics.PriceSourceResults.WithLabelValues(source, result).Inc()
	DefaultMetrics.PriceSourceLatency.WithLabelValues(source).Observe(seconds)
}

// RecordPriceCache records a cache lookup.
func RecordPriceCache(hit bool) {
	if hit {
		DefaultMetrics.PriceCacheHits.Inc()
		return
	}
	DefaultMetrics.PriceCacheMisses.Inc()
}

// RecordClaim records the outcome of a referral claim.
func RecordClaim(outcome string) {
	DefaultMetrics.ClaimsTotal.WithLabelValues(outcome).Inc()
}

// RecordClaimPaid adds paid lamports.
func RecordClaimPaid(lamports uint64) {
	DefaultMetrics.ClaimedLamports.Add(float64(lamports))
}

// RecordClaimRollback counts a restored balance.
func RecordClaimRollback() {
	DefaultMetrics.ClaimsRolledBack.Inc()
}

// RecordAccrual adds accrued referral lamports.
func RecordAccrual(lamports uint64) {
	DefaultMetrics.AccruedLamports.Add(float64(lamports))
}

// ClaimStarted and ClaimFinished track claims holding a lock.
func ClaimStarted()  { DefaultMetrics.ClaimsInProgress.Inc() }
func ClaimFinished() { DefaultMetrics.ClaimsInProgress.Dec() }

// RecordRPCCall records RPC call latency and errors.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordConfirmation records how long a confirmation took and how it ended.
func RecordConfirmation(result string, seconds float64) {
	DefaultMetrics.ConfirmationWait.WithLabelValues(result).Observe(seconds)
}

// RecordTransactionSent counts a submitted transaction.
func RecordTransactionSent(purpose string) {
	DefaultMetrics.TransactionsSent.WithLabelValues(purpose).Inc()
}

// RecordTrade counts an executed trade.
func RecordTrade(side string) {
	DefaultMetrics.TradesExecuted.WithLabelValues(side).Inc()
}

// RecordTokenLaunch counts a launched token.
func RecordTokenLaunch(platform string) {
	DefaultMetrics.TokensLaunched.WithLabelValues(platform).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordJobRun records a scheduled job run.
func RecordJobRun(job, status string, durationSeconds float64) {
	DefaultMetrics.JobRunsTotal.WithLabelValues(job, status).Inc()
	DefaultMetrics.JobDuration.WithLabelValues(job).Observe(durationSeconds)
}
