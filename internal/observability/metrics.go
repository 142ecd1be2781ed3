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
	// Vault metrics
	DepositsTotal    prometheus.Counter
	WithdrawalsTotal prometheus.Counter
	SwapsTotal       *prometheus.CounterVec
	FeeSharesMinted  *prometheus.CounterVec
	CallsReverted    *prometheus.CounterVec

	// Vault state gauges
	TotalValue            prometheus.Gauge
	TotalSupply           prometheus.Gauge
	PerformanceFeeReserve prometheus.Gauge
	HighWaterMarkPerShare prometheus.Gauge

	// Multicall metrics
	MulticallsTotal *prometheus.CounterVec
	MulticallSteps  prometheus.Histogram

	// Fact pipeline metrics
	FactsRecorded    *prometheus.CounterVec
	FactRecordErrors prometheus.Counter
	FeedClients      prometheus.Gauge
	NAVSamples       prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastNAVSample prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "portfolio_vault"
	}

	return &Metrics{
		// Vault metrics
		DepositsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "deposits_total",
			Help:      "Total number of committed deposits",
		}),
		WithdrawalsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "withdrawals_total",
			Help:      "Total number of committed withdrawals",
		}),
		SwapsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "swaps_total",
			Help:      "Total number of committed swaps by source (vault manager or multicall helper)",
		}, []string{"source"}),
		FeeSharesMinted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "fee_shares_total",
			Help:      "Fee shares credited to the fee recipient by fee type, in whole shares",
		}, []string{"fee"}),
		CallsReverted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "calls_reverted_total",
			Help:      "Total number of reverted calls by operation and error code",
		}, []string{"operation", "code"}),

		// Vault state gauges
		TotalValue: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "total_value",
			Help:      "Vault total value in whole base-asset units",
		}),
		TotalSupply: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "total_supply",
			Help:      "Vault share supply in whole shares",
		}),
		PerformanceFeeReserve: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "performance_fee_reserve",
			Help:      "Unreleased performance fee shares in whole shares",
		}),
		HighWaterMarkPerShare: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "high_water_mark_per_share",
			Help:      "High-water mark in base-asset units per share",
		}),

		// Multicall metrics
		MulticallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "multicall",
			Name:      "calls_total",
			Help:      "Total number of multicalls by outcome",
		}, []string{"outcome"}),
		MulticallSteps: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "multicall",
			Name:      "steps",
			Help:      "Number of steps per multicall",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
		}),

		// Fact pipeline metrics
		FactsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "facts",
			Name:      "recorded_total",
			Help:      "Total number of committed facts recorded by kind",
		}, []string{"kind"}),
		FactRecordErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "facts",
			Name:      "record_errors_total",
			Help:      "Total number of facts that failed to persist",
		}),
		FeedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Number of connected fact stream clients",
		}),
		NAVSamples: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nav",
			Name:      "samples_total",
			Help:      "Total number of NAV samples taken",
		}),

		// Database metrics
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

		// Health metrics
		LastNAVSample: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_nav_sample_timestamp",
			Help:      "Unix timestamp of the last NAV sample",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordDeposit increments the deposits counter.
func RecordDeposit() {
	DefaultMetrics.DepositsTotal.Inc()
}

// RecordWithdraw increments the withdrawals counter.
func RecordWithdraw() {
	DefaultMetrics.WithdrawalsTotal.Inc()
}

// RecordSwaps adds n committed swaps executed by source.
func RecordSwaps(source string, n int) {
	DefaultMetrics.SwapsTotal.WithLabelValues(source).Add(float64(n))
}

// RecordFeeShares adds fee shares credited for fee type.
func RecordFeeShares(fee string, shares float64) {
	DefaultMetrics.FeeSharesMinted.WithLabelValues(fee).Add(shares)
}

// RecordCallReverted records a reverted call.
func RecordCallReverted(operation, code string) {
	DefaultMetrics.CallsReverted.WithLabelValues(operation, code).Inc()
}

// UpdateVaultState sets the vault state gauges.
func UpdateVaultState(totalValue, totalSupply, reserve, hwmPerShare float64) {
	DefaultMetrics.TotalValue.Set(totalValue)
	DefaultMetrics.TotalSupply.Set(totalSupply)
	DefaultMetrics.PerformanceFeeReserve.Set(reserve)
	DefaultMetrics.HighWaterMarkPerShare.Set(hwmPerShare)
}

// RecordMulticall records a multicall outcome and its step count.
func RecordMulticall(outcome string, steps int) {
	DefaultMetrics.MulticallsTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.MulticallSteps.Observe(float64(steps))
}

// RecordFact records a committed fact.
func RecordFact(kind string, err error) {
	DefaultMetrics.FactsRecorded.WithLabelValues(kind).Inc()
	if err != nil {
		DefaultMetrics.FactRecordErrors.Inc()
	}
}

// SetFeedClients sets the connected fact stream clients gauge.
func SetFeedClients(n int) {
	DefaultMetrics.FeedClients.Set(float64(n))
}

// RecordNAVSample records a NAV sample taken at unix time ts.
func RecordNAVSample(ts int64) {
	DefaultMetrics.NAVSamples.Inc()
	DefaultMetrics.LastNAVSample.Set(float64(ts))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
