package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports ledger metrics to a Prometheus registry.
type PrometheusCollector struct {
	operationDuration *prometheus.HistogramVec
	operationResults  *prometheus.CounterVec
	transactionsTotal *prometheus.CounterVec
	pointsTotal       *prometheus.CounterVec
	balanceChange     prometheus.Histogram
	errorsTotal       *prometheus.CounterVec
}

// NewPrometheusCollector registers the ledger metrics on reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operation_results_total",
				Help: "Ledger operation outcomes",
			},
			[]string{"operation", "result"},
		),
		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Committed ledger transactions",
			},
			[]string{"type"},
		),
		pointsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_points_total",
				Help: "Points moved through committed transactions",
			},
			[]string{"type"},
		),
		// no per-account label: account ids are unbounded
		balanceChange: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_balance_change_points",
				Help:    "Absolute balance change per committed transaction",
				Buckets: prometheus.ExponentialBuckets(1, 10, 8),
			},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_errors_total",
				Help: "Ledger errors by operation and code",
			},
			[]string{"operation", "code"},
		),
	}

	reg.MustRegister(
		c.operationDuration,
		c.operationResults,
		c.transactionsTotal,
		c.pointsTotal,
		c.balanceChange,
		c.errorsTotal,
	)
	return c
}

func (c *PrometheusCollector) RecordOperationDuration(operation string, d time.Duration) {
	c.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordOperationResult(operation, result string) {
	c.operationResults.WithLabelValues(operation, result).Inc()
}

func (c *PrometheusCollector) RecordTransaction(txType string, points int64) {
	c.transactionsTotal.WithLabelValues(txType).Inc()
	if points < 0 {
		points = -points
	}
	c.pointsTotal.WithLabelValues(txType).Add(float64(points))
}

func (c *PrometheusCollector) RecordBalanceChange(_ uint, oldBalance, newBalance int64) {
	delta := newBalance - oldBalance
	if delta < 0 {
		delta = -delta
	}
	c.balanceChange.Observe(float64(delta))
}

func (c *PrometheusCollector) RecordError(operation, code string) {
	c.errorsTotal.WithLabelValues(operation, code).Inc()
}
