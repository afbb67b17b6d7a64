package ledger

import "time"

// MetricsCollector defines the interface for collecting ledger metrics.
type MetricsCollector interface {
	RecordOperationDuration(operation string, duration time.Duration)
	RecordOperationResult(operation, result string)
	RecordTransaction(txType string, points int64)
	RecordBalanceChange(accountID uint, oldBalance, newBalance int64)
	RecordError(operation, code string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordOperationDuration(string, time.Duration) {}
func (n *NoopMetricsCollector) RecordOperationResult(string, string)          {}
func (n *NoopMetricsCollector) RecordTransaction(string, int64)               {}
func (n *NoopMetricsCollector) RecordBalanceChange(uint, int64, int64)        {}
func (n *NoopMetricsCollector) RecordError(string, string)                    {}
