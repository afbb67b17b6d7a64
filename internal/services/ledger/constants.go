package ledger

import "time"

// Default configuration values
const (
	DefaultNotifyTimeout = 5 * time.Second
	DefaultHistoryLimit  = 20
	MaxHistoryLimit      = 100
)

// Operation names used for metrics and logging
const (
	opProcess = "process_transaction"
	opRevoke  = "revoke_card"
)
