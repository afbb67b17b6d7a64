/*
Package ledger orchestrates loyalty settlements: it turns one sale or
refund into a durable, consistent change to an account's point balance,
tier, transaction history and card identity.

A request moves through Validating, Computing and Committing before it is
Completed; any precondition failure rejects it with a typed error and no
state change. The commit itself (transaction row, balance detail, tier
event, card rotation, account update) is a single atomic batch against the
AccountStore.

Concurrency contract: ProcessTransaction serializes commits per account by
blocking on a per-account lock; calls for different accounts proceed fully
in parallel. TryProcessTransaction is the fail-fast variant: it returns a
CONCURRENT_MODIFICATION error (retryable) instead of waiting. Once the
commit begins it runs to completion or failure; caller timeouts do not
abort it, so a timed-out caller must re-query by idempotency key before
retrying.

Idempotency: a request carrying a PosID is processed at most once per
account. Replays return the originally committed transaction unchanged.

Notifications are dispatched after commit on a separate goroutine and are
best-effort; a delivery failure never affects the committed state.

Usage:

	engine := ledger.NewService(store, policy, issuer, sink, ledger.Config{}, metrics, logger)

	tx, err := engine.ProcessTransaction(ctx, ledger.TransactionRequest{
	    AccountID: accountID,
	    Type:      models.TransactionTypeSale,
	    Amount:    1250.00,
	    PosID:     posRequestID,
	})
*/
package ledger
