package ledger

import (
	"context"
	"time"

	"loyka/internal/models"
)

// TransactionRequest describes one sale or refund to settle. Amount is a
// positive magnitude for both types; direction is encoded by Type. PosID
// is the caller's idempotency key: re-delivery with the same PosID returns
// the originally committed transaction.
type TransactionRequest struct {
	AccountID uint                   `json:"account_id"`
	Type      string                 `json:"type"`
	Amount    float64                `json:"amount"`
	PosID     string                 `json:"pos_id,omitempty"`
	Notes     string                 `json:"notes,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Config holds engine tuning knobs.
type Config struct {
	// NotifyTimeout bounds the post-commit notification dispatch.
	NotifyTimeout time.Duration
}

// Service is the synchronous API of the ledger core.
type Service interface {
	// ProcessTransaction settles one sale or refund, blocking when another
	// settlement for the same account is in flight.
	ProcessTransaction(ctx context.Context, req TransactionRequest) (*models.Transaction, error)
	// TryProcessTransaction fails fast with a retryable
	// CONCURRENT_MODIFICATION error instead of waiting for the account lock.
	TryProcessTransaction(ctx context.Context, req TransactionRequest) (*models.Transaction, error)

	GetAccount(ctx context.Context, accountID uint) (*models.GuestRestaurantAccount, error)
	GetHistory(ctx context.Context, accountID uint, page, limit int) ([]models.Transaction, error)
	GetActiveCard(ctx context.Context, accountID uint) (*models.CardIdentifier, error)

	// RevokeCard retires the account's active card outside a settlement
	// (lost device, suspected sharing) and issues a replacement unless the
	// account is blocked.
	RevokeCard(ctx context.Context, accountID uint, reason string) (*models.CardIdentifier, error)
}
