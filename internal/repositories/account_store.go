// Package repositories provides the data access layer of the ledger core:
// the AccountStore contract the engine commits through, a Postgres/GORM
// implementation, an in-memory reference implementation, and the Redis
// cache used for read paths.
package repositories

import (
	"context"
	"errors"

	"loyka/internal/models"
)

var (
	ErrGuestNotFound       = errors.New("guest not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrCardNotFound        = errors.New("card not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicatePosID      = errors.New("transaction with this pos id already exists")
	ErrDuplicateAccount    = errors.New("account already exists")
	ErrInvalidBatch        = errors.New("invalid write batch")
	ErrStaleAccount        = errors.New("account balance changed since it was read")
)

// UnlockFunc releases a per-account lock. It must be called exactly once,
// on every exit path.
type UnlockFunc func()

// WriteBatch is the single atomic unit committed at the end of a ledger
// operation. Account is required; a settlement carries Transaction,
// BalanceDetail and NewCard, an explicit revocation may carry only the
// invalidated card, and an administrative update (block, unblock) may
// carry the account alone. WriteAll links generated IDs: the balance
// detail and the invalidated card receive the created transaction's ID,
// and the account's active card pointer moves to the new card (or to nil
// when a revocation issues no replacement).
type WriteBatch struct {
	Account         *models.GuestRestaurantAccount
	Transaction     *models.Transaction
	BalanceDetail   *models.BalanceDetail
	TierEvent       *models.TierEvent
	InvalidatedCard *models.CardIdentifier
	NewCard         *models.CardIdentifier
}

// Validate checks the structural invariants of a batch before commit.
func (b *WriteBatch) Validate() error {
	if b == nil || b.Account == nil {
		return ErrInvalidBatch
	}
	// every settlement records its breakdown and rotates the card
	if b.Transaction != nil && (b.BalanceDetail == nil || b.NewCard == nil) {
		return ErrInvalidBatch
	}
	if b.Transaction == nil && b.BalanceDetail != nil {
		return ErrInvalidBatch
	}
	if b.Account.BalancePoints < 0 {
		return ErrInvalidBatch
	}
	return nil
}

// AccountStore is the durable storage contract consumed by the ledger
// engine. Same-account writes are serialized through LockAccount; WriteAll
// commits a batch all-or-nothing and rejects a settlement whose OldBalance
// no longer matches the stored row with ErrStaleAccount, so a stale read
// (cache or another process) can never become a lost update.
type AccountStore interface {
	// LockAccount blocks until the per-account lock is held.
	LockAccount(accountID uint) UnlockFunc
	// TryLockAccount fails fast when the lock is already held.
	TryLockAccount(accountID uint) (UnlockFunc, bool)

	GetGuest(id uint) (*models.Guest, error)
	GetAccount(accountID uint) (*models.GuestRestaurantAccount, error)
	GetActiveCard(accountID uint) (*models.CardIdentifier, error)
	GetCardByToken(qrToken string) (*models.CardIdentifier, error)
	GetTransactionByPosID(accountID uint, posID string) (*models.Transaction, error)
	GetTransactionHistory(ctx context.Context, accountID uint, limit, offset int) ([]models.Transaction, error)
	GetTierEvents(ctx context.Context, accountID uint) ([]models.TierEvent, error)

	WriteAll(ctx context.Context, batch *WriteBatch) error

	CreateGuest(guest *models.Guest) error
	CreateAccount(account *models.GuestRestaurantAccount) error
}
