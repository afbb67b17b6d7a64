package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"loyka/internal/models"
)

const pgUniqueViolation = "23505"

// gormStore is the Postgres implementation of AccountStore. Same-account
// serialization is enforced twice: the in-process lock table for calls in
// this process, and a FOR UPDATE row lock inside WriteAll whose balance is
// compared against the settlement's OldBalance, so a stale cache read or a
// commit from another process surfaces as ErrStaleAccount instead of
// silently overwriting the row.
type gormStore struct {
	db    *gorm.DB
	cache CacheRepository
	locks *lockTable
}

// NewAccountStore creates the GORM-backed account store. cache may be nil,
// in which case every read goes to the database.
func NewAccountStore(db *gorm.DB, cache CacheRepository) AccountStore {
	if db == nil {
		panic("db is required")
	}
	return &gormStore{
		db:    db,
		cache: cache,
		locks: newLockTable(),
	}
}

func (r *gormStore) LockAccount(accountID uint) UnlockFunc {
	return r.locks.acquire(accountID)
}

func (r *gormStore) TryLockAccount(accountID uint) (UnlockFunc, bool) {
	return r.locks.tryAcquire(accountID)
}

func (r *gormStore) GetGuest(id uint) (*models.Guest, error) {
	var guest models.Guest
	if err := r.db.First(&guest, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGuestNotFound
		}
		return nil, fmt.Errorf("failed to get guest: %w", err)
	}
	return &guest, nil
}

func (r *gormStore) GetAccount(accountID uint) (*models.GuestRestaurantAccount, error) {
	if r.cache != nil {
		if account, err := r.cache.GetAccount(context.Background(), accountID); err == nil {
			return account, nil
		}
	}

	var account models.GuestRestaurantAccount
	if err := r.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.SetAccount(context.Background(), &account)
	}
	return &account, nil
}

func (r *gormStore) GetActiveCard(accountID uint) (*models.CardIdentifier, error) {
	if r.cache != nil {
		if card, err := r.cache.GetActiveCard(context.Background(), accountID); err == nil {
			return card, nil
		}
	}

	var card models.CardIdentifier
	err := r.db.Where("account_id = ? AND is_active = ?", accountID, true).First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get active card: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.SetActiveCard(context.Background(), &card)
	}
	return &card, nil
}

func (r *gormStore) GetCardByToken(qrToken string) (*models.CardIdentifier, error) {
	var card models.CardIdentifier
	if err := r.db.Where("qr_token = ?", qrToken).First(&card).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card by token: %w", err)
	}
	return &card, nil
}

func (r *gormStore) GetTransactionByPosID(accountID uint, posID string) (*models.Transaction, error) {
	if posID == "" {
		return nil, ErrTransactionNotFound
	}
	var tx models.Transaction
	err := r.db.Where("account_id = ? AND pos_id = ?", accountID, posID).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by pos id: %w", err)
	}
	return &tx, nil
}

func (r *gormStore) GetTransactionHistory(ctx context.Context, accountID uint, limit, offset int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	return txs, nil
}

func (r *gormStore) GetTierEvents(ctx context.Context, accountID uint) ([]models.TierEvent, error) {
	var events []models.TierEvent
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get tier events: %w", err)
	}
	return events, nil
}

// WriteAll commits the batch in one database transaction. The account row
// is re-read FOR UPDATE so concurrent processes serialize here even without
// the in-process lock.
func (r *gormStore) WriteAll(ctx context.Context, batch *WriteBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.GuestRestaurantAccount
		if err := tx.Set("gorm:for_update", true).First(&current, batch.Account.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		// a settlement is only valid against the balance it was computed
		// from; the locked row is the source of truth, not the cache
		if batch.Transaction != nil && current.BalancePoints != batch.Transaction.OldBalance {
			return ErrStaleAccount
		}
		if batch.Transaction == nil {
			// non-settlement writes never move the balance
			batch.Account.BalancePoints = current.BalancePoints
		}

		if batch.Transaction != nil {
			if err := tx.Create(batch.Transaction).Error; err != nil {
				return err
			}
			batch.BalanceDetail.TransactionID = batch.Transaction.ID
			if err := tx.Create(batch.BalanceDetail).Error; err != nil {
				return err
			}
		}

		if batch.InvalidatedCard != nil {
			if batch.Transaction != nil {
				txID := batch.Transaction.ID
				batch.InvalidatedCard.InvalidatedByTransactionID = &txID
			}
			if err := tx.Save(batch.InvalidatedCard).Error; err != nil {
				return err
			}
		}

		if batch.NewCard != nil {
			if err := tx.Create(batch.NewCard).Error; err != nil {
				return err
			}
		}

		if batch.TierEvent != nil {
			if err := tx.Create(batch.TierEvent).Error; err != nil {
				return err
			}
		}

		if batch.NewCard != nil {
			cardID := batch.NewCard.ID
			batch.Account.ActiveCardID = &cardID
		} else if batch.InvalidatedCard != nil {
			batch.Account.ActiveCardID = nil
		}
		batch.Account.UpdatedAt = time.Now()
		return tx.Save(batch.Account).Error
	})

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePosID
		}
		return err
	}

	if r.cache != nil {
		_ = r.cache.InvalidateAccount(context.Background(), batch.Account.ID)
	}
	return nil
}

func (r *gormStore) CreateGuest(guest *models.Guest) error {
	if err := r.db.Create(guest).Error; err != nil {
		return fmt.Errorf("failed to create guest: %w", err)
	}
	return nil
}

func (r *gormStore) CreateAccount(account *models.GuestRestaurantAccount) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return err
		}
		// first tier assignment is part of the audit trail
		return tx.Create(&models.TierEvent{
			AccountID: account.ID,
			ToTier:    account.TierName,
			EventType: models.TierEventInitial,
			Reason:    "account created",
		}).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	// drivers that don't surface *pq.Error still embed the SQLSTATE
	return err != nil && strings.Contains(err.Error(), pgUniqueViolation)
}
