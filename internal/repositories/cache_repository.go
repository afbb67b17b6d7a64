package repositories

import (
	"context"
	"time"

	"loyka/internal/models"
)

// Cache keys and durations
const (
	accountCachePrefix = "loyalty:account:"
	cardCachePrefix    = "loyalty:card:"
	CacheDuration      = 5 * time.Minute
)

// CacheRepository is the cache-aside layer in front of the account store
// read paths. Implementations must tolerate misses silently; the store
// always falls back to the database.
type CacheRepository interface {
	GetAccount(ctx context.Context, accountID uint) (*models.GuestRestaurantAccount, error)
	SetAccount(ctx context.Context, account *models.GuestRestaurantAccount) error
	GetActiveCard(ctx context.Context, accountID uint) (*models.CardIdentifier, error)
	SetActiveCard(ctx context.Context, card *models.CardIdentifier) error
	InvalidateAccount(ctx context.Context, accountID uint) error

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
