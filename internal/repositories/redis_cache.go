package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"loyka/internal/models"
)

// RedisCacheRepository caches accounts and active cards in Redis.
type RedisCacheRepository struct {
	client *redis.Client
}

func NewRedisCacheRepository(client *redis.Client) CacheRepository {
	return &RedisCacheRepository{client: client}
}

func accountKey(accountID uint) string {
	return fmt.Sprintf("%s%d", accountCachePrefix, accountID)
}

func cardKey(accountID uint) string {
	return fmt.Sprintf("%s%d", cardCachePrefix, accountID)
}

func (r *RedisCacheRepository) GetAccount(ctx context.Context, accountID uint) (*models.GuestRestaurantAccount, error) {
	val, err := r.client.Get(ctx, accountKey(accountID)).Bytes()
	if err != nil {
		return nil, err
	}
	var account models.GuestRestaurantAccount
	if err := json.Unmarshal(val, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *RedisCacheRepository) SetAccount(ctx context.Context, account *models.GuestRestaurantAccount) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, accountKey(account.ID), data, CacheDuration).Err()
}

func (r *RedisCacheRepository) GetActiveCard(ctx context.Context, accountID uint) (*models.CardIdentifier, error) {
	val, err := r.client.Get(ctx, cardKey(accountID)).Bytes()
	if err != nil {
		return nil, err
	}
	var card models.CardIdentifier
	if err := json.Unmarshal(val, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *RedisCacheRepository) SetActiveCard(ctx context.Context, card *models.CardIdentifier) error {
	data, err := json.Marshal(card)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, cardKey(card.AccountID), data, CacheDuration).Err()
}

// InvalidateAccount drops both the account and its active-card entry; it
// runs after every committed write.
func (r *RedisCacheRepository) InvalidateAccount(ctx context.Context, accountID uint) error {
	return r.client.Del(ctx, accountKey(accountID), cardKey(accountID)).Err()
}

func (r *RedisCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	return r.client.Get(ctx, key).Bytes()
}

func (r *RedisCacheRepository) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisCacheRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
