package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loyka/internal/errors"
	"loyka/internal/models"
	"loyka/internal/repositories"
	"loyka/internal/services/card"
	"loyka/internal/services/notification"
	"loyka/internal/services/points"
)

type recordedEvent struct {
	AccountID uint
	Type      string
	Payload   models.JSON
}

// recordingSink captures dispatched events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *recordingSink) Notify(_ context.Context, accountID uint, eventType string, payload models.JSON) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{AccountID: accountID, Type: eventType, Payload: payload})
	return nil
}

func (s *recordingSink) byType(eventType string) []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedEvent
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	engine Service
	store  *repositories.MemoryStore
	sink   *recordingSink
	policy *points.Policy
	guests int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repositories.NewMemoryStore()
	policy := points.MustDefaultPolicy()
	sink := &recordingSink{}
	engine := NewService(store, policy, card.NewIssuer(), sink, Config{}, nil, nil)
	return &testEnv{engine: engine, store: store, sink: sink, policy: policy}
}

func (e *testEnv) seedAccount(t *testing.T, tier string, balance int64) *models.GuestRestaurantAccount {
	t.Helper()
	e.guests++
	guest := &models.Guest{Phone: fmt.Sprintf("+1999%07d", e.guests), Name: "Guest", Verified: true}
	require.NoError(t, e.store.CreateGuest(guest))

	account := models.NewAccount(guest.ID, 1, tier)
	account.BalancePoints = balance
	require.NoError(t, e.store.CreateAccount(account))
	return account
}

func (e *testEnv) seedBlockedGuest(t *testing.T, reason string) *models.GuestRestaurantAccount {
	t.Helper()
	e.guests++
	guest := &models.Guest{Phone: fmt.Sprintf("+1888%07d", e.guests), Name: "Blocked", Blocked: true, BlockReason: reason}
	require.NoError(t, e.store.CreateGuest(guest))

	account := models.NewAccount(guest.ID, 1, "REGULAR")
	require.NoError(t, e.store.CreateAccount(account))
	return account
}

func sale(accountID uint, amount float64, posID string) TransactionRequest {
	return TransactionRequest{
		AccountID: accountID,
		Type:      models.TransactionTypeSale,
		Amount:    amount,
		PosID:     posID,
	}
}

func refund(accountID uint, amount float64, posID string) TransactionRequest {
	return TransactionRequest{
		AccountID: accountID,
		Type:      models.TransactionTypeRefund,
		Amount:    amount,
		PosID:     posID,
	}
}

func TestProcessTransactionNewAccountSale(t *testing.T) {
	// scenario: new account, 0% tier, sale of 1000
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	tx, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 1000, "pos-1"))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), tx.BasePoints)
	assert.Equal(t, int64(0), tx.BonusPoints)
	assert.Equal(t, int64(0), tx.OldBalance)
	assert.Equal(t, int64(1000), tx.NewBalance)
	assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
	assert.NotEmpty(t, tx.Reference)

	stored, err := env.engine.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stored.BalancePoints)
	assert.Equal(t, 1, stored.VisitsCount)
	assert.NotNil(t, stored.LastVisitAt)
}

func TestProcessTransactionSilverBonus(t *testing.T) {
	// scenario: SILVER tier carries a 10% bonus
	env := newTestEnv(t)
	account := env.seedAccount(t, "SILVER", 0)

	tx, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 1000, "pos-1"))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), tx.BasePoints)
	assert.Equal(t, int64(100), tx.BonusPoints)
	assert.Equal(t, int64(1100), tx.NewBalance)
}

func TestProcessTransactionTierUpgradeRotatesCard(t *testing.T) {
	// scenario: crossing the 1000-point threshold upgrades the tier and
	// rotates the card in the same commit
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 500)

	_, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 300, "pos-0"))
	require.NoError(t, err)
	firstCard, err := env.engine.GetActiveCard(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotNil(t, firstCard)

	tx, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 600, "pos-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1400), tx.NewBalance)

	stored, err := env.engine.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, "BRONZE", stored.TierName)

	events, err := env.store.GetTierEvents(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.TierEventInitial, events[0].EventType)
	upgrade := events[1]
	assert.Equal(t, models.TierEventUpgrade, upgrade.EventType)
	require.NotNil(t, upgrade.FromTier)
	assert.Equal(t, "REGULAR", *upgrade.FromTier)
	assert.Equal(t, "BRONZE", upgrade.ToTier)

	newCard, err := env.engine.GetActiveCard(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotNil(t, newCard)
	assert.NotEqual(t, firstCard.QRToken, newCard.QRToken)

	// the previous card is invalidated by this transaction
	old, err := env.store.GetCardByToken(firstCard.QRToken)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	require.NotNil(t, old.InvalidatedByTransactionID)
	assert.Equal(t, tx.ID, *old.InvalidatedByTransactionID)
}

func TestProcessTransactionRefundTierDowngrade(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "SILVER", 5100)

	// 10% tier: 200 base + 20 bonus reclaimed, dropping below the
	// 5000-point SILVER threshold
	tx, err := env.engine.ProcessTransaction(context.Background(), refund(account.ID, 200, "pos-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(4880), tx.NewBalance)

	stored, err := env.engine.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, "BRONZE", stored.TierName)

	events, err := env.store.GetTierEvents(context.Background(), account.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, models.TierEventDowngrade, last.EventType)
	require.NotNil(t, last.FromTier)
	assert.Equal(t, "SILVER", *last.FromTier)
	assert.Equal(t, "BRONZE", last.ToTier)
}

func TestProcessTransactionRefundReducesBalance(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	_, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 800, "pos-1"))
	require.NoError(t, err)

	tx, err := env.engine.ProcessTransaction(context.Background(), refund(account.ID, 300, "pos-2"))
	require.NoError(t, err)
	assert.Equal(t, int64(800), tx.OldBalance)
	assert.Equal(t, int64(500), tx.NewBalance)
	assert.Empty(t, tx.Notes)

	stored, err := env.engine.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), stored.BalancePoints)
	// refunds do not count as visits
	assert.Equal(t, 1, stored.VisitsCount)
}

func TestProcessTransactionRefundClampsAtZero(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	_, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 500, "pos-1"))
	require.NoError(t, err)

	tx, err := env.engine.ProcessTransaction(context.Background(), refund(account.ID, 900, "pos-2"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), tx.NewBalance)
	assert.Contains(t, tx.Notes, "refund clamped")

	stored, err := env.engine.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.BalancePoints)
}

func TestProcessTransactionBlockedGuest(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedBlockedGuest(t, "fraud review")

	_, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 100, "pos-1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsGuestBlocked(err))
	assert.Contains(t, err.Error(), "fraud review")

	// nothing persisted
	stored, err := env.engine.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.BalancePoints)
	history, err := env.engine.GetHistory(context.Background(), account.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestProcessTransactionBlockedAccount(t *testing.T) {
	env := newTestEnv(t)
	guest := &models.Guest{Phone: "+15550001111", Name: "Sam", Verified: true}
	require.NoError(t, env.store.CreateGuest(guest))
	account := models.NewAccount(guest.ID, 1, "REGULAR")
	account.Blocked = true
	account.BlockReason = "chargeback dispute"
	require.NoError(t, env.store.CreateAccount(account))

	_, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 100, "pos-1"))
	assert.True(t, apperrors.IsGuestBlocked(err))
	assert.Contains(t, err.Error(), "chargeback dispute")
}

func TestProcessTransactionValidation(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	tests := []struct {
		name string
		req  TransactionRequest
	}{
		{"negative amount", sale(account.ID, -5, "pos-1")},
		{"zero amount", sale(account.ID, 0, "pos-1")},
		{"missing account id", sale(0, 100, "pos-1")},
		{"unsupported type", TransactionRequest{AccountID: account.ID, Type: "ADJUSTMENT", Amount: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.ProcessTransaction(context.Background(), tt.req)
			assert.True(t, apperrors.IsValidation(err))
		})
	}

	// no state was mutated
	stored, err := env.engine.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.BalancePoints)
	c, err := env.engine.GetActiveCard(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestProcessTransactionUnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ProcessTransaction(context.Background(), sale(42, 100, "pos-1"))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProcessTransactionIdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	first, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 1000, "pos-777"))
	require.NoError(t, err)

	second, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 1000, "pos-777"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Reference, second.Reference)

	stored, err := env.engine.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stored.BalancePoints, "replay must not award points twice")

	history, err := env.engine.GetHistory(context.Background(), account.ID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestProcessTransactionBalanceInvariant(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "GOLD", 0)

	amounts := []float64{120, 45.50, 999.99, 3, 10000}
	for i, amount := range amounts {
		tx, err := env.engine.ProcessTransaction(context.Background(),
			sale(account.ID, amount, fmt.Sprintf("pos-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, tx.OldBalance+tx.TotalPoints(), tx.NewBalance)
		assert.GreaterOrEqual(t, tx.NewBalance, int64(0))
	}
}

func TestSingleActiveCardInvariant(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	var tokens []string
	for i := 0; i < 5; i++ {
		_, err := env.engine.ProcessTransaction(context.Background(),
			sale(account.ID, 50, fmt.Sprintf("pos-%d", i)))
		require.NoError(t, err)

		active, err := env.engine.GetActiveCard(context.Background(), account.ID)
		require.NoError(t, err)
		require.NotNil(t, active)
		tokens = append(tokens, active.QRToken)
	}

	// every earlier card is invalidated, only the latest is active
	for _, token := range tokens[:len(tokens)-1] {
		c, err := env.store.GetCardByToken(token)
		require.NoError(t, err)
		assert.False(t, c.IsActive)
		assert.NotNil(t, c.InvalidatedAt)
	}
	latest, err := env.store.GetCardByToken(tokens[len(tokens)-1])
	require.NoError(t, err)
	assert.True(t, latest.IsActive)
}

func TestTryProcessTransactionFailsFastUnderContention(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	unlock := env.store.LockAccount(account.ID)
	defer unlock()

	_, err := env.engine.TryProcessTransaction(context.Background(), sale(account.ID, 100, "pos-1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConcurrent(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestConcurrentTransactionsSerialize(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.engine.ProcessTransaction(context.Background(),
				sale(account.ID, 10, fmt.Sprintf("pos-%d", n)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := env.engine.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10*workers), stored.BalancePoints)

	// the committed sequence is serializable: each transaction observes the
	// previous one's new balance as its old balance
	history, err := env.engine.GetHistory(context.Background(), account.ID, 1, workers)
	require.NoError(t, err)
	require.Len(t, history, workers)
	for i := 0; i < len(history)-1; i++ {
		assert.Equal(t, history[i+1].NewBalance, history[i].OldBalance)
	}
}

// staleWriteStore simulates another writer committing between the engine's
// read and its WriteAll, as a stale cache read would.
type staleWriteStore struct {
	*repositories.MemoryStore
}

func (s *staleWriteStore) WriteAll(context.Context, *repositories.WriteBatch) error {
	return repositories.ErrStaleAccount
}

func TestProcessTransactionStaleBalanceIsConcurrent(t *testing.T) {
	store := repositories.NewMemoryStore()
	guest := &models.Guest{Phone: "+19990009999", Name: "Guest", Verified: true}
	require.NoError(t, store.CreateGuest(guest))
	account := models.NewAccount(guest.ID, 1, "REGULAR")
	require.NoError(t, store.CreateAccount(account))

	engine := NewService(&staleWriteStore{store}, points.MustDefaultPolicy(),
		card.NewIssuer(), &recordingSink{}, Config{}, nil, nil)

	_, err := engine.ProcessTransaction(context.Background(), sale(account.ID, 100, "pos-1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConcurrent(err), "stale commit must surface as a conflict, got %v", err)
	assert.True(t, apperrors.IsRetryable(err))

	// nothing was committed under the stale write
	stored, getErr := store.GetAccount(account.ID)
	require.NoError(t, getErr)
	assert.Equal(t, int64(0), stored.BalancePoints)
}

func TestConcurrentTransactionsDifferentAccountsProceed(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedAccount(t, "REGULAR", 0)
	b := env.seedAccount(t, "REGULAR", 0)

	var wg sync.WaitGroup
	for _, account := range []*models.GuestRestaurantAccount{a, b} {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, err := env.engine.ProcessTransaction(context.Background(),
					sale(id, 20, fmt.Sprintf("pos-%d-%d", id, i)))
				assert.NoError(t, err)
			}
		}(account.ID)
	}
	wg.Wait()

	for _, account := range []*models.GuestRestaurantAccount{a, b} {
		stored, err := env.engine.GetAccount(context.Background(), account.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), stored.BalancePoints)
	}
}

func TestNotificationsDispatchedAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 900)

	_, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 200, "pos-1"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(env.sink.byType(notification.EventBalanceChanged)) == 1 &&
			len(env.sink.byType(notification.EventCardRotated)) == 1 &&
			len(env.sink.byType(notification.EventTierChanged)) == 1
	}, time.Second, 10*time.Millisecond, "expected balance, card and tier events")

	balance := env.sink.byType(notification.EventBalanceChanged)[0]
	assert.Equal(t, account.ID, balance.AccountID)
	assert.Equal(t, int64(1100), balance.Payload["new_balance"])
}

func TestGetHistoryPaging(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	for i := 0; i < 5; i++ {
		_, err := env.engine.ProcessTransaction(context.Background(),
			sale(account.ID, float64(100+i), fmt.Sprintf("pos-%d", i)))
		require.NoError(t, err)
	}

	page1, err := env.engine.GetHistory(context.Background(), account.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	// newest first
	assert.Equal(t, "pos-4", page1[0].PosID)

	page3, err := env.engine.GetHistory(context.Background(), account.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "pos-0", page3[0].PosID)

	_, err = env.engine.GetHistory(context.Background(), 9999, 1, 10)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetActiveCardNoneBeforeFirstTransaction(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	c, err := env.engine.GetActiveCard(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = env.engine.GetActiveCard(context.Background(), 9999)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRevokeCard(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	_, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 100, "pos-1"))
	require.NoError(t, err)
	before, err := env.engine.GetActiveCard(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotNil(t, before)

	replacement, err := env.engine.RevokeCard(context.Background(), account.ID, "lost phone")
	require.NoError(t, err)
	require.NotNil(t, replacement)
	assert.NotEqual(t, before.QRToken, replacement.QRToken)

	old, err := env.store.GetCardByToken(before.QRToken)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	// manual revocation is not tied to a settlement
	assert.Nil(t, old.InvalidatedByTransactionID)
}

func TestRevokeCardBlockedAccountIssuesNoReplacement(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "REGULAR", 0)

	_, err := env.engine.ProcessTransaction(context.Background(), sale(account.ID, 100, "pos-1"))
	require.NoError(t, err)

	// block after the first sale, then revoke
	stored, err := env.store.GetAccount(account.ID)
	require.NoError(t, err)
	stored.Blocked = true
	stored.BlockReason = "admin hold"
	require.NoError(t, env.store.WriteAll(context.Background(), &repositories.WriteBatch{Account: stored}))

	replacement, err := env.engine.RevokeCard(context.Background(), account.ID, "cleanup")
	require.NoError(t, err)
	assert.Nil(t, replacement)

	c, err := env.engine.GetActiveCard(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Nil(t, c)
}
