package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"loyka/internal/models"
)

// MemoryStore is the in-memory reference implementation of AccountStore.
// It backs the unit tests and single-process deployments without Postgres.
// All reads return copies so callers never alias stored state.
type MemoryStore struct {
	mu    sync.RWMutex
	locks *lockTable

	guests       map[uint]models.Guest
	accounts     map[uint]models.GuestRestaurantAccount
	cards        map[uint]models.CardIdentifier
	transactions map[uint]models.Transaction
	details      map[uint]models.BalanceDetail
	tierEvents   []models.TierEvent

	guestSeq uint
	acctSeq  uint
	cardSeq  uint
	txSeq    uint
	dtlSeq   uint
	evtSeq   uint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:        newLockTable(),
		guests:       make(map[uint]models.Guest),
		accounts:     make(map[uint]models.GuestRestaurantAccount),
		cards:        make(map[uint]models.CardIdentifier),
		transactions: make(map[uint]models.Transaction),
		details:      make(map[uint]models.BalanceDetail),
	}
}

func (s *MemoryStore) LockAccount(accountID uint) UnlockFunc {
	return s.locks.acquire(accountID)
}

func (s *MemoryStore) TryLockAccount(accountID uint) (UnlockFunc, bool) {
	return s.locks.tryAcquire(accountID)
}

func (s *MemoryStore) GetGuest(id uint) (*models.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guests[id]
	if !ok {
		return nil, ErrGuestNotFound
	}
	out := g
	return &out, nil
}

func (s *MemoryStore) GetAccount(accountID uint) (*models.GuestRestaurantAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := a
	return &out, nil
}

func (s *MemoryStore) GetActiveCard(accountID uint) (*models.CardIdentifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cards {
		if c.AccountID == accountID && c.IsActive {
			out := c
			return &out, nil
		}
	}
	return nil, ErrCardNotFound
}

func (s *MemoryStore) GetCardByToken(qrToken string) (*models.CardIdentifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cards {
		if c.QRToken == qrToken {
			out := c
			return &out, nil
		}
	}
	return nil, ErrCardNotFound
}

func (s *MemoryStore) GetTransactionByPosID(accountID uint, posID string) (*models.Transaction, error) {
	if posID == "" {
		return nil, ErrTransactionNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.transactions {
		if tx.AccountID == accountID && tx.PosID == posID {
			out := tx
			return &out, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (s *MemoryStore) GetTransactionHistory(_ context.Context, accountID uint, limit, offset int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Transaction
	for _, tx := range s.transactions {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	// newest first, ID as tiebreaker for equal timestamps
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetTierEvents(_ context.Context, accountID uint) ([]models.TierEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TierEvent
	for _, e := range s.tierEvents {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

// WriteAll commits a batch all-or-nothing: every check runs before the
// first mutation, so a failed batch leaves the store untouched.
func (s *MemoryStore) WriteAll(_ context.Context, batch *WriteBatch) error {
	if err := batch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[batch.Account.ID]
	if !ok {
		return ErrAccountNotFound
	}
	if batch.Transaction != nil && batch.Transaction.PosID != "" {
		for _, tx := range s.transactions {
			if tx.AccountID == batch.Transaction.AccountID && tx.PosID == batch.Transaction.PosID {
				return ErrDuplicatePosID
			}
		}
	}
	// a settlement is only valid against the balance it was computed from
	if batch.Transaction != nil && current.BalancePoints != batch.Transaction.OldBalance {
		return ErrStaleAccount
	}
	if batch.Transaction == nil {
		// non-settlement writes never move the balance
		batch.Account.BalancePoints = current.BalancePoints
	}
	if batch.InvalidatedCard != nil {
		stored, ok := s.cards[batch.InvalidatedCard.ID]
		if !ok {
			return ErrCardNotFound
		}
		if !stored.IsActive {
			return ErrInvalidBatch
		}
	}

	// point of no return: all checks passed, apply everything
	if batch.Transaction != nil {
		s.txSeq++
		batch.Transaction.ID = s.txSeq
		if batch.Transaction.CreatedAt.IsZero() {
			batch.Transaction.CreatedAt = time.Now()
		}
		s.transactions[batch.Transaction.ID] = *batch.Transaction

		s.dtlSeq++
		batch.BalanceDetail.ID = s.dtlSeq
		batch.BalanceDetail.TransactionID = batch.Transaction.ID
		if batch.BalanceDetail.CreatedAt.IsZero() {
			batch.BalanceDetail.CreatedAt = batch.Transaction.CreatedAt
		}
		s.details[batch.BalanceDetail.ID] = *batch.BalanceDetail
	}

	if batch.InvalidatedCard != nil {
		if batch.Transaction != nil {
			txID := batch.Transaction.ID
			batch.InvalidatedCard.InvalidatedByTransactionID = &txID
		}
		s.cards[batch.InvalidatedCard.ID] = *batch.InvalidatedCard
	}

	if batch.NewCard != nil {
		s.cardSeq++
		batch.NewCard.ID = s.cardSeq
		s.cards[batch.NewCard.ID] = *batch.NewCard
	}

	if batch.TierEvent != nil {
		s.evtSeq++
		batch.TierEvent.ID = s.evtSeq
		if batch.TierEvent.CreatedAt.IsZero() {
			batch.TierEvent.CreatedAt = time.Now()
		}
		s.tierEvents = append(s.tierEvents, *batch.TierEvent)
	}

	if batch.NewCard != nil {
		cardID := batch.NewCard.ID
		batch.Account.ActiveCardID = &cardID
	} else if batch.InvalidatedCard != nil {
		batch.Account.ActiveCardID = nil
	}
	batch.Account.UpdatedAt = time.Now()
	s.accounts[batch.Account.ID] = *batch.Account

	return nil
}

func (s *MemoryStore) CreateGuest(guest *models.Guest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guestSeq++
	guest.ID = s.guestSeq
	if guest.CreatedAt.IsZero() {
		guest.CreatedAt = time.Now()
	}
	s.guests[guest.ID] = *guest
	return nil
}

func (s *MemoryStore) CreateAccount(account *models.GuestRestaurantAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.GuestID == account.GuestID && a.RestaurantID == account.RestaurantID {
			return ErrDuplicateAccount
		}
	}
	s.acctSeq++
	account.ID = s.acctSeq
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	s.accounts[account.ID] = *account

	// first tier assignment is part of the audit trail
	s.evtSeq++
	s.tierEvents = append(s.tierEvents, models.TierEvent{
		ID:        s.evtSeq,
		AccountID: account.ID,
		ToTier:    account.TierName,
		EventType: models.TierEventInitial,
		Reason:    "account created",
		CreatedAt: account.CreatedAt,
	})
	return nil
}
