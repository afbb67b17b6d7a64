package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"loyka/internal/errors"
	"loyka/internal/models"
	"loyka/internal/repositories"
	"loyka/internal/services/card"
	"loyka/internal/services/notification"
	"loyka/internal/services/points"
)

type service struct {
	store   repositories.AccountStore
	policy  *points.Policy
	issuer  card.Issuer
	sink    notification.Sink
	metrics MetricsCollector
	logger  *logrus.Entry
	config  Config
}

// NewService creates the ledger engine. sink may be nil (no notifications)
// and metrics may be nil (no-op collector).
func NewService(
	store repositories.AccountStore,
	policy *points.Policy,
	issuer card.Issuer,
	sink notification.Sink,
	config Config,
	metrics MetricsCollector,
	logger *logrus.Entry,
) Service {
	if store == nil {
		panic("account store is required")
	}
	if policy == nil {
		panic("points policy is required")
	}
	if issuer == nil {
		panic("card issuer is required")
	}
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.NotifyTimeout == 0 {
		config.NotifyTimeout = DefaultNotifyTimeout
	}

	return &service{
		store:   store,
		policy:  policy,
		issuer:  issuer,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		config:  config,
	}
}

func (s *service) ProcessTransaction(ctx context.Context, req TransactionRequest) (*models.Transaction, error) {
	if err := validateRequest(req); err != nil {
		s.metrics.RecordError(opProcess, errors.CodeOf(err))
		return nil, err
	}

	unlock := s.store.LockAccount(req.AccountID)
	defer unlock()

	return s.process(ctx, req)
}

func (s *service) TryProcessTransaction(ctx context.Context, req TransactionRequest) (*models.Transaction, error) {
	if err := validateRequest(req); err != nil {
		s.metrics.RecordError(opProcess, errors.CodeOf(err))
		return nil, err
	}

	unlock, ok := s.store.TryLockAccount(req.AccountID)
	if !ok {
		s.metrics.RecordError(opProcess, errors.CodeConcurrent)
		return nil, errors.Concurrent("another transaction for account %d is in flight", req.AccountID)
	}
	defer unlock()

	return s.process(ctx, req)
}

func validateRequest(req TransactionRequest) error {
	if req.AccountID == 0 {
		return errors.Validation("account id is required")
	}
	if req.Type != models.TransactionTypeSale && req.Type != models.TransactionTypeRefund {
		return errors.Validation("unsupported transaction type %q", req.Type)
	}
	if req.Amount <= 0 {
		return errors.Validation("amount must be a positive magnitude, got %v", req.Amount)
	}
	return nil
}

// process runs Validating, Computing and Committing under the account lock.
func (s *service) process(_ context.Context, req TransactionRequest) (*models.Transaction, error) {
	started := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration(opProcess, time.Since(started))
	}()

	// Validating
	account, err := s.store.GetAccount(req.AccountID)
	if err != nil {
		return nil, s.rejected(opProcess, mapStoreError(err, "account %d", req.AccountID))
	}
	guest, err := s.store.GetGuest(account.GuestID)
	if err != nil {
		return nil, s.rejected(opProcess, mapStoreError(err, "guest %d", account.GuestID))
	}
	if guest.Blocked {
		return nil, s.rejected(opProcess, errors.GuestBlocked(guest.BlockReason))
	}
	if account.Blocked {
		return nil, s.rejected(opProcess, errors.GuestBlocked(account.BlockReason))
	}

	// idempotent replay: same (account, posId) returns the original row
	if req.PosID != "" {
		if existing, err := s.store.GetTransactionByPosID(account.ID, req.PosID); err == nil {
			s.metrics.RecordOperationResult(opProcess, "replayed")
			return existing, nil
		}
	}

	// Computing
	discount := s.policy.DiscountForTier(account.TierName)
	award, err := s.policy.ComputeAward(req.Amount, discount)
	if err != nil {
		return nil, s.rejected(opProcess, err)
	}

	oldBalance := account.BalancePoints
	delta := award.TotalPoints
	notes := req.Notes
	if req.Type == models.TransactionTypeRefund {
		delta = -delta
		// a refund never drives the balance negative; the clamp is recorded
		if oldBalance+delta < 0 {
			notes = appendNote(notes, fmt.Sprintf(
				"refund clamped: %d points requested, %d available", award.TotalPoints, oldBalance))
			delta = -oldBalance
		}
	}
	newBalance := oldBalance + delta

	// Committing
	now := time.Now()
	tx := &models.Transaction{
		Reference:    uuid.NewString(),
		AccountID:    account.ID,
		RestaurantID: account.RestaurantID,
		Type:         req.Type,
		Amount:       req.Amount,
		BasePoints:   award.BasePoints,
		BonusPoints:  award.BonusPoints,
		OldBalance:   oldBalance,
		NewBalance:   newBalance,
		Status:       models.TransactionStatusCompleted,
		PosID:        req.PosID,
		Notes:        notes,
		Metadata:     models.NewJSON(req.Metadata),
		CreatedAt:    now,
	}
	detail := &models.BalanceDetail{
		AccountID:   account.ID,
		Type:        req.Type,
		BasePoints:  award.BasePoints,
		BonusPoints: award.BonusPoints,
		OldBalance:  oldBalance,
		NewBalance:  newBalance,
		CreatedAt:   now,
	}

	account.BalancePoints = newBalance
	account.LastVisitAt = &now
	if req.Type == models.TransactionTypeSale {
		account.VisitsCount++
	}

	oldTier := account.TierName
	newTier, err := s.policy.TierForPoints(newBalance)
	if err != nil {
		return nil, s.rejected(opProcess, err)
	}
	var tierEvent *models.TierEvent
	if newTier != oldTier {
		eventType := models.TierEventUpgrade
		if s.policy.CompareTiers(newTier, oldTier) < 0 {
			eventType = models.TierEventDowngrade
		}
		from := oldTier
		tierEvent = &models.TierEvent{
			AccountID: account.ID,
			FromTier:  &from,
			ToTier:    newTier,
			EventType: eventType,
			Reason:    fmt.Sprintf("balance reached %d points", newBalance),
			CreatedAt: now,
		}
		account.TierName = newTier
	}

	invalidated, err := s.retireActiveCard(account.ID)
	if err != nil {
		return nil, s.rejected(opProcess, err)
	}
	newCard, err := s.issuer.Issue(account.ID, account.RestaurantID)
	if err != nil {
		return nil, s.rejected(opProcess, err)
	}

	batch := &repositories.WriteBatch{
		Account:         account,
		Transaction:     tx,
		BalanceDetail:   detail,
		TierEvent:       tierEvent,
		InvalidatedCard: invalidated,
		NewCard:         newCard,
	}

	// the commit runs to completion regardless of caller cancellation;
	// callers that time out must re-query by pos id before retrying
	if err := s.store.WriteAll(context.Background(), batch); err != nil {
		if stderrors.Is(err, repositories.ErrDuplicatePosID) {
			if existing, lookupErr := s.store.GetTransactionByPosID(account.ID, req.PosID); lookupErr == nil {
				s.metrics.RecordOperationResult(opProcess, "replayed")
				return existing, nil
			}
		}
		if stderrors.Is(err, repositories.ErrStaleAccount) {
			s.metrics.RecordError(opProcess, errors.CodeConcurrent)
			return nil, errors.Concurrent("account %d changed during commit, retry", account.ID)
		}
		s.metrics.RecordError(opProcess, errors.CodeOperation)
		return nil, errors.OperationFailed(err, "ledger commit failed")
	}

	s.metrics.RecordOperationResult(opProcess, "completed")
	s.metrics.RecordTransaction(req.Type, delta)
	s.metrics.RecordBalanceChange(account.ID, oldBalance, newBalance)
	s.logger.WithFields(logrus.Fields{
		"account_id":  account.ID,
		"type":        req.Type,
		"reference":   tx.Reference,
		"old_balance": oldBalance,
		"new_balance": newBalance,
	}).Info("transaction committed")

	s.dispatch(account.ID, s.completedEvents(tx, tierEvent, newCard))
	return tx, nil
}

// retireActiveCard loads and invalidates the current active card, if any.
// The settling transaction's ID is linked by the store at commit time.
func (s *service) retireActiveCard(accountID uint) (*models.CardIdentifier, error) {
	current, err := s.store.GetActiveCard(accountID)
	if err != nil {
		if stderrors.Is(err, repositories.ErrCardNotFound) {
			return nil, nil
		}
		return nil, errors.OperationFailed(err, "failed to load active card")
	}
	if err := s.issuer.Invalidate(current, 0); err != nil {
		return nil, err
	}
	return current, nil
}

func (s *service) GetAccount(_ context.Context, accountID uint) (*models.GuestRestaurantAccount, error) {
	account, err := s.store.GetAccount(accountID)
	if err != nil {
		return nil, mapStoreError(err, "account %d", accountID)
	}
	return account, nil
}

func (s *service) GetHistory(ctx context.Context, accountID uint, page, limit int) ([]models.Transaction, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	if _, err := s.store.GetAccount(accountID); err != nil {
		return nil, mapStoreError(err, "account %d", accountID)
	}

	history, err := s.store.GetTransactionHistory(ctx, accountID, limit, (page-1)*limit)
	if err != nil {
		return nil, errors.OperationFailed(err, "failed to read transaction history")
	}
	return history, nil
}

func (s *service) GetActiveCard(_ context.Context, accountID uint) (*models.CardIdentifier, error) {
	if _, err := s.store.GetAccount(accountID); err != nil {
		return nil, mapStoreError(err, "account %d", accountID)
	}

	c, err := s.store.GetActiveCard(accountID)
	if err != nil {
		if stderrors.Is(err, repositories.ErrCardNotFound) {
			return nil, nil
		}
		return nil, errors.OperationFailed(err, "failed to read active card")
	}
	return c, nil
}

func (s *service) RevokeCard(_ context.Context, accountID uint, reason string) (*models.CardIdentifier, error) {
	unlock := s.store.LockAccount(accountID)
	defer unlock()

	account, err := s.store.GetAccount(accountID)
	if err != nil {
		return nil, s.rejected(opRevoke, mapStoreError(err, "account %d", accountID))
	}

	invalidated, err := s.retireActiveCard(account.ID)
	if err != nil {
		return nil, s.rejected(opRevoke, err)
	}

	// a blocked account keeps zero active cards; otherwise issue a replacement
	var newCard *models.CardIdentifier
	if !account.Blocked {
		newCard, err = s.issuer.Issue(account.ID, account.RestaurantID)
		if err != nil {
			return nil, s.rejected(opRevoke, err)
		}
	}

	if invalidated == nil && newCard == nil {
		return nil, nil
	}

	batch := &repositories.WriteBatch{
		Account:         account,
		InvalidatedCard: invalidated,
		NewCard:         newCard,
	}
	if err := s.store.WriteAll(context.Background(), batch); err != nil {
		s.metrics.RecordError(opRevoke, errors.CodeOperation)
		return nil, errors.OperationFailed(err, "card revocation failed")
	}

	s.metrics.RecordOperationResult(opRevoke, "completed")
	s.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"reason":     reason,
	}).Info("card revoked")

	if newCard != nil {
		s.dispatch(accountID, []pendingEvent{{
			eventType: notification.EventCardRotated,
			payload:   models.JSON{"card_id": newCard.ID, "reason": reason},
		}})
	}
	return newCard, nil
}

type pendingEvent struct {
	eventType string
	payload   models.JSON
}

func (s *service) completedEvents(tx *models.Transaction, tierEvent *models.TierEvent, newCard *models.CardIdentifier) []pendingEvent {
	events := []pendingEvent{{
		eventType: notification.EventBalanceChanged,
		payload: models.JSON{
			"reference":   tx.Reference,
			"type":        tx.Type,
			"old_balance": tx.OldBalance,
			"new_balance": tx.NewBalance,
			"points":      tx.TotalPoints(),
		},
	}}
	if tierEvent != nil {
		events = append(events, pendingEvent{
			eventType: notification.EventTierChanged,
			payload: models.JSON{
				"from_tier":  tierEvent.FromTier,
				"to_tier":    tierEvent.ToTier,
				"event_type": tierEvent.EventType,
			},
		})
	}
	events = append(events, pendingEvent{
		eventType: notification.EventCardRotated,
		payload:   models.JSON{"card_id": newCard.ID},
	})
	return events
}

// dispatch delivers events on a separate goroutine; the engine never waits
// for, and never fails on, notification delivery.
func (s *service) dispatch(accountID uint, events []pendingEvent) {
	if s.sink == nil || len(events) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.NotifyTimeout)
		defer cancel()
		for _, e := range events {
			if err := s.sink.Notify(ctx, accountID, e.eventType, e.payload); err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"account_id": accountID,
					"event_type": e.eventType,
				}).Warn("notification delivery failed")
			}
		}
	}()
}

func (s *service) rejected(operation string, err error) error {
	s.metrics.RecordError(operation, errors.CodeOf(err))
	return err
}

func mapStoreError(err error, format string, args ...interface{}) error {
	switch {
	case stderrors.Is(err, repositories.ErrAccountNotFound),
		stderrors.Is(err, repositories.ErrGuestNotFound):
		return errors.NotFound(format+" not found", args...)
	default:
		return errors.OperationFailed(err, fmt.Sprintf(format, args...))
	}
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}
