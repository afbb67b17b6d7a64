// Package card issues and retires the rotating credentials guests present
// at the POS. A card is a QR token plus an independent six-digit code for
// manual entry; rotation on every settlement keeps tokens single-use.
package card

import (
	"time"

	"loyka/internal/errors"
	"loyka/internal/models"
	"loyka/internal/utils"
)

// Issuer creates and invalidates card identifiers.
type Issuer interface {
	Issue(accountID, restaurantID uint) (*models.CardIdentifier, error)
	Invalidate(card *models.CardIdentifier, byTransactionID uint) error
}

type issuer struct {
	now func() time.Time
}

// NewIssuer creates a card issuer.
func NewIssuer() Issuer {
	return &issuer{now: time.Now}
}

// Issue produces a fresh active card: a 256-bit URL-safe QR token and an
// independently drawn six-digit code. Global uniqueness is enforced by the
// store's unique indexes; the entropy makes collisions practically impossible.
func (i *issuer) Issue(accountID, restaurantID uint) (*models.CardIdentifier, error) {
	if accountID == 0 || restaurantID == 0 {
		return nil, errors.Validation("account and restaurant are required to issue a card")
	}

	token, err := utils.GenerateSecureToken()
	if err != nil {
		return nil, errors.OperationFailed(err, "failed to generate qr token")
	}

	code, err := utils.GenerateSixDigitCode()
	if err != nil {
		return nil, errors.OperationFailed(err, "failed to generate card code")
	}

	return &models.CardIdentifier{
		AccountID:    accountID,
		RestaurantID: restaurantID,
		QRToken:      token,
		SixDigitCode: code,
		IsActive:     true,
		CreatedAt:    i.now(),
	}, nil
}

// Invalidate retires an active card exactly once. byTransactionID is the
// settling transaction, or 0 for an explicit revocation outside a sale.
// Invalidating twice is a programming error and is not swallowed.
func (i *issuer) Invalidate(card *models.CardIdentifier, byTransactionID uint) error {
	if card == nil {
		return errors.Validation("card is required")
	}
	if !card.IsActive {
		return errors.InvalidState("card %d is already invalidated", card.ID)
	}

	now := i.now()
	card.IsActive = false
	card.InvalidatedAt = &now
	if byTransactionID != 0 {
		card.InvalidatedByTransactionID = &byTransactionID
	}
	return nil
}
