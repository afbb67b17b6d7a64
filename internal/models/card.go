package models

import (
	"time"
)

// CardIdentifier is the rotating credential a guest presents at the POS.
// A card is created active and invalidated exactly once; it is never
// reactivated, so each account carries an append-only chain of cards.
type CardIdentifier struct {
	ID                         uint       `gorm:"primarykey" json:"id"`
	AccountID                  uint       `gorm:"not null;index" json:"account_id"`
	RestaurantID               uint       `gorm:"not null;index" json:"restaurant_id"`
	QRToken                    string     `gorm:"uniqueIndex;not null" json:"qr_token"`
	SixDigitCode               string     `gorm:"uniqueIndex;not null" json:"six_digit_code"`
	IsActive                   bool       `gorm:"not null;default:true" json:"is_active"`
	InvalidatedAt              *time.Time `json:"invalidated_at,omitempty"`
	InvalidatedByTransactionID *uint      `json:"invalidated_by_transaction_id,omitempty"`
	CreatedAt                  time.Time  `json:"created_at"`
}
