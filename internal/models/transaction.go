package models

import (
	"time"
)

// Transaction types
const (
	TransactionTypeSale       = "SALE"
	TransactionTypeRefund     = "REFUND"
	TransactionTypeAdjustment = "ADJUSTMENT"
)

// Transaction statuses
const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
)

// Transaction is the immutable record of one ledger operation. Rows are
// never mutated after reaching COMPLETED or FAILED.
type Transaction struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	Reference    string    `gorm:"uniqueIndex;not null" json:"reference"` // external reference, uuid
	AccountID    uint      `gorm:"not null;index;index:idx_account_pos,unique,where:pos_id <> ''" json:"account_id"`
	RestaurantID uint      `gorm:"not null;index" json:"restaurant_id"`
	Type         string    `gorm:"not null" json:"type"`
	Amount       float64   `gorm:"not null" json:"amount"`
	BasePoints   int64     `gorm:"not null;default:0" json:"base_points"`
	BonusPoints  int64     `gorm:"not null;default:0" json:"bonus_points"`
	OldBalance   int64     `gorm:"not null" json:"old_balance"`
	NewBalance   int64     `gorm:"not null" json:"new_balance"`
	Status       string    `gorm:"not null;default:'PENDING'" json:"status"`
	PosID        string    `gorm:"index:idx_account_pos,unique,where:pos_id <> ''" json:"pos_id,omitempty"` // idempotency key
	Notes        string    `json:"notes,omitempty"`
	Metadata     JSON      `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TotalPoints returns the signed-magnitude award of the transaction.
func (t *Transaction) TotalPoints() int64 {
	return t.BasePoints + t.BonusPoints
}

// BalanceDetail is the immutable breakdown of one transaction's effect on
// the balance, one-to-one with the transaction that produced it.
type BalanceDetail struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	AccountID     uint      `gorm:"not null;index" json:"account_id"`
	TransactionID uint      `gorm:"uniqueIndex;not null" json:"transaction_id"`
	Type          string    `gorm:"not null" json:"type"`
	BasePoints    int64     `gorm:"not null" json:"base_points"`
	BonusPoints   int64     `gorm:"not null" json:"bonus_points"`
	OldBalance    int64     `gorm:"not null" json:"old_balance"`
	NewBalance    int64     `gorm:"not null" json:"new_balance"`
	CreatedAt     time.Time `json:"created_at"`
}
