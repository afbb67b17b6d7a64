package models

import (
	"time"
)

// Guest is the identity record behind one or more loyalty accounts.
// The ledger reads it to check the global block flag; phone verification
// happens upstream and is a precondition here.
type Guest struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Phone       string    `gorm:"uniqueIndex;not null" json:"phone"`
	Name        string    `gorm:"not null" json:"name"`
	Verified    bool      `gorm:"default:false" json:"verified"`
	Blocked     bool      `gorm:"default:false" json:"blocked"`
	BlockReason string    `gorm:"default:''" json:"block_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
