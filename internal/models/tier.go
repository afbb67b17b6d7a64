package models

import (
	"time"
)

// Tier event types
const (
	TierEventUpgrade   = "UPGRADE"
	TierEventDowngrade = "DOWNGRADE"
	TierEventInitial   = "INITIAL"
)

// TierDefinition is one named discount band. MinPoints/MaxPoints form a
// half-open range [min, max); Rank carries the explicit total order used
// for upgrade/downgrade decisions instead of inferring it from names.
type TierDefinition struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	Name            string    `gorm:"uniqueIndex;not null" json:"name"`
	DiscountPercent int       `gorm:"not null" json:"discount_percent"`
	MinPoints       int64     `gorm:"not null" json:"min_points"`
	MaxPoints       int64     `gorm:"not null" json:"max_points"`
	Rank            int       `gorm:"not null" json:"rank"`
	CreatedAt       time.Time `json:"created_at"`
}

// TierEvent is the immutable audit record of one tier change.
type TierEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	AccountID uint      `gorm:"not null;index" json:"account_id"`
	FromTier  *string   `json:"from_tier,omitempty"`
	ToTier    string    `gorm:"not null" json:"to_tier"`
	EventType string    `gorm:"not null" json:"event_type"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
