package models

import (
	"time"
)

// Account statuses mirror the guest-level block: a blocked account rejects
// every ledger operation but keeps its history readable.
type GuestRestaurantAccount struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	GuestID       uint       `gorm:"not null;index;uniqueIndex:idx_guest_restaurant" json:"guest_id"`
	RestaurantID  uint       `gorm:"not null;index;uniqueIndex:idx_guest_restaurant" json:"restaurant_id"`
	TierName      string     `gorm:"not null" json:"tier_name"`
	BalancePoints int64      `gorm:"not null;default:0" json:"balance_points"`
	Blocked       bool       `gorm:"default:false" json:"blocked"`
	BlockReason   string     `gorm:"default:''" json:"block_reason,omitempty"`
	ActiveCardID  *uint      `gorm:"default:null" json:"active_card_id,omitempty"`
	VisitsCount   int        `gorm:"not null;default:0" json:"visits_count"`
	LastVisitAt   *time.Time `json:"last_visit_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewAccount centralizes the defaults for a fresh loyalty relationship:
// zero balance, lowest tier, not blocked, no card issued yet.
func NewAccount(guestID, restaurantID uint, tierName string) *GuestRestaurantAccount {
	return &GuestRestaurantAccount{
		GuestID:       guestID,
		RestaurantID:  restaurantID,
		TierName:      tierName,
		BalancePoints: 0,
		VisitsCount:   0,
	}
}
