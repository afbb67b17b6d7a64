package points

import (
	"math"

	"loyka/internal/models"
)

// DefaultTiers is the five-level tier table used when a restaurant has not
// configured its own. Ranks follow ascending point thresholds.
func DefaultTiers() []models.TierDefinition {
	return []models.TierDefinition{
		{Name: "REGULAR", DiscountPercent: 0, MinPoints: 0, MaxPoints: 1000, Rank: 0},
		{Name: "BRONZE", DiscountPercent: 5, MinPoints: 1000, MaxPoints: 5000, Rank: 1},
		{Name: "SILVER", DiscountPercent: 10, MinPoints: 5000, MaxPoints: 20000, Rank: 2},
		{Name: "GOLD", DiscountPercent: 15, MinPoints: 20000, MaxPoints: 50000, Rank: 3},
		{Name: "PLATINUM", DiscountPercent: 20, MinPoints: 50000, MaxPoints: math.MaxInt64, Rank: 4},
	}
}

// MustDefaultPolicy builds the default policy. The default table is static
// and valid, so a failure here is a programming error.
func MustDefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultTiers())
	if err != nil {
		panic("invalid default tier table: " + err.Error())
	}
	return p
}
