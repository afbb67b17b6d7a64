// Package points implements the pure award and tier math of the loyalty
// ledger. A Policy is immutable after construction and safe for concurrent
// use without locking; isolating the math here keeps the engine testable
// without storage and makes every award reproducible for reconciliation.
package points

import (
	"math"
	"sort"

	"loyka/internal/errors"
	"loyka/internal/models"
)

// MaxAmount caps transaction amounts. Above this bound float64 no longer
// represents whole currency units exactly, so the floored base points would
// drift and eventually wrap around int64.
const MaxAmount = 1e15

// Award is the points outcome of one transaction amount.
type Award struct {
	BasePoints  int64
	BonusPoints int64
	TotalPoints int64
}

// Policy resolves amounts to awards and balances to tiers against a fixed
// tier table loaded once at process start.
type Policy struct {
	tiers    []models.TierDefinition // ascending by MinPoints
	byName   map[string]models.TierDefinition
	rankOf   map[string]int
	baseTier string
}

// NewPolicy validates the tier table and builds an immutable policy.
// Ranges must be contiguous, non-overlapping and start at zero.
func NewPolicy(tiers []models.TierDefinition) (*Policy, error) {
	if len(tiers) == 0 {
		return nil, errors.Validation("tier table must not be empty")
	}

	ordered := make([]models.TierDefinition, len(tiers))
	copy(ordered, tiers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].MinPoints < ordered[j].MinPoints })

	if ordered[0].MinPoints != 0 {
		return nil, errors.Validation("lowest tier must start at 0 points, got %d", ordered[0].MinPoints)
	}

	byName := make(map[string]models.TierDefinition, len(ordered))
	rankOf := make(map[string]int, len(ordered))
	for i, t := range ordered {
		if t.Name == "" {
			return nil, errors.Validation("tier at rank %d has no name", i)
		}
		if _, dup := byName[t.Name]; dup {
			return nil, errors.Validation("duplicate tier name %q", t.Name)
		}
		if t.DiscountPercent < 0 || t.DiscountPercent > 100 {
			return nil, errors.Validation("tier %q discount must be in 0..100, got %d", t.Name, t.DiscountPercent)
		}
		if t.MaxPoints <= t.MinPoints {
			return nil, errors.Validation("tier %q has empty range [%d, %d)", t.Name, t.MinPoints, t.MaxPoints)
		}
		if i > 0 && t.MinPoints != ordered[i-1].MaxPoints {
			return nil, errors.Validation("tier %q range is not contiguous with %q", t.Name, ordered[i-1].Name)
		}
		byName[t.Name] = t
		rankOf[t.Name] = i
	}

	return &Policy{
		tiers:    ordered,
		byName:   byName,
		rankOf:   rankOf,
		baseTier: ordered[0].Name,
	}, nil
}

// ComputeAward maps a positive monetary amount and a tier discount to an
// award: base points are the floored amount in the smallest currency unit
// (1:1), bonus points are base x discount rounded half-up.
func (p *Policy) ComputeAward(amount float64, discountPercent int) (Award, error) {
	if amount <= 0 {
		return Award{}, errors.Validation("amount must be positive, got %v", amount)
	}
	if amount >= MaxAmount || math.IsNaN(amount) {
		return Award{}, errors.Validation("amount must be below %v, got %v", float64(MaxAmount), amount)
	}
	if discountPercent < 0 || discountPercent > 100 {
		return Award{}, errors.Validation("discount percent must be in 0..100, got %d", discountPercent)
	}

	base := int64(math.Floor(amount))
	bonus := int64(math.Floor(float64(base)*float64(discountPercent)/100 + 0.5))

	return Award{
		BasePoints:  base,
		BonusPoints: bonus,
		TotalPoints: base + bonus,
	}, nil
}

// TierForPoints returns the tier whose [min, max) range contains points,
// or the highest tier when points exceed every maximum.
func (p *Policy) TierForPoints(pts int64) (string, error) {
	if pts < 0 {
		return "", errors.Validation("points must be non-negative, got %d", pts)
	}
	for _, t := range p.tiers {
		if pts >= t.MinPoints && pts < t.MaxPoints {
			return t.Name, nil
		}
	}
	return p.tiers[len(p.tiers)-1].Name, nil
}

// DiscountForTier returns the discount percent of a tier. Unknown names
// yield 0, never an error.
func (p *Policy) DiscountForTier(name string) int {
	t, ok := p.byName[name]
	if !ok {
		return 0
	}
	return t.DiscountPercent
}

// CompareTiers orders two tier names by rank: negative when a is below b,
// zero when equal. Unknown names rank below every known tier.
func (p *Policy) CompareTiers(a, b string) int {
	ra, oka := p.rankOf[a]
	rb, okb := p.rankOf[b]
	if !oka {
		ra = -1
	}
	if !okb {
		rb = -1
	}
	return ra - rb
}

// BaseTier returns the name of the lowest tier, assigned to new accounts.
func (p *Policy) BaseTier() string { return p.baseTier }

// Tiers returns a copy of the ordered tier table.
func (p *Policy) Tiers() []models.TierDefinition {
	out := make([]models.TierDefinition, len(p.tiers))
	copy(out, p.tiers)
	return out
}
