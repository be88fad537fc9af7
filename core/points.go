package core

import (
	"fmt"
	"math"
	"time"
)

// VolumeBonus adds extra points once a duration threshold is crossed.
type VolumeBonus struct {
	Threshold time.Duration `json:"threshold" yaml:"threshold"`
	Bonus     int64         `json:"bonus" yaml:"bonus"`
}

// PointsRule defines how one action type converts into points.
type PointsRule struct {
	ActionType     ActionType    `json:"action_type" yaml:"action_type"`
	BasePoints     int64         `json:"base_points" yaml:"base_points"`
	TierMultiplier bool          `json:"tier_multiplier" yaml:"tier_multiplier"`
	FirstTimeBonus int64         `json:"first_time_bonus,omitempty" yaml:"first_time_bonus,omitempty"`
	VolumeBonuses  []VolumeBonus `json:"volume_bonuses,omitempty" yaml:"volume_bonuses,omitempty"`
}

// PointsCalculator turns actions into point awards under the tier table's
// multipliers. It is pure and safe for concurrent use.
type PointsCalculator struct {
	tiers *TierTable
	rules map[ActionType]PointsRule
}

// NewPointsCalculator builds a calculator from an immutable rule set.
func NewPointsCalculator(tiers *TierTable, rules []PointsRule) *PointsCalculator {
	m := make(map[ActionType]PointsRule, len(rules))
	for _, r := range rules {
		m[r.ActionType] = r
	}
	return &PointsCalculator{tiers: tiers, rules: m}
}

// CalculatePoints computes the points an action earns for a user at the given
// tier. A zero or negative result means nothing to award; callers must not
// create a ledger entry for it.
func (c *PointsCalculator) CalculatePoints(tier TierLevel, detail ActionDetail) int64 {
	rule, ok := c.rules[detail.ActionType()]
	if !ok {
		return 0
	}

	base := float64(rule.BasePoints)
	if rule.TierMultiplier {
		base *= c.tiers.Multiplier(tier)
	}

	points := base
	switch d := detail.(type) {
	case PaymentDetail:
		// Spend-proportional: one base unit per 10 MXN, tier-boosted.
		points = float64(d.AmountMXN/10) * base
	case ExtendedVisitDetail:
		for _, vb := range rule.VolumeBonuses {
			if d.Duration >= vb.Threshold {
				points += float64(vb.Bonus)
			}
		}
	case VisitDetail:
		if d.FirstTime {
			points += float64(rule.FirstTimeBonus)
		}
	}

	return int64(math.Floor(points))
}

// Describe renders the human-readable ledger description for an action.
func Describe(detail ActionDetail) string {
	switch d := detail.(type) {
	case VisitDetail:
		if d.FirstTime {
			return fmt.Sprintf("First visit to %s", d.VenueName)
		}
		return fmt.Sprintf("Visit to %s", d.VenueName)
	case PaymentDetail:
		return fmt.Sprintf("Purchase of $%d MXN", d.AmountMXN)
	case ExtendedVisitDetail:
		return fmt.Sprintf("Extended visit of %d minutes", int(d.Duration.Minutes()))
	case MultiVenueDetail:
		return "Multiple venues visited in one day"
	case ReferralDetail:
		return "Friend referral"
	case BirthdayDetail:
		return "Birthday bonus"
	case SpecialEventDetail:
		return d.Reason
	default:
		return fmt.Sprintf("Loyalty action: %s", detail.ActionType())
	}
}
