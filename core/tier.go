package core

import "fmt"

// TierLevel is an ordered loyalty level derived from cumulative points.
type TierLevel string

const (
	TierBronze TierLevel = "bronze"
	TierSilver TierLevel = "silver"
	TierGold   TierLevel = "gold"
	TierBlack  TierLevel = "black"
)

var tierRanks = map[TierLevel]int{
	TierBronze: 1,
	TierSilver: 2,
	TierGold:   3,
	TierBlack:  4,
}

// Rank returns the tier's position in the total order, or 0 for an unknown
// tier. Access checks like "gold and above" must compare ranks, never the
// string values.
func (t TierLevel) Rank() int { return tierRanks[t] }

// AtLeast reports whether t ranks at or above other.
func (t TierLevel) AtLeast(other TierLevel) bool {
	return t.Rank() >= other.Rank() && t.Rank() > 0
}

// TierBenefit is one perk granted by a tier.
type TierBenefit struct {
	Type        string `json:"type" yaml:"type"`
	Value       int    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// TierConfig describes one tier in the threshold table. MaxPoints < 0 means
// the tier is unbounded (the top tier).
type TierConfig struct {
	Level      TierLevel     `json:"level" yaml:"level"`
	Name       string        `json:"name" yaml:"name"`
	MinPoints  int64         `json:"min_points" yaml:"min_points"`
	MaxPoints  int64         `json:"max_points" yaml:"max_points"`
	Multiplier float64       `json:"multiplier" yaml:"multiplier"`
	Benefits   []TierBenefit `json:"benefits" yaml:"benefits"`
}

// TierTable maps cumulative points to tiers. It is immutable after
// construction and safe for concurrent reads.
type TierTable struct {
	tiers []TierConfig // ascending by MinPoints
}

// NewTierTable builds a table from configs sorted ascending by MinPoints.
// The first tier must start at zero so every non-negative total maps to a tier.
func NewTierTable(tiers []TierConfig) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier table requires at least one tier")
	}
	if tiers[0].MinPoints != 0 {
		return nil, fmt.Errorf("lowest tier must start at 0 points, got %d", tiers[0].MinPoints)
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].MinPoints <= tiers[i-1].MinPoints {
			return nil, fmt.Errorf("tier thresholds must be strictly ascending: %s", tiers[i].Level)
		}
	}
	cp := make([]TierConfig, len(tiers))
	copy(cp, tiers)
	return &TierTable{tiers: cp}, nil
}

// TierFromPoints returns the highest tier whose threshold the total reaches.
// Monotonically non-decreasing in points.
func (t *TierTable) TierFromPoints(points int64) TierLevel {
	level := t.tiers[0].Level
	for _, tc := range t.tiers {
		if points >= tc.MinPoints {
			level = tc.Level
		}
	}
	return level
}

// Config returns the configuration for a tier level.
func (t *TierTable) Config(level TierLevel) (TierConfig, error) {
	for _, tc := range t.tiers {
		if tc.Level == level {
			return tc, nil
		}
	}
	return TierConfig{}, fmt.Errorf("tier configuration not found for level %q", level)
}

// Multiplier returns the points multiplier for a tier, defaulting to 1.0 for
// unknown tiers so a bad catalog never zeroes awards.
func (t *TierTable) Multiplier(level TierLevel) float64 {
	tc, err := t.Config(level)
	if err != nil || tc.Multiplier <= 0 {
		return 1.0
	}
	return tc.Multiplier
}

// PointsToNextTier returns the next tier above the current total and the
// points still needed to reach it. At or above the top threshold it returns
// ("", 0).
func (t *TierTable) PointsToNextTier(points int64) (TierLevel, int64) {
	for _, tc := range t.tiers {
		if tc.MinPoints > points {
			return tc.Level, tc.MinPoints - points
		}
	}
	return "", 0
}

// Levels returns the tier levels in ascending order.
func (t *TierTable) Levels() []TierLevel {
	out := make([]TierLevel, len(t.tiers))
	for i, tc := range t.tiers {
		out[i] = tc.Level
	}
	return out
}
