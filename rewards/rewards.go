// Package rewards implements the promotion rule engine: weighted
// multi-condition triggers evaluated against admitted location events, plus
// the always-on time-window and weather overlays, and the redemption state
// machine for the rewards they produce.
package rewards

import (
	"time"

	"geotrigger/core"
)

// ConditionType identifies one trigger predicate within a promotion.
type ConditionType string

const (
	CondLocationEntry  ConditionType = "location_entry"
	CondLocationExit   ConditionType = "location_exit"
	CondFirstVisit     ConditionType = "first_visit"
	CondRepeatVisit    ConditionType = "repeat_visit"
	CondExtendedVisit  ConditionType = "extended_visit"
	CondMultipleVenues ConditionType = "multiple_venues"
	CondTimeBased      ConditionType = "time_based"
	CondTierUpgrade    ConditionType = "tier_upgrade"
)

// TimeWindow is a recurring time-of-day slot on selected weekdays. Times are
// "HH:MM" in the engine's local time.
type TimeWindow struct {
	Start string   `json:"start" yaml:"start"`
	End   string   `json:"end" yaml:"end"`
	Days  []string `json:"days" yaml:"days"` // lowercase weekday names; empty = every day
}

// ConditionParams carries the per-type predicate parameters. Only the fields
// the condition's type reads are meaningful.
type ConditionParams struct {
	VenueIDs    []core.VenueID `json:"venue_ids,omitempty" yaml:"venue_ids,omitempty"`
	VisitCount  int            `json:"visit_count,omitempty" yaml:"visit_count,omitempty"`
	MinDuration time.Duration  `json:"min_duration,omitempty" yaml:"min_duration,omitempty"`
	MinTier     core.TierLevel `json:"min_tier,omitempty" yaml:"min_tier,omitempty"`
	Window      *TimeWindow    `json:"window,omitempty" yaml:"window,omitempty"`
}

// Condition is one weighted trigger predicate.
type Condition struct {
	Type   ConditionType   `json:"type" yaml:"type"`
	Params ConditionParams `json:"params" yaml:"params"`
	Weight float64         `json:"weight" yaml:"weight"`
}

// RewardKind classifies what a reward definition grants.
type RewardKind string

const (
	KindInstantDiscount RewardKind = "instant_discount"
	KindCashback        RewardKind = "cashback"
	KindFreeItem        RewardKind = "free_item"
	KindPoints          RewardKind = "points"
	KindVIPAccess       RewardKind = "vip_access"
	KindHappyHour       RewardKind = "happy_hour"
)

// Definition is a read-only catalog description of a grantable reward.
type Definition struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description" yaml:"description"`
	Kind         RewardKind    `json:"kind" yaml:"kind"`
	Value        int64         `json:"value" yaml:"value"` // MXN or points depending on Kind
	RedeemWithin time.Duration `json:"redeem_within,omitempty" yaml:"redeem_within,omitempty"`
}

// Urgency is a UI emphasis hint only; it never affects trigger decisions.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// VisitHistory filters a promotion's audience by how familiar the user is.
type VisitHistory string

const (
	HistoryFirstTime VisitHistory = "first_time"
	HistoryReturning VisitHistory = "returning"
	HistoryVIP       VisitHistory = "vip"
)

// Audience restricts who a promotion may fire for.
type Audience struct {
	TierLevels   []core.TierLevel `json:"tier_levels,omitempty" yaml:"tier_levels,omitempty"`
	VisitHistory VisitHistory     `json:"visit_history,omitempty" yaml:"visit_history,omitempty"`
}

// DisplayRules caps how often a promotion is surfaced to one user.
type DisplayRules struct {
	MaxDisplaysPerUser int           `json:"max_displays_per_user" yaml:"max_displays_per_user"`
	Cooldown           time.Duration `json:"cooldown" yaml:"cooldown"`
}

// Promotion is a read-only catalog entry scoped to a single venue. The engine
// never mutates it.
type Promotion struct {
	ID           string       `json:"id" yaml:"id"`
	VenueID      core.VenueID `json:"venue_id" yaml:"venue_id"`
	Name         string       `json:"name" yaml:"name"`
	Description  string       `json:"description" yaml:"description"`
	Conditions   []Condition  `json:"conditions" yaml:"conditions"`
	Rewards      []Definition `json:"rewards" yaml:"rewards"`
	Priority     int          `json:"priority" yaml:"priority"`
	Urgency      Urgency      `json:"urgency" yaml:"urgency"`
	Audience     Audience     `json:"audience" yaml:"audience"`
	DisplayRules DisplayRules `json:"display_rules" yaml:"display_rules"`
	Active       bool         `json:"active" yaml:"active"`
	ValidFrom    time.Time    `json:"valid_from" yaml:"valid_from"`
	ValidUntil   time.Time    `json:"valid_until" yaml:"valid_until"`
}

// HappyHourOverlay auto-fires its rewards during configured recurring slots,
// independent of promotion evaluation.
type HappyHourOverlay struct {
	ID      string       `json:"id" yaml:"id"`
	VenueID core.VenueID `json:"venue_id" yaml:"venue_id"`
	Name    string       `json:"name" yaml:"name"`
	Slots   []TimeWindow `json:"slots" yaml:"slots"`
	Rewards []Definition `json:"rewards" yaml:"rewards"`
	Active  bool         `json:"active" yaml:"active"`
}

// WeatherOverlay auto-fires its rewards while an external weather signal
// matches the configured condition.
type WeatherOverlay struct {
	ID        string       `json:"id" yaml:"id"`
	VenueID   core.VenueID `json:"venue_id" yaml:"venue_id"`
	Name      string       `json:"name" yaml:"name"`
	Condition string       `json:"condition" yaml:"condition"` // e.g. "rain"
	Rewards   []Definition `json:"rewards" yaml:"rewards"`
	Active    bool         `json:"active" yaml:"active"`
}

// Status is the triggered-reward lifecycle. Redeemed and expired are terminal.
type Status string

const (
	StatusTriggered Status = "triggered"
	StatusRedeemed  Status = "redeemed"
	StatusExpired   Status = "expired"
)

// TriggerSource records which mechanism produced a triggered reward.
type TriggerSource string

const (
	SourcePromotion TriggerSource = "promotion"
	SourceHappyHour TriggerSource = "happy_hour"
	SourceWeather   TriggerSource = "weather"
)

// TriggerData ties a triggered reward back to what produced it.
type TriggerData struct {
	VenueID         core.VenueID    `json:"venue_id"`
	LocationEventID string          `json:"location_event_id,omitempty"`
	PromotionID     string          `json:"promotion_id,omitempty"`
	OverlayID       string          `json:"overlay_id,omitempty"`
	ConditionsMet   []ConditionType `json:"conditions_met,omitempty"`
}

// Triggered is a concrete, redeemable, time-boxed reward instance.
type Triggered struct {
	ID                 string        `json:"id"`
	UserID             core.UserID   `json:"user_id"`
	RewardDefinitionID string        `json:"reward_definition_id"`
	Definition         Definition    `json:"definition"`
	Source             TriggerSource `json:"source"`
	TriggerData        TriggerData   `json:"trigger_data"`
	Status             Status        `json:"status"`
	TriggeredAt        time.Time     `json:"triggered_at"`
	ExpiresAt          time.Time     `json:"expires_at"`
	RedeemedAt         *time.Time    `json:"redeemed_at,omitempty"`
	RedemptionCode     string        `json:"redemption_code"`
	EstimatedValue     int64         `json:"estimated_value"`
}

// TriggerEvent aggregates everything one location event set off.
type TriggerEvent struct {
	ID            string          `json:"id"`
	UserID        core.UserID     `json:"user_id"`
	VenueID       core.VenueID    `json:"venue_id"`
	Promotions    []Promotion     `json:"promotions"`
	Rewards       []*Triggered    `json:"rewards"`
	ConditionsMet []ConditionType `json:"conditions_met"`
	ProcessedAt   time.Time       `json:"processed_at"`
}

// VisitContext is the per-user history the evaluator's predicates read.
type VisitContext struct {
	VisitCount         int
	FirstVisit         bool
	VenuesVisitedToday int
	TierJustUpgraded   bool
	LastVisit          *time.Time
}
