// Package passport implements multi-step collectible campaigns: time-boxed
// passports that users fill with venue stamps, plus the achievement ladder
// built on top of the aggregate stamp collection.
package passport

import (
	"time"

	"geotrigger/core"
)

// Status is the passport lifecycle state. Completed and expired are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// StampStatus is the lifecycle state of a single stamp.
type StampStatus string

const (
	StampActive  StampStatus = "active"
	StampExpired StampStatus = "expired"
	StampRevoked StampStatus = "revoked"
)

// TemplateType selects the campaign shape.
type TemplateType string

const (
	TypeDaily        TemplateType = "daily"
	TypeWeekly       TemplateType = "weekly"
	TypeVenueChain   TemplateType = "venue_chain"
	TypeSpecialEvent TemplateType = "special_event"
)

// RuleType identifies a template rule predicate.
type RuleType string

const (
	RuleMinimumVisitDuration RuleType = "minimum_visit_duration"
	RuleMinimumSpend         RuleType = "minimum_spend"
	RuleSpecificTimeRange    RuleType = "specific_time_range"
	RuleSameDayVisits        RuleType = "same_day_visits"
)

// Rule is one qualifying condition a visit must satisfy before it earns a
// stamp on a passport built from this template.
type Rule struct {
	Type        RuleType `json:"type" yaml:"type"`
	Value       int64    `json:"value,omitempty" yaml:"value,omitempty"`
	TimeRange   string   `json:"time_range,omitempty" yaml:"time_range,omitempty"`
	Description string   `json:"description" yaml:"description"`
}

// Reward is one prize granted on passport completion.
type Reward struct {
	Type        string `json:"type" yaml:"type"` // points, cashback, discount, free_item, tier_bonus
	Value       int64  `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// Template is a read-only catalog entry a passport instance is created from.
type Template struct {
	ID             string         `json:"id" yaml:"id"`
	Type           TemplateType   `json:"type" yaml:"type"`
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description" yaml:"description"`
	RequiredVenues []core.VenueID `json:"required_venues" yaml:"required_venues"`
	RequiredStamps int            `json:"required_stamps" yaml:"required_stamps"`
	Validity       time.Duration  `json:"validity" yaml:"validity"`
	Rewards        []Reward       `json:"rewards" yaml:"rewards"`
	Rules          []Rule         `json:"rules" yaml:"rules"`
	Active         bool           `json:"active" yaml:"active"`
}

// Stamp is immutable proof of a qualifying visit. VisitID points back at the
// LocationEvent that earned it.
type Stamp struct {
	ID         string       `json:"id"`
	PassportID string       `json:"passport_id"`
	VenueID    core.VenueID `json:"venue_id"`
	VenueName  string       `json:"venue_name"`
	VisitID    string       `json:"visit_id"`
	StampedAt  time.Time    `json:"stamped_at"`
	ValidUntil time.Time    `json:"valid_until"`
	Status     StampStatus  `json:"status"`
}

// Passport is one campaign instance bound to a user.
type Passport struct {
	ID             string       `json:"id"`
	UserID         core.UserID  `json:"user_id"`
	TemplateID     string       `json:"template_id"`
	Type           TemplateType `json:"type"`
	Name           string       `json:"name"`
	Stamps         []Stamp      `json:"stamps"`
	RequiredStamps int          `json:"required_stamps"`
	Progress       float64      `json:"progress"` // len(stamps)/requiredStamps
	Status         Status       `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	ExpiresAt      time.Time    `json:"expires_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	Rewards        []Reward     `json:"rewards"`
}

// HasStampFor reports whether the passport already holds a stamp for a venue.
func (p *Passport) HasStampFor(venue core.VenueID) bool {
	for _, s := range p.Stamps {
		if s.VenueID == venue {
			return true
		}
	}
	return false
}

// AchievementRequirement selects which collection counter an achievement
// threshold applies to.
type AchievementRequirement string

const (
	ReqStampsCollected    AchievementRequirement = "stamps_collected"
	ReqPassportsCompleted AchievementRequirement = "passports_completed"
	ReqStreakDays         AchievementRequirement = "streak_days"
	ReqVenuesVisited      AchievementRequirement = "venues_visited"
)

// Achievement is a monotonic unlock: once earned it is never revoked.
type Achievement struct {
	ID          string                 `json:"id" yaml:"id"`
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description" yaml:"description"`
	Requirement AchievementRequirement `json:"requirement" yaml:"requirement"`
	Threshold   int                    `json:"threshold" yaml:"threshold"`
	Rewards     []Reward               `json:"rewards" yaml:"rewards"`
	UnlockedAt  time.Time              `json:"unlocked_at,omitempty" yaml:"-"`
}

// Collection is a user's aggregate passport state used for achievement checks.
type Collection struct {
	UserID             core.UserID `json:"user_id"`
	StampsCollected    int         `json:"stamps_collected"`
	PassportsCompleted int         `json:"passports_completed"`
	CurrentStreakDays  int         `json:"current_streak_days"`
	VenuesVisited      int         `json:"venues_visited"`
	AchievementIDs     []string    `json:"achievement_ids"`
}

func (c *Collection) hasAchievement(id string) bool {
	for _, a := range c.AchievementIDs {
		if a == id {
			return true
		}
	}
	return false
}
