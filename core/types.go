package core

import (
	"errors"
	"strings"
	"time"
)

// UserID uniquely identifies a user in the loyalty domain.
type UserID string

// VenueID uniquely identifies a venue with a provider-managed geofence.
type VenueID string

// EventType is the kind of geofence crossing reported by the provider.
type EventType string

const (
	EventEnter EventType = "enter"
	EventExit  EventType = "exit"
)

// Coordinates is a WGS84 point as reported by the geofencing provider.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationEvent is an immutable fact derived from an admitted provider webhook.
// It is the unit of idempotency: a given event id produces effects at most once.
type LocationEvent struct {
	ID          string        `json:"id"`
	UserID      UserID        `json:"user_id"`
	VenueID     VenueID       `json:"venue_id"`
	Type        EventType     `json:"type"`
	Coordinates Coordinates   `json:"coordinates"`
	Accuracy    float64       `json:"accuracy"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration,omitempty"` // set on exit events
	Confidence  string        `json:"confidence,omitempty"`
	GeofenceID  string        `json:"geofence_id,omitempty"`
}

// User is the slice of account state the engine needs.
type User struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// VenueSettings controls per-venue engine behavior.
type VenueSettings struct {
	GeofenceEnabled          bool `json:"geofence_enabled"`
	PushNotificationsEnabled bool `json:"push_notifications_enabled"`
}

// Venue is a physical location with a provider-managed geofence.
type Venue struct {
	ID       VenueID       `json:"id"`
	Name     string        `json:"name"`
	Location Coordinates   `json:"location"`
	Settings VenueSettings `json:"settings"`
}

// ActionType enumerates point-awarding actions.
type ActionType string

const (
	ActionVenueVisit     ActionType = "venue_visit"
	ActionFirstVisit     ActionType = "first_visit"
	ActionPayment        ActionType = "payment"
	ActionExtendedVisit  ActionType = "extended_visit"
	ActionMultipleVenues ActionType = "multiple_venues"
	ActionFriendReferral ActionType = "friend_referral"
	ActionBirthdayBonus  ActionType = "birthday_bonus"
	ActionSpecialEvent   ActionType = "special_event"
)

// ActionDetail carries the typed payload of a point-awarding action. Each
// ActionType has exactly one detail variant; calculators switch on the
// concrete type rather than digging through untyped metadata.
type ActionDetail interface {
	ActionType() ActionType
}

// VisitDetail describes a venue visit (first or repeat).
type VisitDetail struct {
	VenueID   VenueID
	VenueName string
	FirstTime bool
}

func (d VisitDetail) ActionType() ActionType {
	if d.FirstTime {
		return ActionFirstVisit
	}
	return ActionVenueVisit
}

// PaymentDetail describes an in-venue purchase in MXN.
type PaymentDetail struct {
	VenueID   VenueID
	VenueName string
	AmountMXN int64
}

func (d PaymentDetail) ActionType() ActionType { return ActionPayment }

// ExtendedVisitDetail describes a stay that crossed the extended-visit bar.
type ExtendedVisitDetail struct {
	VenueID   VenueID
	VenueName string
	Duration  time.Duration
}

func (d ExtendedVisitDetail) ActionType() ActionType { return ActionExtendedVisit }

// MultiVenueDetail describes visiting a second distinct venue in one day.
type MultiVenueDetail struct {
	VenueID   VenueID
	VenueName string
	VisitDate time.Time
}

func (d MultiVenueDetail) ActionType() ActionType { return ActionMultipleVenues }

// ReferralDetail describes a successful friend referral.
type ReferralDetail struct {
	ReferredUser UserID
}

func (d ReferralDetail) ActionType() ActionType { return ActionFriendReferral }

// BirthdayDetail marks the annual birthday bonus.
type BirthdayDetail struct{}

func (d BirthdayDetail) ActionType() ActionType { return ActionBirthdayBonus }

// SpecialEventDetail describes a one-off bonus, e.g. passport completion.
type SpecialEventDetail struct {
	VenueID   VenueID
	VenueName string
	Reason    string
}

func (d SpecialEventDetail) ActionType() ActionType { return ActionSpecialEvent }

// PointsTransaction is an append-only ledger entry. The ledger is the source
// of truth for a user's points; UserTier.Points is a derived cache of the sum
// of non-expired entries.
type PointsTransaction struct {
	ID          string     `json:"id"`
	UserID      UserID     `json:"user_id"`
	ActionType  ActionType `json:"action_type"`
	Points      int64      `json:"points"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// UserTier is per-user loyalty state. CurrentTier is always recomputed from
// Points through the tier table; the two never drift.
type UserTier struct {
	UserID           UserID        `json:"user_id"`
	CurrentTier      TierLevel     `json:"current_tier"`
	Points           int64         `json:"points"`
	PointsToNextTier int64         `json:"points_to_next_tier"`
	TierBenefits     []TierBenefit `json:"tier_benefits"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NotificationType enumerates the outbound notification kinds.
type NotificationType string

const (
	NotifyWelcome   NotificationType = "welcome"
	NotifyFarewell  NotificationType = "farewell"
	NotifyPromotion NotificationType = "promotion"
	NotifyReminder  NotificationType = "reminder"
)

// Notification is delivered best-effort by the notification collaborator.
type Notification struct {
	ID        string           `json:"id"`
	UserID    UserID           `json:"user_id"`
	VenueID   VenueID          `json:"venue_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	ActionURL string           `json:"action_url,omitempty"`
	SentAt    time.Time        `json:"sent_at"`
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(strings.ToLower(s)), nil
}
