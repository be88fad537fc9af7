package core

import "time"

// DomainEventType enumerates engine events published on the bus.
type DomainEventType string

const (
	EventPointsAwarded     DomainEventType = "points_awarded"
	EventTierUpgraded      DomainEventType = "tier_upgraded"
	EventStampAwarded      DomainEventType = "stamp_awarded"
	EventPassportCompleted DomainEventType = "passport_completed"
	EventRewardTriggered   DomainEventType = "reward_triggered"
	EventRewardRedeemed    DomainEventType = "reward_redeemed"
	EventRewardExpired     DomainEventType = "reward_expired"
	EventAchievementEarned DomainEventType = "achievement_earned"
)

// DomainEvent is an immutable engine event suitable for realtime streaming.
type DomainEvent struct {
	Type     DomainEventType `json:"type"`
	Time     time.Time       `json:"time"`
	UserID   UserID          `json:"user_id"`
	VenueID  VenueID         `json:"venue_id,omitempty"`
	Action   ActionType      `json:"action,omitempty"`
	Points   int64           `json:"points,omitempty"`
	Total    int64           `json:"total,omitempty"`
	Tier     TierLevel       `json:"tier,omitempty"`
	EntityID string          `json:"entity_id,omitempty"`
}

func NewPointsAwarded(user UserID, venue VenueID, action ActionType, points, total int64) DomainEvent {
	return DomainEvent{Type: EventPointsAwarded, Time: time.Now().UTC(), UserID: user, VenueID: venue, Action: action, Points: points, Total: total}
}

func NewTierUpgraded(user UserID, tier TierLevel, total int64) DomainEvent {
	return DomainEvent{Type: EventTierUpgraded, Time: time.Now().UTC(), UserID: user, Tier: tier, Total: total}
}

func NewStampAwarded(user UserID, venue VenueID, stampID string) DomainEvent {
	return DomainEvent{Type: EventStampAwarded, Time: time.Now().UTC(), UserID: user, VenueID: venue, EntityID: stampID}
}

func NewPassportCompleted(user UserID, passportID string) DomainEvent {
	return DomainEvent{Type: EventPassportCompleted, Time: time.Now().UTC(), UserID: user, EntityID: passportID}
}

func NewRewardTriggered(user UserID, venue VenueID, rewardID string) DomainEvent {
	return DomainEvent{Type: EventRewardTriggered, Time: time.Now().UTC(), UserID: user, VenueID: venue, EntityID: rewardID}
}

func NewRewardRedeemed(user UserID, rewardID string) DomainEvent {
	return DomainEvent{Type: EventRewardRedeemed, Time: time.Now().UTC(), UserID: user, EntityID: rewardID}
}

func NewAchievementEarned(user UserID, achievementID string) DomainEvent {
	return DomainEvent{Type: EventAchievementEarned, Time: time.Now().UTC(), UserID: user, EntityID: achievementID}
}
