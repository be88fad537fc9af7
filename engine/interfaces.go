package engine

import (
	"context"
	"time"

	"geotrigger/core"
	"geotrigger/passport"
	"geotrigger/rewards"
)

// Repository is the narrow persistence surface the engine requires. The store
// must serialize concurrent updates to a single user's ledger and tier row;
// the engine does no distributed locking of its own.
type Repository interface {
	FindUserByID(ctx context.Context, id core.UserID) (*core.User, error)
	FindVenueByID(ctx context.Context, id core.VenueID) (*core.Venue, error)

	GetUserTier(ctx context.Context, user core.UserID) (*core.UserTier, error)
	UpdateUserTier(ctx context.Context, tier *core.UserTier) error
	CreatePointsTransaction(ctx context.Context, tx *core.PointsTransaction) error

	CreateLocationEvent(ctx context.Context, ev *core.LocationEvent) error
	IsDuplicateLocationEvent(ctx context.Context, user core.UserID, venue core.VenueID, typ core.EventType, bucket time.Time, window time.Duration) (bool, error)
	GetVenueVisitCount(ctx context.Context, user core.UserID, venue core.VenueID) (int, error)
	CountVenuesVisitedOn(ctx context.Context, user core.UserID, day time.Time) (int, error)

	GetUserActivePassports(ctx context.Context, user core.UserID) ([]*passport.Passport, error)
	CreatePassport(ctx context.Context, p *passport.Passport) error
	UpdatePassport(ctx context.Context, p *passport.Passport) error
	CreateStamp(ctx context.Context, user core.UserID, s *passport.Stamp) error
	GetPassportCollection(ctx context.Context, user core.UserID) (*passport.Collection, error)
	SaveAchievement(ctx context.Context, user core.UserID, a passport.Achievement) error

	SaveTriggeredReward(ctx context.Context, r *rewards.Triggered) error
	GetTriggeredReward(ctx context.Context, id string) (*rewards.Triggered, error)
	UpdateTriggeredReward(ctx context.Context, r *rewards.Triggered) error
	PromotionDisplayCount(ctx context.Context, user core.UserID, promotionID string) (int, time.Time, error)
	RecordPromotionDisplay(ctx context.Context, user core.UserID, promotionID string, at time.Time) error

	ListExpiredRewards(ctx context.Context, before time.Time) ([]*rewards.Triggered, error)
	ListExpiredPassports(ctx context.Context, before time.Time) ([]*passport.Passport, error)
}

// Notifier delivers notifications to users. Delivery is best-effort; the
// engine never rolls back state on a send failure.
type Notifier interface {
	SendGeofenceNotification(ctx context.Context, n *core.Notification) error
}

// displayGate enforces a promotion's frequency caps against the repository's
// per-user display counters.
type displayGate struct {
	repo Repository
	now  func() time.Time
}

func (g *displayGate) AllowDisplay(ctx context.Context, user core.UserID, promotionID string, rules rewards.DisplayRules) (bool, error) {
	if rules.MaxDisplaysPerUser <= 0 && rules.Cooldown <= 0 {
		return true, nil
	}
	count, last, err := g.repo.PromotionDisplayCount(ctx, user, promotionID)
	if err != nil {
		return false, err
	}
	if rules.MaxDisplaysPerUser > 0 && count >= rules.MaxDisplaysPerUser {
		return false, nil
	}
	if rules.Cooldown > 0 && !last.IsZero() && g.now().Sub(last) < rules.Cooldown {
		return false, nil
	}
	return true, nil
}
