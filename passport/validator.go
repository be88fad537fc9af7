package passport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"geotrigger/core"
)

// Store is the slice of persistence the validator needs. The engine's full
// repository satisfies it.
type Store interface {
	GetUserActivePassports(ctx context.Context, user core.UserID) ([]*Passport, error)
	CreatePassport(ctx context.Context, p *Passport) error
	GetPassportCollection(ctx context.Context, user core.UserID) (*Collection, error)
}

// VisitContext is the typed visit metadata stamp rules are checked against.
type VisitContext struct {
	FirstTime     bool
	VisitDuration time.Duration
	SpendMXN      int64
}

// StampResult is the outcome of one stamp attempt across a user's passports.
type StampResult struct {
	Valid           bool
	Reason          string
	Stamp           *Stamp
	PassportUpdates []*Passport
	NewAchievements []Achievement
	RewardsEarned   []Reward
}

const stampValidity = 365 * 24 * time.Hour

// Validator evaluates location events against passport campaigns and advances
// progress, completion, and achievement state. Templates and achievements are
// immutable after construction; the validator is safe for concurrent use.
type Validator struct {
	store             Store
	templates         map[string]Template
	achievements      []Achievement
	defaultTemplateID string
	logger            *slog.Logger
	now               func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewValidator builds a validator over an immutable template catalog.
// defaultTemplateID names the passport auto-created for users with none.
func NewValidator(store Store, templates []Template, achievements []Achievement, defaultTemplateID string, opts ...Option) (*Validator, error) {
	if store == nil {
		return nil, fmt.Errorf("passport validator requires a store")
	}
	m := make(map[string]Template, len(templates))
	for _, t := range templates {
		m[t.ID] = t
	}
	if _, ok := m[defaultTemplateID]; !ok {
		return nil, fmt.Errorf("default passport template %q not in catalog", defaultTemplateID)
	}
	v := &Validator{
		store:             store,
		templates:         m,
		achievements:      append([]Achievement(nil), achievements...),
		defaultTemplateID: defaultTemplateID,
		logger:            slog.Default(),
		now:               time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Templates returns the active templates in the catalog.
func (v *Validator) Templates() []Template {
	out := make([]Template, 0, len(v.templates))
	for _, t := range v.templates {
		if t.Active {
			out = append(out, t)
		}
	}
	return out
}

// NewPassport instantiates a passport from a template.
func (v *Validator) NewPassport(user core.UserID, templateID string) (*Passport, error) {
	tpl, ok := v.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("passport template not found: %s", templateID)
	}
	now := v.now().UTC()
	return &Passport{
		ID:             uuid.NewString(),
		UserID:         user,
		TemplateID:     tpl.ID,
		Type:           tpl.Type,
		Name:           tpl.Name,
		Stamps:         nil,
		RequiredStamps: tpl.RequiredStamps,
		Progress:       0,
		Status:         StatusActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(tpl.Validity),
		Rewards:        tpl.Rewards,
	}, nil
}

// AwardStamp attempts to stamp every eligible active passport for the visit.
// Users with no active passport get the default one auto-created first. The
// result reports the stamp, any completed passports' rewards, and freshly
// unlocked achievements. Rejections carry a reason and are a user-facing
// no-op, not an error.
func (v *Validator) AwardStamp(ctx context.Context, user core.UserID, venue core.VenueID, venueName string, event core.LocationEvent, visit VisitContext) (*StampResult, error) {
	active, err := v.store.GetUserActivePassports(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("fetch active passports: %w", err)
	}

	if len(active) == 0 {
		p, err := v.NewPassport(user, v.defaultTemplateID)
		if err != nil {
			return nil, err
		}
		if err := v.store.CreatePassport(ctx, p); err != nil {
			return nil, fmt.Errorf("auto-create default passport: %w", err)
		}
		active = append(active, p)
	}

	result := &StampResult{}
	var lastReason string
	for _, p := range active {
		stamp, reason := v.stampForPassport(p, venue, venueName, event, visit)
		if stamp == nil {
			lastReason = reason
			continue
		}

		p.Stamps = append(p.Stamps, *stamp)
		p.Progress = float64(len(p.Stamps)) / float64(p.RequiredStamps)
		if len(p.Stamps) >= p.RequiredStamps {
			completed := v.now().UTC()
			p.Status = StatusCompleted
			p.CompletedAt = &completed
			result.RewardsEarned = append(result.RewardsEarned, p.Rewards...)
			v.logger.Info("passport completed", "user", user, "passport", p.ID, "template", p.TemplateID)
		}

		result.PassportUpdates = append(result.PassportUpdates, p)
		if result.Stamp == nil {
			result.Stamp = stamp
		}
	}

	if len(result.PassportUpdates) == 0 {
		result.Reason = lastReason
		if result.Reason == "" {
			result.Reason = "no eligible passports"
		}
		return result, nil
	}
	result.Valid = true

	newAchievements, err := v.checkAchievements(ctx, user, len(result.PassportUpdates))
	if err != nil {
		// Achievements are a bonus layer; a read failure must not void the stamp.
		v.logger.Warn("achievement check failed", "user", user, "error", err)
	} else {
		result.NewAchievements = newAchievements
	}
	return result, nil
}

// stampForPassport validates one passport's eligibility and mints the stamp.
// A nil stamp is accompanied by the rejection reason.
func (v *Validator) stampForPassport(p *Passport, venue core.VenueID, venueName string, event core.LocationEvent, visit VisitContext) (*Stamp, string) {
	now := v.now()
	if p.Status != StatusActive {
		return nil, "passport is not active"
	}
	if now.After(p.ExpiresAt) {
		return nil, "passport has expired"
	}
	if p.Type == TypeVenueChain && p.HasStampFor(venue) {
		return nil, "venue already stamped on this passport"
	}

	tpl, ok := v.templates[p.TemplateID]
	if ok {
		if len(tpl.RequiredVenues) > 0 && !containsVenue(tpl.RequiredVenues, venue) {
			return nil, "venue not part of this passport"
		}
		for _, rule := range tpl.Rules {
			if !v.ruleHolds(rule, event, visit) {
				return nil, fmt.Sprintf("rule not satisfied: %s", rule.Description)
			}
		}
	}

	return &Stamp{
		ID:         uuid.NewString(),
		PassportID: p.ID,
		VenueID:    venue,
		VenueName:  venueName,
		VisitID:    event.ID,
		StampedAt:  now.UTC(),
		ValidUntil: now.UTC().Add(stampValidity),
		Status:     StampActive,
	}, ""
}

// ruleHolds evaluates one template rule against the visit.
func (v *Validator) ruleHolds(rule Rule, event core.LocationEvent, visit VisitContext) bool {
	switch rule.Type {
	case RuleMinimumVisitDuration:
		// rule value is minutes
		return visit.VisitDuration >= time.Duration(rule.Value)*time.Minute
	case RuleMinimumSpend:
		return visit.SpendMXN >= rule.Value
	case RuleSpecificTimeRange:
		if rule.TimeRange == "friday-sunday" {
			switch v.now().Weekday() {
			case time.Friday, time.Saturday, time.Sunday:
				return true
			default:
				return false
			}
		}
		return true
	case RuleSameDayVisits:
		// Per-passport same-day grouping is enforced by the daily template's
		// validity window, so the stamping day always qualifies.
		return true
	default:
		return true
	}
}

// checkAchievements unlocks any threshold the user's collection newly meets.
// Achievements are monotonic: an unlocked one is never re-granted or revoked.
func (v *Validator) checkAchievements(ctx context.Context, user core.UserID, stampsJustAdded int) ([]Achievement, error) {
	col, err := v.store.GetPassportCollection(ctx, user)
	if err != nil {
		return nil, err
	}
	col.StampsCollected += stampsJustAdded

	var unlocked []Achievement
	for _, a := range v.achievements {
		if col.hasAchievement(a.ID) {
			continue
		}
		var met bool
		switch a.Requirement {
		case ReqStampsCollected:
			met = col.StampsCollected >= a.Threshold
		case ReqPassportsCompleted:
			met = col.PassportsCompleted >= a.Threshold
		case ReqStreakDays:
			met = col.CurrentStreakDays >= a.Threshold
		case ReqVenuesVisited:
			met = col.VenuesVisited >= a.Threshold
		}
		if met {
			earned := a
			earned.UnlockedAt = v.now().UTC()
			unlocked = append(unlocked, earned)
		}
	}
	return unlocked, nil
}

func containsVenue(venues []core.VenueID, v core.VenueID) bool {
	for _, x := range venues {
		if x == v {
			return true
		}
	}
	return false
}
