// Package engine coordinates the processing of admitted location events:
// stamps, points, tier transitions, reward triggers, and the notifications
// they produce. Each admitted event is one unit of work; sub-steps are
// independently fallible and never abort the event as a whole.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"geotrigger/core"
	"geotrigger/passport"
	"geotrigger/rewards"
)

const (
	// defaultExtendedVisit is the stay length that earns the extended-visit
	// stamp and points on exit.
	defaultExtendedVisit = 30 * time.Minute
	// pointsValidity is how long a ledger entry counts before it expires.
	pointsValidity = 365 * 24 * time.Hour
	// notifyTimeout bounds each best-effort notification send.
	notifyTimeout = 5 * time.Second
)

// TierUpgrade describes a tier transition produced while awarding points.
type TierUpgrade struct {
	UserID   core.UserID        `json:"user_id"`
	From     core.TierLevel     `json:"from"`
	To       core.TierLevel     `json:"to"`
	Points   int64              `json:"points"`
	Benefits []core.TierBenefit `json:"benefits"`
}

// EventResult aggregates everything one admitted location event produced.
type EventResult struct {
	Event         core.LocationEvent        `json:"event"`
	Notifications []core.Notification       `json:"notifications"`
	Promotions    []rewards.Promotion       `json:"triggered_promotions"`
	Rewards       []*rewards.Triggered      `json:"triggered_rewards"`
	Points        []*core.PointsTransaction `json:"points_awarded"`
	Stamps        []*passport.Stamp         `json:"stamps_awarded"`
	TierUpgrade   *TierUpgrade              `json:"tier_upgrade,omitempty"`
}

// NewDisplayGate adapts the repository's display counters into the evaluator's
// frequency-cap check.
func NewDisplayGate(repo Repository) rewards.DisplayGate {
	return &displayGate{repo: repo, now: time.Now}
}

// Orchestrator runs the per-event state machine over the calculators and the
// evaluator, persisting outputs through the repository.
type Orchestrator struct {
	repo      Repository
	notifier  Notifier
	bus       *EventBus
	tiers     *core.TierTable
	calc      *core.PointsCalculator
	passports *passport.Validator
	evaluator *rewards.Evaluator

	extendedVisit time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithExtendedVisit overrides the stay length that counts as extended.
func WithExtendedVisit(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.extendedVisit = d
		}
	}
}

// WithOrchestratorLogger sets the structured logger.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOrchestratorClock overrides the time source, for tests.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the engine together.
func NewOrchestrator(repo Repository, notifier Notifier, bus *EventBus, tiers *core.TierTable, calc *core.PointsCalculator, passports *passport.Validator, evaluator *rewards.Evaluator, opts ...OrchestratorOption) (*Orchestrator, error) {
	if repo == nil || notifier == nil || bus == nil {
		return nil, fmt.Errorf("orchestrator requires repository, notifier, and event bus")
	}
	if tiers == nil || calc == nil || passports == nil || evaluator == nil {
		return nil, fmt.Errorf("orchestrator requires tier table, calculator, passport validator, and evaluator")
	}
	o := &Orchestrator{
		repo:          repo,
		notifier:      notifier,
		bus:           bus,
		tiers:         tiers,
		calc:          calc,
		passports:     passports,
		evaluator:     evaluator,
		extendedVisit: defaultExtendedVisit,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// HandleLocationEvent processes one admitted event to completion. It returns
// an error only when nothing could be processed at all; per-step failures are
// logged and isolated, leaving the corresponding output list empty.
func (o *Orchestrator) HandleLocationEvent(ctx context.Context, ev core.LocationEvent) (*EventResult, error) {
	user, err := o.repo.FindUserByID(ctx, ev.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", ev.UserID, err)
	}
	venue, err := o.repo.FindVenueByID(ctx, ev.VenueID)
	if err != nil {
		return nil, fmt.Errorf("load venue %s: %w", ev.VenueID, err)
	}
	if user == nil || venue == nil {
		return nil, fmt.Errorf("event %s references unknown user or venue", ev.ID)
	}

	// Visit history must be read before the event itself is persisted, or the
	// current crossing would count toward its own first-visit check.
	priorVisits, err := o.repo.GetVenueVisitCount(ctx, user.ID, venue.ID)
	if err != nil {
		return nil, fmt.Errorf("visit count for %s at %s: %w", user.ID, venue.ID, err)
	}
	if err := o.repo.CreateLocationEvent(ctx, &ev); err != nil {
		return nil, fmt.Errorf("persist location event %s: %w", ev.ID, err)
	}

	res := &EventResult{Event: ev}
	switch ev.Type {
	case core.EventEnter:
		o.processEntry(ctx, ev, user, venue, priorVisits, res)
	case core.EventExit:
		o.processExit(ctx, ev, user, venue, priorVisits, res)
	default:
		return nil, fmt.Errorf("event %s has unsupported type %q", ev.ID, ev.Type)
	}

	// The tier-upgrade notice always comes after every other notification
	// for the event.
	if res.TierUpgrade != nil {
		res.Notifications = append(res.Notifications, o.tierUpgradeNotification(user, venue, res.TierUpgrade))
	}

	o.dispatchNotifications(ctx, res.Notifications)
	return res, nil
}

func (o *Orchestrator) processEntry(ctx context.Context, ev core.LocationEvent, user *core.User, venue *core.Venue, priorVisits int, res *EventResult) {
	firstVisit := priorVisits == 0

	o.step("passport stamps", ev, func() error {
		return o.awardStamps(ctx, ev, user, venue, passport.VisitContext{FirstTime: firstVisit}, res)
	})

	o.step("visit points", ev, func() error {
		detail := core.VisitDetail{VenueID: venue.ID, VenueName: venue.Name, FirstTime: firstVisit}
		return o.collectPoints(ctx, user.ID, detail, res)
	})

	o.step("multi-venue bonus", ev, func() error {
		venuesToday, err := o.repo.CountVenuesVisitedOn(ctx, user.ID, ev.Timestamp)
		if err != nil {
			return err
		}
		if venuesToday < 2 {
			return nil
		}
		detail := core.MultiVenueDetail{VenueID: venue.ID, VenueName: venue.Name, VisitDate: ev.Timestamp}
		return o.collectPoints(ctx, user.ID, detail, res)
	})

	o.step("reward triggers", ev, func() error {
		return o.evaluateRewards(ctx, ev, user, firstVisit, priorVisits+1, res)
	})

	if venue.Settings.PushNotificationsEnabled {
		res.Notifications = append(res.Notifications, o.welcomeNotification(user, venue, res))
	}
}

func (o *Orchestrator) processExit(ctx context.Context, ev core.LocationEvent, user *core.User, venue *core.Venue, priorVisits int, res *EventResult) {
	if ev.Duration >= o.extendedVisit {
		visit := passport.VisitContext{VisitDuration: ev.Duration}
		o.step("extended-visit stamp", ev, func() error {
			return o.awardStamps(ctx, ev, user, venue, visit, res)
		})
		o.step("extended-visit points", ev, func() error {
			detail := core.ExtendedVisitDetail{VenueID: venue.ID, VenueName: venue.Name, Duration: ev.Duration}
			return o.collectPoints(ctx, user.ID, detail, res)
		})
	}

	o.step("reward triggers", ev, func() error {
		// the visit itself was counted when the user entered
		visits := priorVisits
		if visits < 1 {
			visits = 1
		}
		return o.evaluateRewards(ctx, ev, user, false, visits, res)
	})

	if venue.Settings.PushNotificationsEnabled {
		res.Notifications = append(res.Notifications, o.farewellNotification(user, venue, ev, res))
	}
}

// step runs one isolated sub-step; a failure is logged and the event proceeds.
func (o *Orchestrator) step(name string, ev core.LocationEvent, fn func() error) {
	if err := fn(); err != nil {
		o.logger.Error("event step failed",
			"step", name, "event", ev.ID, "user", ev.UserID, "venue", ev.VenueID, "error", err)
	}
}

// awardStamps runs the passport validator and persists everything it earned.
// Points-type passport rewards route back through the calculator.
func (o *Orchestrator) awardStamps(ctx context.Context, ev core.LocationEvent, user *core.User, venue *core.Venue, visit passport.VisitContext, res *EventResult) error {
	sr, err := o.passports.AwardStamp(ctx, user.ID, venue.ID, venue.Name, ev, visit)
	if err != nil {
		return err
	}
	if !sr.Valid || sr.Stamp == nil {
		o.logger.Debug("no stamp awarded", "user", user.ID, "venue", venue.ID, "reason", sr.Reason)
		return nil
	}
	if err := o.repo.CreateStamp(ctx, user.ID, sr.Stamp); err != nil {
		return err
	}
	res.Stamps = append(res.Stamps, sr.Stamp)
	o.bus.Publish(ctx, core.NewStampAwarded(user.ID, venue.ID, sr.Stamp.ID))

	for _, p := range sr.PassportUpdates {
		if err := o.repo.UpdatePassport(ctx, p); err != nil {
			return err
		}
		if p.Status == passport.StatusCompleted {
			o.bus.Publish(ctx, core.NewPassportCompleted(user.ID, p.ID))
		}
	}
	for _, a := range sr.NewAchievements {
		if err := o.repo.SaveAchievement(ctx, user.ID, a); err != nil {
			return err
		}
		o.bus.Publish(ctx, core.NewAchievementEarned(user.ID, a.ID))
	}
	for _, rw := range sr.RewardsEarned {
		if rw.Type != "points" {
			continue
		}
		detail := core.SpecialEventDetail{VenueID: venue.ID, VenueName: venue.Name, Reason: rw.Description}
		if err := o.collectPoints(ctx, user.ID, detail, res); err != nil {
			o.logger.Error("passport reward points failed", "user", user.ID, "error", err)
		}
	}
	return nil
}

// collectPoints awards points for one action and folds the transaction and any
// tier upgrade into the event result.
func (o *Orchestrator) collectPoints(ctx context.Context, user core.UserID, detail core.ActionDetail, res *EventResult) error {
	tx, upgrade, err := o.AwardPoints(ctx, user, detail)
	if err != nil {
		return err
	}
	if tx != nil {
		res.Points = append(res.Points, tx)
	}
	if upgrade != nil {
		res.TierUpgrade = upgrade
	}
	return nil
}

// AwardPoints is the stateful points operation: compute points for the action,
// append a ledger entry, recompute the tier from the new total, and report an
// upgrade when the tier changed. A zero computation awards nothing and writes
// nothing.
func (o *Orchestrator) AwardPoints(ctx context.Context, user core.UserID, detail core.ActionDetail) (*core.PointsTransaction, *TierUpgrade, error) {
	tier, err := o.loadTier(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	points := o.calc.CalculatePoints(tier.CurrentTier, detail)
	if points <= 0 {
		return nil, nil, nil
	}

	now := o.now().UTC()
	tx := &core.PointsTransaction{
		ID:          uuid.NewString(),
		UserID:      user,
		ActionType:  detail.ActionType(),
		Points:      points,
		Description: core.Describe(detail),
		CreatedAt:   now,
		ExpiresAt:   now.Add(pointsValidity),
	}
	if err := o.repo.CreatePointsTransaction(ctx, tx); err != nil {
		return nil, nil, fmt.Errorf("append ledger entry: %w", err)
	}

	prior := tier.CurrentTier
	tier.Points += points
	tier.CurrentTier = o.tiers.TierFromPoints(tier.Points)
	_, delta := o.tiers.PointsToNextTier(tier.Points)
	tier.PointsToNextTier = delta
	if cfg, err := o.tiers.Config(tier.CurrentTier); err == nil {
		tier.TierBenefits = cfg.Benefits
	}
	tier.UpdatedAt = now
	if err := o.repo.UpdateUserTier(ctx, tier); err != nil {
		return nil, nil, fmt.Errorf("update tier: %w", err)
	}

	o.bus.Publish(ctx, core.NewPointsAwarded(user, "", detail.ActionType(), points, tier.Points))

	var upgrade *TierUpgrade
	if tier.CurrentTier != prior {
		upgrade = &TierUpgrade{
			UserID:   user,
			From:     prior,
			To:       tier.CurrentTier,
			Points:   tier.Points,
			Benefits: tier.TierBenefits,
		}
		o.bus.Publish(ctx, core.NewTierUpgraded(user, tier.CurrentTier, tier.Points))
	}
	return tx, upgrade, nil
}

// loadTier fetches the user's tier state, initializing the bottom tier for
// users with no prior activity.
func (o *Orchestrator) loadTier(ctx context.Context, user core.UserID) (*core.UserTier, error) {
	tier, err := o.repo.GetUserTier(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("load tier: %w", err)
	}
	if tier != nil {
		return tier, nil
	}
	level := o.tiers.TierFromPoints(0)
	_, delta := o.tiers.PointsToNextTier(0)
	tier = &core.UserTier{
		UserID:           user,
		CurrentTier:      level,
		PointsToNextTier: delta,
		UpdatedAt:        o.now().UTC(),
	}
	if cfg, err := o.tiers.Config(level); err == nil {
		tier.TierBenefits = cfg.Benefits
	}
	return tier, nil
}

// evaluateRewards runs the promotion evaluator and persists what it minted.
func (o *Orchestrator) evaluateRewards(ctx context.Context, ev core.LocationEvent, user *core.User, firstVisit bool, visitCount int, res *EventResult) error {
	tier, err := o.loadTier(ctx, user.ID)
	if err != nil {
		return err
	}
	venuesToday, err := o.repo.CountVenuesVisitedOn(ctx, user.ID, ev.Timestamp)
	if err != nil {
		return err
	}
	visit := rewards.VisitContext{
		VisitCount:         visitCount,
		FirstVisit:         firstVisit,
		VenuesVisitedToday: venuesToday,
		TierJustUpgraded:   res.TierUpgrade != nil,
	}

	trig, err := o.evaluator.ProcessLocationEvent(ctx, ev, *user, tier, visit)
	if err != nil {
		return err
	}
	res.Promotions = append(res.Promotions, trig.Promotions...)
	for _, p := range trig.Promotions {
		if err := o.repo.RecordPromotionDisplay(ctx, user.ID, p.ID, o.now().UTC()); err != nil {
			o.logger.Error("record promotion display failed", "user", user.ID, "promotion", p.ID, "error", err)
		}
	}
	for _, r := range trig.Rewards {
		if err := o.repo.SaveTriggeredReward(ctx, r); err != nil {
			return err
		}
		res.Rewards = append(res.Rewards, r)
		o.bus.Publish(ctx, core.NewRewardTriggered(user.ID, ev.VenueID, r.ID))
	}
	return nil
}

func (o *Orchestrator) dispatchNotifications(ctx context.Context, ns []core.Notification) {
	for i := range ns {
		n := ns[i]
		sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		if err := o.notifier.SendGeofenceNotification(sendCtx, &n); err != nil {
			o.logger.Warn("notification send failed", "user", n.UserID, "type", n.Type, "error", err)
		}
		cancel()
	}
}

func (o *Orchestrator) welcomeNotification(user *core.User, venue *core.Venue, res *EventResult) core.Notification {
	msg := fmt.Sprintf("Hola %s, bienvenido a %s.", user.DisplayName, venue.Name)
	if pts := totalPoints(res.Points); pts > 0 {
		msg += fmt.Sprintf(" Ganaste %d puntos.", pts)
	}
	if len(res.Stamps) > 0 {
		msg += fmt.Sprintf(" Sumaste %d sello(s) a tu pasaporte.", len(res.Stamps))
	}
	return core.Notification{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		VenueID:   venue.ID,
		Type:      core.NotifyWelcome,
		Title:     fmt.Sprintf("¡Bienvenido a %s!", venue.Name),
		Message:   msg,
		ActionURL: fmt.Sprintf("/venues/%s", venue.ID),
		SentAt:    o.now().UTC(),
	}
}

func (o *Orchestrator) farewellNotification(user *core.User, venue *core.Venue, ev core.LocationEvent, res *EventResult) core.Notification {
	msg := fmt.Sprintf("Gracias por tu visita de %d minutos a %s.", int(ev.Duration.Minutes()), venue.Name)
	if pts := totalPoints(res.Points); pts > 0 {
		msg += fmt.Sprintf(" Ganaste %d puntos.", pts)
	}
	return core.Notification{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		VenueID:   venue.ID,
		Type:      core.NotifyFarewell,
		Title:     fmt.Sprintf("¡Hasta pronto, %s!", user.DisplayName),
		Message:   msg,
		ActionURL: fmt.Sprintf("/venues/%s", venue.ID),
		SentAt:    o.now().UTC(),
	}
}

func (o *Orchestrator) tierUpgradeNotification(user *core.User, venue *core.Venue, up *TierUpgrade) core.Notification {
	return core.Notification{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		VenueID:   venue.ID,
		Type:      core.NotifyPromotion,
		Title:     fmt.Sprintf("¡Nivel %s desbloqueado!", up.To),
		Message:   fmt.Sprintf("Alcanzaste el nivel %s con %d puntos. Ahora tienes %d beneficios exclusivos.", up.To, up.Points, len(up.Benefits)),
		ActionURL: "/profile/tier",
		SentAt:    o.now().UTC(),
	}
}

func totalPoints(txs []*core.PointsTransaction) int64 {
	var sum int64
	for _, tx := range txs {
		sum += tx.Points
	}
	return sum
}
