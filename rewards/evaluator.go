package rewards

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"geotrigger/core"
)

// DisplayGate decides whether a promotion may still be surfaced to a user
// under its frequency caps. Implemented by the repository.
type DisplayGate interface {
	AllowDisplay(ctx context.Context, user core.UserID, promotionID string, rules DisplayRules) (bool, error)
}

// WeatherProvider reports the current condition at a venue ("rain", "sunny",
// ...). External collaborator; errors disable the weather overlay for the
// event rather than failing it.
type WeatherProvider interface {
	Current(ctx context.Context, venue core.VenueID) (string, error)
}

const (
	defaultRedeemWithin   = 24 * time.Hour
	happyHourRedeemWithin = 2 * time.Hour
)

// Evaluator evaluates the promotion catalog against admitted location events.
// The catalog is immutable and shared across concurrent evaluations.
type Evaluator struct {
	promotions []Promotion
	happyHours []HappyHourOverlay
	weather    []WeatherOverlay

	threshold float64 // satisfied-weight fraction required to fire
	gate      DisplayGate
	forecast  WeatherProvider
	codes     CodeGenerator
	logger    *slog.Logger
	now       func() time.Time
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithThreshold overrides the satisfied-weight fraction (default 0.8).
func WithThreshold(f float64) EvaluatorOption {
	return func(e *Evaluator) {
		if f > 0 && f <= 1 {
			e.threshold = f
		}
	}
}

// WithWeather wires the weather overlay signal.
func WithWeather(p WeatherProvider) EvaluatorOption {
	return func(e *Evaluator) { e.forecast = p }
}

// WithEvaluatorClock overrides the time source, for tests.
func WithEvaluatorClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// WithEvaluatorLogger sets the structured logger.
func WithEvaluatorLogger(l *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEvaluator builds an evaluator over an immutable promotion catalog.
func NewEvaluator(promotions []Promotion, happyHours []HappyHourOverlay, weather []WeatherOverlay, gate DisplayGate, codes CodeGenerator, opts ...EvaluatorOption) (*Evaluator, error) {
	if gate == nil {
		return nil, fmt.Errorf("reward evaluator requires a display gate")
	}
	if codes == nil {
		return nil, fmt.Errorf("reward evaluator requires a code generator")
	}
	e := &Evaluator{
		promotions: append([]Promotion(nil), promotions...),
		happyHours: append([]HappyHourOverlay(nil), happyHours...),
		weather:    append([]WeatherOverlay(nil), weather...),
		threshold:  0.8,
		gate:       gate,
		codes:      codes,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// ProcessLocationEvent evaluates every candidate promotion for the event's
// venue plus the always-on overlays, and returns all fired promotions and the
// rewards they minted. Output ordering follows catalog priority descending;
// urgency never suppresses a promotion.
func (e *Evaluator) ProcessLocationEvent(ctx context.Context, event core.LocationEvent, user core.User, tier *core.UserTier, visit VisitContext) (*TriggerEvent, error) {
	out := &TriggerEvent{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		VenueID:     event.VenueID,
		ProcessedAt: e.now().UTC(),
	}

	for _, promo := range e.promotions {
		// an empty venue scope means the promotion runs at every venue
		if !promo.Active || (promo.VenueID != "" && promo.VenueID != event.VenueID) {
			continue
		}
		if !e.withinValidity(promo) {
			continue
		}
		fired, met, err := e.evaluatePromotion(ctx, promo, event, tier, visit)
		if err != nil {
			return nil, err
		}
		if !fired {
			continue
		}
		out.Promotions = append(out.Promotions, promo)
		out.ConditionsMet = append(out.ConditionsMet, met...)
		for _, def := range promo.Rewards {
			out.Rewards = append(out.Rewards, e.mint(user.ID, def, SourcePromotion, TriggerData{
				VenueID:         event.VenueID,
				LocationEventID: event.ID,
				PromotionID:     promo.ID,
				ConditionsMet:   met,
			}))
		}
	}

	// All fired promotions are returned; priority orders, never suppresses.
	sort.SliceStable(out.Promotions, func(i, j int) bool {
		return out.Promotions[i].Priority > out.Promotions[j].Priority
	})

	e.applyHappyHours(out, user.ID, event)
	e.applyWeather(ctx, out, user.ID, event)

	e.logger.Debug("processed location event",
		"user", user.ID, "venue", event.VenueID,
		"promotions", len(out.Promotions), "rewards", len(out.Rewards))
	return out, nil
}

// evaluatePromotion runs the audience filter, the display gate, and the
// weighted condition sum for one promotion.
func (e *Evaluator) evaluatePromotion(ctx context.Context, promo Promotion, event core.LocationEvent, tier *core.UserTier, visit VisitContext) (bool, []ConditionType, error) {
	if !e.audienceMatches(promo.Audience, tier, visit) {
		return false, nil, nil
	}
	allowed, err := e.gate.AllowDisplay(ctx, event.UserID, promo.ID, promo.DisplayRules)
	if err != nil {
		return false, nil, fmt.Errorf("display gate for %s: %w", promo.ID, err)
	}
	if !allowed {
		return false, nil, nil
	}

	var total, satisfied float64
	var met []ConditionType
	for _, cond := range promo.Conditions {
		total += cond.Weight
		if e.conditionHolds(cond, event, tier, visit) {
			satisfied += cond.Weight
			met = append(met, cond.Type)
		}
	}
	if total <= 0 {
		return false, nil, nil
	}
	// Supermajority of evidence, not unanimity: one weak signal failing does
	// not suppress a well-supported promotion.
	return satisfied/total >= e.threshold, met, nil
}

// audienceMatches applies a promotion's audience filter. A nil tier means the
// caller is anonymous or has no tier record yet; tier-restricted audiences
// never match it.
func (e *Evaluator) audienceMatches(a Audience, tier *core.UserTier, visit VisitContext) bool {
	if len(a.TierLevels) > 0 {
		found := false
		for _, lvl := range a.TierLevels {
			if lvl == tierOf(tier) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	switch a.VisitHistory {
	case HistoryFirstTime:
		return visit.VisitCount <= 1
	case HistoryReturning:
		return visit.VisitCount >= 2
	case HistoryVIP:
		return tierOf(tier).AtLeast(core.TierGold)
	}
	return true
}

// conditionHolds evaluates one weighted predicate.
func (e *Evaluator) conditionHolds(cond Condition, event core.LocationEvent, tier *core.UserTier, visit VisitContext) bool {
	switch cond.Type {
	case CondLocationEntry:
		return event.Type == core.EventEnter &&
			venueMatches(cond.Params.VenueIDs, event.VenueID) &&
			tierMeets(cond.Params.MinTier, tierOf(tier))
	case CondLocationExit:
		return event.Type == core.EventExit && venueMatches(cond.Params.VenueIDs, event.VenueID)
	case CondFirstVisit:
		return visit.VisitCount <= 1 && venueMatches(cond.Params.VenueIDs, event.VenueID)
	case CondRepeatVisit:
		min := cond.Params.VisitCount
		if min <= 0 {
			min = 2
		}
		return visit.VisitCount >= min && venueMatches(cond.Params.VenueIDs, event.VenueID)
	case CondExtendedVisit:
		return event.Duration > 0 && event.Duration >= cond.Params.MinDuration
	case CondMultipleVenues:
		min := cond.Params.VisitCount
		if min <= 0 {
			min = 2
		}
		return visit.VenuesVisitedToday >= min
	case CondTimeBased:
		return cond.Params.Window != nil && windowContains(*cond.Params.Window, e.now())
	case CondTierUpgrade:
		return visit.TierJustUpgraded && tierMeets(cond.Params.MinTier, tierOf(tier))
	default:
		return false
	}
}

func (e *Evaluator) applyHappyHours(out *TriggerEvent, user core.UserID, event core.LocationEvent) {
	now := e.now()
	for _, hh := range e.happyHours {
		if !hh.Active || (hh.VenueID != "" && hh.VenueID != event.VenueID) {
			continue
		}
		active := false
		for _, slot := range hh.Slots {
			if windowContains(slot, now) {
				active = true
				break
			}
		}
		if !active {
			continue
		}
		for _, def := range hh.Rewards {
			r := e.mint(user, def, SourceHappyHour, TriggerData{
				VenueID:         event.VenueID,
				LocationEventID: event.ID,
				OverlayID:       hh.ID,
			})
			// happy-hour rewards expire with the slot, not the default day
			if def.RedeemWithin == 0 {
				r.ExpiresAt = r.TriggeredAt.Add(happyHourRedeemWithin)
			}
			out.Rewards = append(out.Rewards, r)
		}
	}
}

func (e *Evaluator) applyWeather(ctx context.Context, out *TriggerEvent, user core.UserID, event core.LocationEvent) {
	if e.forecast == nil {
		return
	}
	current, err := e.forecast.Current(ctx, event.VenueID)
	if err != nil {
		e.logger.Warn("weather provider unavailable", "venue", event.VenueID, "error", err)
		return
	}
	for _, w := range e.weather {
		if !w.Active || (w.VenueID != "" && w.VenueID != event.VenueID) || w.Condition != current {
			continue
		}
		for _, def := range w.Rewards {
			out.Rewards = append(out.Rewards, e.mint(user, def, SourceWeather, TriggerData{
				VenueID:         event.VenueID,
				LocationEventID: event.ID,
				OverlayID:       w.ID,
			}))
		}
	}
}

// mint instantiates a triggered reward with a fresh redemption code.
func (e *Evaluator) mint(user core.UserID, def Definition, src TriggerSource, data TriggerData) *Triggered {
	now := e.now().UTC()
	within := def.RedeemWithin
	if within == 0 {
		within = defaultRedeemWithin
	}
	return &Triggered{
		ID:                 uuid.NewString(),
		UserID:             user,
		RewardDefinitionID: def.ID,
		Definition:         def,
		Source:             src,
		TriggerData:        data,
		Status:             StatusTriggered,
		TriggeredAt:        now,
		ExpiresAt:          now.Add(within),
		RedemptionCode:     e.codes.NewCode(),
		EstimatedValue:     def.Value,
	}
}

// Discover lists what a user could earn at a venue right now: active
// promotions passing the audience filter and any live time-based offers.
func (e *Evaluator) Discover(ctx context.Context, venue core.VenueID, tier *core.UserTier, visit VisitContext) ([]Promotion, []HappyHourOverlay) {
	var promos []Promotion
	for _, p := range e.promotions {
		if !p.Active || (p.VenueID != "" && p.VenueID != venue) {
			continue
		}
		if e.withinValidity(p) && e.audienceMatches(p.Audience, tier, visit) {
			promos = append(promos, p)
		}
	}
	sort.SliceStable(promos, func(i, j int) bool { return promos[i].Priority > promos[j].Priority })

	now := e.now()
	var live []HappyHourOverlay
	for _, hh := range e.happyHours {
		if !hh.Active || (hh.VenueID != "" && hh.VenueID != venue) {
			continue
		}
		for _, slot := range hh.Slots {
			if windowContains(slot, now) {
				live = append(live, hh)
				break
			}
		}
	}
	return promos, live
}

func (e *Evaluator) withinValidity(p Promotion) bool {
	now := e.now()
	if !p.ValidFrom.IsZero() && now.Before(p.ValidFrom) {
		return false
	}
	if !p.ValidUntil.IsZero() && now.After(p.ValidUntil) {
		return false
	}
	return true
}

func venueMatches(required []core.VenueID, venue core.VenueID) bool {
	if len(required) == 0 {
		return true
	}
	for _, v := range required {
		if v == venue {
			return true
		}
	}
	return false
}

// tierOf is the nil-safe tier level; an absent record has no tier.
func tierOf(tier *core.UserTier) core.TierLevel {
	if tier == nil {
		return ""
	}
	return tier.CurrentTier
}

func tierMeets(min core.TierLevel, have core.TierLevel) bool {
	if min == "" {
		return true
	}
	return have.AtLeast(min)
}

// windowContains reports whether t falls inside the recurring window.
// Windows crossing midnight ("22:00"–"02:00") wrap to the next day.
func windowContains(w TimeWindow, t time.Time) bool {
	if len(w.Days) > 0 {
		day := dayName(t.Weekday())
		ok := false
		for _, d := range w.Days {
			if d == day {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	cur := t.Format("15:04")
	if w.Start <= w.End {
		return cur >= w.Start && cur <= w.End
	}
	return cur >= w.Start || cur <= w.End
}

func dayName(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	default:
		return "sunday"
	}
}
