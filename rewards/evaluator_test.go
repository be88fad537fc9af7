package rewards

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"geotrigger/core"
)

type allowAllGate struct{}

func (allowAllGate) AllowDisplay(context.Context, core.UserID, string, DisplayRules) (bool, error) {
	return true, nil
}

type denyGate struct{}

func (denyGate) AllowDisplay(context.Context, core.UserID, string, DisplayRules) (bool, error) {
	return false, nil
}

type fixedWeather string

func (w fixedWeather) Current(context.Context, core.VenueID) (string, error) {
	return string(w), nil
}

// fridayEvening is a Friday, 18:00 local.
var fridayEvening = time.Date(2025, 3, 7, 18, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func testEvaluator(t *testing.T, promos []Promotion, opts ...EvaluatorOption) *Evaluator {
	t.Helper()
	codes := NewCodeGenerator("MDL", rand.NewPCG(1, 0))
	opts = append([]EvaluatorOption{WithEvaluatorClock(fixedClock(fridayEvening))}, opts...)
	e, err := NewEvaluator(promos, nil, nil, allowAllGate{}, codes, opts...)
	require.NoError(t, err)
	return e
}

func enterEvent(venue core.VenueID) core.LocationEvent {
	return core.LocationEvent{
		ID:        "evt-1",
		UserID:    "user-1",
		VenueID:   venue,
		Type:      core.EventEnter,
		Timestamp: fridayEvening,
	}
}

func entryConds(met, unmet int) []Condition {
	var conds []Condition
	for i := 0; i < met; i++ {
		conds = append(conds, Condition{Type: CondLocationEntry, Weight: 1})
	}
	// location_exit never holds for an enter event
	for i := 0; i < unmet; i++ {
		conds = append(conds, Condition{Type: CondLocationExit, Weight: 1})
	}
	return conds
}

func promoWith(conds []Condition) Promotion {
	return Promotion{
		ID:      "promo-1",
		VenueID: "venue-1",
		Name:    "test promo",
		Active:  true,
		Conditions: conds,
		Rewards: []Definition{{ID: "rw-1", Kind: KindInstantDiscount, Value: 100}},
	}
}

func bronzeTier() *core.UserTier {
	return &core.UserTier{UserID: "user-1", CurrentTier: core.TierBronze}
}

func TestEvaluatorThresholdBoundary(t *testing.T) {
	cases := []struct {
		name  string
		met   int
		unmet int
		fires bool
	}{
		{"half is not enough", 1, 1, false},
		{"three quarters is not enough", 3, 1, false},
		{"exactly four fifths fires", 4, 1, true},
		{"all conditions fire", 2, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := testEvaluator(t, []Promotion{promoWith(entryConds(tc.met, tc.unmet))})
			out, err := e.ProcessLocationEvent(context.Background(), enterEvent("venue-1"), core.User{ID: "user-1"}, bronzeTier(), VisitContext{VisitCount: 5})
			require.NoError(t, err)
			if tc.fires {
				require.Len(t, out.Promotions, 1)
				require.Len(t, out.Rewards, 1)
			} else {
				require.Empty(t, out.Promotions)
				require.Empty(t, out.Rewards)
			}
		})
	}
}

func TestEvaluatorAudienceFilter(t *testing.T) {
	p := promoWith(entryConds(1, 0))
	p.Audience = Audience{VisitHistory: HistoryFirstTime}
	e := testEvaluator(t, []Promotion{p})

	out, err := e.ProcessLocationEvent(context.Background(), enterEvent("venue-1"), core.User{ID: "user-1"}, bronzeTier(), VisitContext{VisitCount: 3})
	require.NoError(t, err)
	require.Empty(t, out.Promotions, "returning visitor must not see a first-timer promotion")

	out, err = e.ProcessLocationEvent(context.Background(), enterEvent("venue-1"), core.User{ID: "user-1"}, bronzeTier(), VisitContext{VisitCount: 1})
	require.NoError(t, err)
	require.Len(t, out.Promotions, 1)
}

func TestDiscoverWithoutTierRecord(t *testing.T) {
	open := promoWith(entryConds(1, 0))
	open.ID = "open"
	vip := promoWith(entryConds(1, 0))
	vip.ID = "vip"
	vip.Audience = Audience{
		TierLevels:   []core.TierLevel{core.TierGold, core.TierBlack},
		VisitHistory: HistoryVIP,
	}
	e := testEvaluator(t, []Promotion{open, vip})

	// anonymous discovery carries no tier record at all
	promos, _ := e.Discover(context.Background(), "venue-1", nil, VisitContext{})
	require.Len(t, promos, 1)
	require.Equal(t, "open", promos[0].ID)

	gold := &core.UserTier{UserID: "user-1", CurrentTier: core.TierGold}
	promos, _ = e.Discover(context.Background(), "venue-1", gold, VisitContext{})
	require.Len(t, promos, 2)
}

func TestEvaluatorDisplayGateSuppresses(t *testing.T) {
	codes := NewCodeGenerator("MDL", rand.NewPCG(1, 0))
	e, err := NewEvaluator([]Promotion{promoWith(entryConds(1, 0))}, nil, nil, denyGate{}, codes,
		WithEvaluatorClock(fixedClock(fridayEvening)))
	require.NoError(t, err)

	out, err := e.ProcessLocationEvent(context.Background(), enterEvent("venue-1"), core.User{ID: "user-1"}, bronzeTier(), VisitContext{VisitCount: 5})
	require.NoError(t, err)
	require.Empty(t, out.Promotions)
}

func TestEvaluatorPriorityOrdering(t *testing.T) {
	low := promoWith(entryConds(1, 0))
	low.ID, low.Priority = "low", 1
	high := promoWith(entryConds(1, 0))
	high.ID, high.Priority = "high", 10

	e := testEvaluator(t, []Promotion{low, high})
	out, err := e.ProcessLocationEvent(context.Background(), enterEvent("venue-1"), core.User{ID: "user-1"}, bronzeTier(), VisitContext{VisitCount: 5})
	require.NoError(t, err)
	require.Len(t, out.Promotions, 2, "priority orders, never suppresses")
	require.Equal(t, "high", out.Promotions[0].ID)
	require.Equal(t, "low", out.Promotions[1].ID)
}

func TestHappyHourSlotAndExpiry(t *testing.T) {
	hh := []HappyHourOverlay{{
		ID:      "hh-1",
		VenueID: "venue-1",
		Name:    "friday drinks",
		Active:  true,
		Slots:   []TimeWindow{{Start: "17:00", End: "19:00", Days: []string{"friday"}}},
		Rewards: []Definition{{ID: "rw-hh", Kind: KindHappyHour}},
	}}
	codes := NewCodeGenerator("MDL", rand.NewPCG(1, 0))

	e, err := NewEvaluator(nil, hh, nil, allowAllGate{}, codes, WithEvaluatorClock(fixedClock(fridayEvening)))
	require.NoError(t, err)
	out, err := e.ProcessLocationEvent(context.Background(), enterEvent("venue-1"), core.User{ID: "user-1"}, bronzeTier(), VisitContext{})
	require.NoError(t, err)
	require.Len(t, out.Rewards, 1)
	require.Equal(t, SourceHappyHour, out.Rewards[0].Source)
	require.Equal(t, out.Rewards[0].TriggeredAt.Add(2*time.Hour), out.Rewards[0].ExpiresAt)

	// a saturday morning visit is outside the slot
	saturday := time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC)
	e, err = NewEvaluator(nil, hh, nil, allowAllGate{}, codes, WithEvaluatorClock(fixedClock(saturday)))
	require.NoError(t, err)
	out, err = e.ProcessLocationEvent(context.Background(), enterEvent("venue-1"), core.User{ID: "user-1"}, bronzeTier(), VisitContext{})
	require.NoError(t, err)
	require.Empty(t, out.Rewards)
}

func TestWeatherOverlayMatches(t *testing.T) {
	w := []WeatherOverlay{{
		ID:        "w-1",
		VenueID:   "venue-1",
		Condition: "rain",
		Active:    true,
		Rewards:   []Definition{{ID: "rw-rain", Kind: KindFreeItem}},
	}}
	codes := NewCodeGenerator("MDL", rand.NewPCG(1, 0))

	e, err := NewEvaluator(nil, nil, w, allowAllGate{}, codes,
		WithEvaluatorClock(fixedClock(fridayEvening)), WithWeather(fixedWeather("rain")))
	require.NoError(t, err)
	out, err := e.ProcessLocationEvent(context.Background(), enterEvent("venue-1"), core.User{ID: "user-1"}, bronzeTier(), VisitContext{})
	require.NoError(t, err)
	require.Len(t, out.Rewards, 1)
	require.Equal(t, SourceWeather, out.Rewards[0].Source)

	e, err = NewEvaluator(nil, nil, w, allowAllGate{}, codes,
		WithEvaluatorClock(fixedClock(fridayEvening)), WithWeather(fixedWeather("sunny")))
	require.NoError(t, err)
	out, err = e.ProcessLocationEvent(context.Background(), enterEvent("venue-1"), core.User{ID: "user-1"}, bronzeTier(), VisitContext{})
	require.NoError(t, err)
	require.Empty(t, out.Rewards)
}

func TestWindowContainsMidnightWrap(t *testing.T) {
	w := TimeWindow{Start: "22:00", End: "02:00"}
	require.True(t, windowContains(w, time.Date(2025, 3, 7, 23, 30, 0, 0, time.UTC)))
	require.True(t, windowContains(w, time.Date(2025, 3, 8, 1, 0, 0, 0, time.UTC)))
	require.False(t, windowContains(w, time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)))
}

func TestCodeGeneratorDeterministic(t *testing.T) {
	a := NewCodeGenerator("MDL", rand.NewPCG(42, 0))
	b := NewCodeGenerator("MDL", rand.NewPCG(42, 0))
	first := a.NewCode()
	require.Equal(t, first, b.NewCode())
	require.Regexp(t, `^MDL-[A-Z2-9]{8}$`, first)
	require.NotEqual(t, first, a.NewCode())
}
