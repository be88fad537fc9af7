package passport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"geotrigger/core"
)

var tuesdayNoon = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

type stubStore struct {
	passports    map[string]*Passport
	collection   Collection
	createdCount int
}

func newStubStore() *stubStore {
	return &stubStore{passports: map[string]*Passport{}}
}

func (s *stubStore) GetUserActivePassports(_ context.Context, user core.UserID) ([]*Passport, error) {
	var out []*Passport
	for _, p := range s.passports {
		if p.UserID == user && p.Status == StatusActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStore) CreatePassport(_ context.Context, p *Passport) error {
	s.createdCount++
	s.passports[p.ID] = p
	return nil
}

func (s *stubStore) GetPassportCollection(_ context.Context, user core.UserID) (*Collection, error) {
	col := s.collection
	col.UserID = user
	return &col, nil
}

func testTemplates() []Template {
	return []Template{
		{
			ID: "daily", Type: TypeDaily, Name: "Daily", Active: true,
			RequiredStamps: 2, Validity: 24 * time.Hour,
			Rules: []Rule{
				{Type: RuleMinimumVisitDuration, Value: 30, Description: "30 minute minimum"},
			},
			Rewards: []Reward{{Type: "points", Value: 100, Description: "daily bonus"}},
		},
		{
			ID: "chain", Type: TypeVenueChain, Name: "Chain", Active: true,
			RequiredStamps: 2, Validity: 30 * 24 * time.Hour,
			RequiredVenues: []core.VenueID{"v1", "v2"},
		},
	}
}

func testAchievements() []Achievement {
	return []Achievement{
		{ID: "first_stamp", Name: "First Stamp", Requirement: ReqStampsCollected, Threshold: 1},
		{ID: "collector", Name: "Collector", Requirement: ReqStampsCollected, Threshold: 10},
	}
}

func newTestValidator(t *testing.T, store Store) *Validator {
	t.Helper()
	v, err := NewValidator(store, testTemplates(), testAchievements(), "daily",
		WithClock(func() time.Time { return tuesdayNoon }))
	require.NoError(t, err)
	return v
}

func visitEvent(venue core.VenueID) core.LocationEvent {
	return core.LocationEvent{ID: "evt-1", UserID: "u1", VenueID: venue, Type: core.EventExit, Timestamp: tuesdayNoon}
}

func TestNewValidatorRejectsUnknownDefault(t *testing.T) {
	_, err := NewValidator(newStubStore(), testTemplates(), nil, "missing")
	require.Error(t, err)
}

func TestAwardStampAutoCreatesDefaultPassport(t *testing.T) {
	store := newStubStore()
	v := newTestValidator(t, store)

	res, err := v.AwardStamp(context.Background(), "u1", "v1", "Cafe", visitEvent("v1"),
		VisitContext{VisitDuration: 45 * time.Minute})
	require.NoError(t, err)
	require.Equal(t, 1, store.createdCount, "default passport auto-created")
	require.True(t, res.Valid)
	require.NotNil(t, res.Stamp)
	require.Len(t, res.PassportUpdates, 1)
	require.InDelta(t, 0.5, res.PassportUpdates[0].Progress, 1e-9)
	require.Equal(t, StatusActive, res.PassportUpdates[0].Status)
}

func TestShortVisitFailsDurationRule(t *testing.T) {
	store := newStubStore()
	v := newTestValidator(t, store)

	res, err := v.AwardStamp(context.Background(), "u1", "v1", "Cafe", visitEvent("v1"),
		VisitContext{VisitDuration: 10 * time.Minute})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Contains(t, res.Reason, "rule not satisfied")
	require.Nil(t, res.Stamp)
}

func TestSecondStampCompletesPassport(t *testing.T) {
	store := newStubStore()
	v := newTestValidator(t, store)

	_, err := v.AwardStamp(context.Background(), "u1", "v1", "Cafe", visitEvent("v1"),
		VisitContext{VisitDuration: time.Hour})
	require.NoError(t, err)

	res, err := v.AwardStamp(context.Background(), "u1", "v2", "Bar", visitEvent("v2"),
		VisitContext{VisitDuration: time.Hour})
	require.NoError(t, err)
	require.True(t, res.Valid)
	p := res.PassportUpdates[0]
	require.Equal(t, StatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)
	require.InDelta(t, 1.0, p.Progress, 1e-9)
	require.Len(t, res.RewardsEarned, 1)
	require.EqualValues(t, 100, res.RewardsEarned[0].Value)
}

func TestVenueChainRejectsRepeatVenue(t *testing.T) {
	store := newStubStore()
	v := newTestValidator(t, store)

	chain, err := v.NewPassport("u1", "chain")
	require.NoError(t, err)
	require.NoError(t, store.CreatePassport(context.Background(), chain))

	res, err := v.AwardStamp(context.Background(), "u1", "v1", "Cafe", visitEvent("v1"), VisitContext{})
	require.NoError(t, err)
	require.True(t, res.Valid)

	res, err = v.AwardStamp(context.Background(), "u1", "v1", "Cafe", visitEvent("v1"), VisitContext{})
	require.NoError(t, err)
	require.False(t, res.Valid, "chain passports need distinct venues")
	require.Contains(t, res.Reason, "already stamped")
}

func TestVenueChainRejectsOutsideVenue(t *testing.T) {
	store := newStubStore()
	v := newTestValidator(t, store)

	chain, err := v.NewPassport("u1", "chain")
	require.NoError(t, err)
	require.NoError(t, store.CreatePassport(context.Background(), chain))

	res, err := v.AwardStamp(context.Background(), "u1", "v9", "Elsewhere", visitEvent("v9"), VisitContext{})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Contains(t, res.Reason, "not part of this passport")
}

func TestExpiredPassportRejected(t *testing.T) {
	store := newStubStore()
	v := newTestValidator(t, store)

	p, err := v.NewPassport("u1", "daily")
	require.NoError(t, err)
	p.ExpiresAt = tuesdayNoon.Add(-time.Hour)
	require.NoError(t, store.CreatePassport(context.Background(), p))

	res, err := v.AwardStamp(context.Background(), "u1", "v1", "Cafe", visitEvent("v1"),
		VisitContext{VisitDuration: time.Hour})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Contains(t, res.Reason, "expired")
}

func TestAchievementsAreMonotonic(t *testing.T) {
	store := newStubStore()
	v := newTestValidator(t, store)

	res, err := v.AwardStamp(context.Background(), "u1", "v1", "Cafe", visitEvent("v1"),
		VisitContext{VisitDuration: time.Hour})
	require.NoError(t, err)
	require.Len(t, res.NewAchievements, 1)
	require.Equal(t, "first_stamp", res.NewAchievements[0].ID)
	require.False(t, res.NewAchievements[0].UnlockedAt.IsZero())

	// once recorded in the collection it is never granted again
	store.collection.AchievementIDs = []string{"first_stamp"}
	store.collection.StampsCollected = 1

	res, err = v.AwardStamp(context.Background(), "u1", "v2", "Bar", visitEvent("v2"),
		VisitContext{VisitDuration: time.Hour})
	require.NoError(t, err)
	require.Empty(t, res.NewAchievements)
}
