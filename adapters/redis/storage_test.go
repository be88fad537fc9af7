package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geotrigger/core"
	"geotrigger/passport"
	"geotrigger/rewards"
)

// newTestStore spins up a miniredis server and returns a store plus cleanup.
func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewWithClient(client)
	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return store, cleanup
}

var noon = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

func enterEvent(id string, venue core.VenueID, at time.Time) *core.LocationEvent {
	return &core.LocationEvent{ID: id, UserID: "u1", VenueID: venue, Type: core.EventEnter, Timestamp: at}
}

func TestStore_DirectoryRoundTrip(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	missing, err := store.FindUserByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.PutUser(ctx, &core.User{ID: "u1", DisplayName: "Ana"}))
	require.NoError(t, store.PutVenue(ctx, &core.Venue{ID: "v1", Name: "Cafe Centro"}))

	u, err := store.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.DisplayName)

	v, err := store.FindVenueByID(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "Cafe Centro", v.Name)
}

func TestStore_DedupWindow(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	dup, err := store.IsDuplicateLocationEvent(ctx, "u1", "v1", core.EventEnter, noon, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, dup, "first sighting is not a duplicate")

	dup, err = store.IsDuplicateLocationEvent(ctx, "u1", "v1", core.EventEnter, noon.Add(2*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, dup, "same venue and type inside the window")

	// A different event type has its own window.
	dup, err = store.IsDuplicateLocationEvent(ctx, "u1", "v1", core.EventExit, noon.Add(2*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = store.IsDuplicateLocationEvent(ctx, "u1", "v1", core.EventEnter, noon.Add(10*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, dup, "outside the window re-admits")
}

func TestStore_VisitCounters(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.CreateLocationEvent(ctx, enterEvent("e1", "v1", noon)))
	require.NoError(t, store.CreateLocationEvent(ctx, enterEvent("e2", "v1", noon.Add(time.Hour))))
	require.NoError(t, store.CreateLocationEvent(ctx, enterEvent("e3", "v2", noon.Add(2*time.Hour))))

	// Exits do not count as visits.
	require.NoError(t, store.CreateLocationEvent(ctx, &core.LocationEvent{
		ID: "e4", UserID: "u1", VenueID: "v1", Type: core.EventExit, Timestamp: noon.Add(3 * time.Hour),
	}))

	n, err := store.GetVenueVisitCount(ctx, "u1", "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	day, err := store.CountVenuesVisitedOn(ctx, "u1", noon)
	require.NoError(t, err)
	assert.Equal(t, 2, day, "distinct venues entered that day")

	day, err = store.CountVenuesVisitedOn(ctx, "u1", noon.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, day)
}

func TestStore_TierAndLedger(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	tier, err := store.GetUserTier(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, tier)

	require.NoError(t, store.UpdateUserTier(ctx, &core.UserTier{UserID: "u1", CurrentTier: "bronze", Points: 950}))
	require.NoError(t, store.CreatePointsTransaction(ctx, &core.PointsTransaction{
		ID: "tx1", UserID: "u1", ActionType: core.ActionVenueVisit, Points: 10,
	}))

	tier, err = store.GetUserTier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(950), tier.Points)

	ledger, err := store.LedgerEntries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, int64(10), ledger[0].Points)
}

func TestStore_PassportLifecycle(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	p := &passport.Passport{
		ID: "p1", UserID: "u1", TemplateID: "daily", Type: passport.TypeDaily,
		RequiredStamps: 2, Status: passport.StatusActive,
		CreatedAt: noon, ExpiresAt: noon.Add(24 * time.Hour),
	}
	require.NoError(t, store.CreatePassport(ctx, p))

	active, err := store.GetUserActivePassports(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, store.CreateStamp(ctx, "u1", &passport.Stamp{
		ID: "s1", PassportID: "p1", VenueID: "v1", StampedAt: noon, Status: passport.StampActive,
	}))
	require.NoError(t, store.SaveAchievement(ctx, "u1", passport.Achievement{ID: "first_stamp"}))

	col, err := store.GetPassportCollection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, col.StampsCollected)
	assert.Equal(t, 1, col.VenuesVisited)
	assert.Equal(t, []string{"first_stamp"}, col.AchievementIDs)

	p.Status = passport.StatusCompleted
	require.NoError(t, store.UpdatePassport(ctx, p))

	active, err = store.GetUserActivePassports(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)

	col, err = store.GetPassportCollection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, col.PassportsCompleted)
}

func TestStore_ExpiredPassportIndex(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	stale := &passport.Passport{
		ID: "old", UserID: "u1", Status: passport.StatusActive,
		CreatedAt: noon.Add(-48 * time.Hour), ExpiresAt: noon.Add(-time.Hour),
	}
	live := &passport.Passport{
		ID: "new", UserID: "u1", Status: passport.StatusActive,
		CreatedAt: noon, ExpiresAt: noon.Add(24 * time.Hour),
	}
	require.NoError(t, store.CreatePassport(ctx, stale))
	require.NoError(t, store.CreatePassport(ctx, live))

	expired, err := store.ListExpiredPassports(ctx, noon)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].ID)
}

func TestStore_RewardIndexFollowsStatus(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	r := &rewards.Triggered{
		ID: "r1", UserID: "u1", Status: rewards.StatusTriggered,
		TriggeredAt: noon.Add(-3 * time.Hour), ExpiresAt: noon.Add(-time.Hour),
		RedemptionCode: "MDL-TESTCODE",
	}
	require.NoError(t, store.SaveTriggeredReward(ctx, r))

	expired, err := store.ListExpiredRewards(ctx, noon)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "r1", expired[0].ID)

	r.Status = rewards.StatusExpired
	require.NoError(t, store.UpdateTriggeredReward(ctx, r))

	expired, err = store.ListExpiredRewards(ctx, noon)
	require.NoError(t, err)
	assert.Empty(t, expired)

	all, err := store.UserRewards(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rewards.StatusExpired, all[0].Status)
}

func TestStore_PromotionDisplays(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	count, last, err := store.PromotionDisplayCount(ctx, "u1", "welcome")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.True(t, last.IsZero())

	require.NoError(t, store.RecordPromotionDisplay(ctx, "u1", "welcome", noon))
	require.NoError(t, store.RecordPromotionDisplay(ctx, "u1", "welcome", noon.Add(time.Hour)))

	count, last, err = store.PromotionDisplayCount(ctx, "u1", "welcome")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, noon.Add(time.Hour), last)
}

func TestStreakDays(t *testing.T) {
	day := func(offset int) passport.Stamp {
		return passport.Stamp{StampedAt: noon.AddDate(0, 0, offset)}
	}
	assert.Equal(t, 0, streakDays(nil))
	assert.Equal(t, 1, streakDays([]passport.Stamp{day(0)}))
	assert.Equal(t, 3, streakDays([]passport.Stamp{day(-2), day(-1), day(0)}))
	// A gap resets the streak to the run ending at the latest day.
	assert.Equal(t, 1, streakDays([]passport.Stamp{day(-3), day(-2), day(0)}))
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "localhost:6379", config.Addr)
	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 2, config.MinIdleConns)
	assert.Equal(t, 5*time.Second, config.DialTimeout)
	assert.Equal(t, 3*time.Second, config.ReadTimeout)
	assert.Equal(t, 3*time.Second, config.WriteTimeout)
}
