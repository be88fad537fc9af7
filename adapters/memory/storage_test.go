package memory

import (
	"context"
	"testing"
	"time"

	"geotrigger/core"
	"geotrigger/passport"
)

func TestDedupWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	dup, err := s.IsDuplicateLocationEvent(ctx, "u1", "v1", core.EventEnter, base, 5*time.Minute)
	if err != nil || dup {
		t.Fatalf("first event: dup=%v err=%v", dup, err)
	}
	dup, _ = s.IsDuplicateLocationEvent(ctx, "u1", "v1", core.EventEnter, base.Add(2*time.Minute), 5*time.Minute)
	if !dup {
		t.Fatal("replay inside window not suppressed")
	}
	dup, _ = s.IsDuplicateLocationEvent(ctx, "u1", "v1", core.EventExit, base.Add(2*time.Minute), 5*time.Minute)
	if dup {
		t.Fatal("exit deduped against enter")
	}
	dup, _ = s.IsDuplicateLocationEvent(ctx, "u1", "v1", core.EventEnter, base.Add(10*time.Minute), 5*time.Minute)
	if dup {
		t.Fatal("event outside window suppressed")
	}
}

func TestVisitCounters(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	events := []core.LocationEvent{
		{ID: "e1", UserID: "u1", VenueID: "v1", Type: core.EventEnter, Timestamp: base},
		{ID: "e2", UserID: "u1", VenueID: "v1", Type: core.EventExit, Timestamp: base.Add(time.Hour)},
		{ID: "e3", UserID: "u1", VenueID: "v2", Type: core.EventEnter, Timestamp: base.Add(2 * time.Hour)},
		{ID: "e4", UserID: "u1", VenueID: "v1", Type: core.EventEnter, Timestamp: base.AddDate(0, 0, 1)},
	}
	for i := range events {
		if err := s.CreateLocationEvent(ctx, &events[i]); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.GetVenueVisitCount(ctx, "u1", "v1")
	if err != nil || n != 2 {
		t.Fatalf("venue visit count = %d, want 2 (exits don't count)", n)
	}
	n, err = s.CountVenuesVisitedOn(ctx, "u1", base)
	if err != nil || n != 2 {
		t.Fatalf("venues visited on day = %d, want 2", n)
	}
	n, _ = s.CountVenuesVisitedOn(ctx, "u1", base.AddDate(0, 0, 1))
	if n != 1 {
		t.Fatalf("venues visited next day = %d, want 1", n)
	}
}

func TestTierRoundTripIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	if tier, _ := s.GetUserTier(ctx, "u1"); tier != nil {
		t.Fatal("expected nil tier for unknown user")
	}
	in := &core.UserTier{UserID: "u1", CurrentTier: core.TierSilver, Points: 1200}
	if err := s.UpdateUserTier(ctx, in); err != nil {
		t.Fatal(err)
	}
	out, err := s.GetUserTier(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	out.Points = 9999 // mutating the copy must not touch the store
	again, _ := s.GetUserTier(ctx, "u1")
	if again.Points != 1200 {
		t.Fatalf("stored points = %d, want 1200", again.Points)
	}
}

func TestCollectionStreak(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 3, 4, 20, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		st := passport.Stamp{ID: string(rune('a' + i)), VenueID: core.VenueID("v1"),
			StampedAt: base.AddDate(0, 0, -i), Status: passport.StampActive}
		if err := s.CreateStamp(ctx, "u1", &st); err != nil {
			t.Fatal(err)
		}
	}

	col, err := s.GetPassportCollection(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if col.StampsCollected != 3 {
		t.Fatalf("stamps collected = %d, want 3", col.StampsCollected)
	}
	if col.CurrentStreakDays != 3 {
		t.Fatalf("streak = %d, want 3", col.CurrentStreakDays)
	}
	if col.VenuesVisited != 1 {
		t.Fatalf("venues visited = %d, want 1", col.VenuesVisited)
	}
}
