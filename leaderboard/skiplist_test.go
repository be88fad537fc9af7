package leaderboard

import (
	"context"
	"testing"

	"geotrigger/core"
	"geotrigger/engine"
)

func TestSkipListBasic(t *testing.T) {
	s := NewSkipList()
	s.Update(core.UserID("a"), 10)
	s.Update(core.UserID("b"), 20)
	s.Update(core.UserID("c"), 15)
	top := s.TopN(3)
	if len(top) != 3 || top[0].User != core.UserID("b") || top[1].User != core.UserID("c") || top[2].User != core.UserID("a") {
		t.Fatalf("unexpected order: %#v", top)
	}
	s.Update(core.UserID("a"), 25)
	top = s.TopN(1)
	if top[0].User != core.UserID("a") {
		t.Fatalf("top should be a, got %#v", top)
	}
}

func TestSkipListRemove(t *testing.T) {
	s := NewSkipList()
	s.Update(core.UserID("a"), 10)
	s.Update(core.UserID("b"), 20)
	s.Remove(core.UserID("b"))
	if _, ok := s.Get(core.UserID("b")); ok {
		t.Fatal("b should be gone")
	}
	top := s.TopN(5)
	if len(top) != 1 || top[0].User != core.UserID("a") {
		t.Fatalf("unexpected standings: %#v", top)
	}
}

func TestStandingsFollowPointsAwards(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	defer bus.Close()

	standings := NewStandings()
	detach := standings.Attach(bus)

	ctx := context.Background()
	bus.Publish(ctx, core.NewPointsAwarded("ana", "venue-1", core.ActionVenueVisit, 50, 50))
	bus.Publish(ctx, core.NewPointsAwarded("bruno", "venue-1", core.ActionVenueVisit, 10, 110))
	bus.Publish(ctx, core.NewPointsAwarded("ana", "venue-2", core.ActionVenueVisit, 10, 60))

	top := standings.TopN(2)
	if len(top) != 2 || top[0].User != "bruno" || top[0].Points != 110 || top[1].Points != 60 {
		t.Fatalf("unexpected standings: %#v", top)
	}

	detach()
	bus.Publish(ctx, core.NewPointsAwarded("carla", "venue-1", core.ActionVenueVisit, 5, 5))
	if _, ok := standings.Get("carla"); ok {
		t.Fatal("detached board should not update")
	}
}
