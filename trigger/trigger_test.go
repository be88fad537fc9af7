package trigger

import (
	"context"
	"testing"
	"time"

	mem "geotrigger/adapters/memory"
	"geotrigger/core"
	"geotrigger/engine"
	"geotrigger/realtime"
	"geotrigger/webhook"
)

var tuesdayNoon = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

func seedStore() *mem.Store {
	store := mem.New()
	ctx := context.Background()
	_ = store.PutUser(ctx, &core.User{ID: "user-1", DisplayName: "Ana"})
	_ = store.PutVenue(ctx, &core.Venue{ID: "venue-1", Name: "Cafe Condesa",
		Settings: core.VenueSettings{GeofenceEnabled: true, PushNotificationsEnabled: true}})
	return store
}

func entry(id string) *webhook.Payload {
	return &webhook.Payload{
		ID:        id,
		CreatedAt: tuesdayNoon,
		Live:      true,
		Type:      webhook.TypeEnteredGeofence,
		User:      webhook.PayloadUser{UserID: "user-1"},
		Location:  webhook.PayloadLocation{Coordinates: [2]float64{-99.16, 19.41}, Accuracy: 10},
		Geofence: &webhook.PayloadGeofence{
			ID:       "geo-1",
			Metadata: map[string]any{"venueId": "venue-1"},
		},
	}
}

func TestNewDefaultsAndOptions(t *testing.T) {
	hub := realtime.NewHub()
	stack, err := New(
		WithRepository(seedStore()),
		WithRealtime(hub),
		WithDispatchMode(engine.DispatchSync),
		WithClock(func() time.Time { return tuesdayNoon }),
	)
	if err != nil {
		t.Fatalf("new stack: %v", err)
	}
	defer stack.Close()

	_, ch := hub.Subscribe(8)

	res, verdict, err := stack.Process(context.Background(), entry("evt-1"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !verdict.Process {
		t.Fatalf("entry not admitted: %+v", verdict)
	}
	if len(res.Points) == 0 {
		t.Fatal("first visit should award points")
	}

	// realtime bridge should receive the points event
	select {
	case ev := <-ch:
		if ev.UserID != "user-1" || ev.Type != core.EventPointsAwarded {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("no event broadcast to hub")
	}
}

func TestProcessSuppressesDuplicates(t *testing.T) {
	stack, err := New(
		WithRepository(seedStore()),
		WithDispatchMode(engine.DispatchSync),
		WithClock(func() time.Time { return tuesdayNoon }),
	)
	if err != nil {
		t.Fatalf("new stack: %v", err)
	}
	defer stack.Close()

	ctx := context.Background()
	if _, verdict, err := stack.Process(ctx, entry("evt-1")); err != nil || !verdict.Process {
		t.Fatalf("first entry: verdict=%+v err=%v", verdict, err)
	}

	res, verdict, err := stack.Process(ctx, entry("evt-2"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res != nil || verdict.Process || verdict.Reason != "duplicate event" {
		t.Fatalf("replay not suppressed: res=%v verdict=%+v", res, verdict)
	}
}

func TestDefaultRepositoryFallback(t *testing.T) {
	stack, err := New(WithDispatchMode(engine.DispatchSync))
	if err != nil {
		t.Fatalf("new stack: %v", err)
	}
	defer stack.Close()

	// unknown user against the empty default store is rejected, not an error
	_, verdict, err := stack.Process(context.Background(), entry("evt-1"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if verdict.Accepted {
		t.Fatalf("expected rejection, got %+v", verdict)
	}
}
