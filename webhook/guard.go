package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"geotrigger/core"
)

const (
	// DefaultDedupWindow buckets replayed crossings of the same kind.
	DefaultDedupWindow = 5 * time.Minute
	// DefaultMaxAccuracy rejects fixes with worse reported accuracy, in meters.
	DefaultMaxAccuracy = 100.0
)

// Directory resolves webhook subjects against the system of record.
// Implemented by the repository.
type Directory interface {
	FindUserByID(ctx context.Context, id core.UserID) (*core.User, error)
	FindVenueByID(ctx context.Context, id core.VenueID) (*core.Venue, error)
	// IsDuplicateLocationEvent reports whether an event with the same key was
	// already admitted inside the window, and records this one if not.
	IsDuplicateLocationEvent(ctx context.Context, user core.UserID, venue core.VenueID, typ core.EventType, bucket time.Time, window time.Duration) (bool, error)
}

// Validation is the guard's verdict. Accepted=false means the payload was
// rejected outright; Accepted=true with Process=false means acknowledged but
// suppressed (test event, duplicate, disabled venue).
type Validation struct {
	Accepted bool
	Process  bool
	Reason   string
}

func reject(reason string) Validation { return Validation{Accepted: false, Reason: reason} }
func skip(reason string) Validation   { return Validation{Accepted: true, Reason: reason} }
func admitted() Validation            { return Validation{Accepted: true, Process: true} }

// Guard applies the ordered admission rules to inbound provider payloads.
// Every downstream idempotency guarantee assumes the guard ran first.
type Guard struct {
	dir         Directory
	secret      []byte
	dedupWindow time.Duration
	maxAccuracy float64
	logger      *slog.Logger
	now         func() time.Time
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithSigningSecret enables HMAC-SHA256 verification of the raw request body.
// Without a secret, signatures are not checked.
func WithSigningSecret(secret string) GuardOption {
	return func(g *Guard) {
		if secret != "" {
			g.secret = []byte(secret)
		}
	}
}

// WithDedupWindow overrides the duplicate-suppression window.
func WithDedupWindow(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.dedupWindow = d
		}
	}
}

// WithMaxAccuracy overrides the worst acceptable location accuracy in meters.
func WithMaxAccuracy(m float64) GuardOption {
	return func(g *Guard) {
		if m > 0 {
			g.maxAccuracy = m
		}
	}
}

// WithGuardLogger sets the structured logger.
func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithGuardClock overrides the time source, for tests.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// NewGuard builds the ingestion guard.
func NewGuard(dir Directory, opts ...GuardOption) *Guard {
	g := &Guard{
		dir:         dir,
		dedupWindow: DefaultDedupWindow,
		maxAccuracy: DefaultMaxAccuracy,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// VerifySignature checks the provider's hex HMAC-SHA256 of the raw body.
// Always passes when no signing secret is configured.
func (g *Guard) VerifySignature(body []byte, signature string) bool {
	if len(g.secret) == 0 {
		return true
	}
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

// Validate applies the admission rules in order; the first matching rule
// decides. Duplicate suppression keys on (user, venue, type, time bucket),
// never on the provider event id, because providers replay with fresh ids.
func (g *Guard) Validate(ctx context.Context, p *Payload) (Validation, error) {
	if !p.Live {
		return skip("test event"), nil
	}
	if p.Type != TypeEnteredGeofence && p.Type != TypeExitedGeofence {
		return skip("unsupported event type"), nil
	}

	userID, err := core.NormalizeUserID(core.UserID(p.User.UserID))
	if err != nil {
		return reject("missing user id"), nil
	}
	user, err := g.dir.FindUserByID(ctx, userID)
	if err != nil {
		return Validation{}, fmt.Errorf("look up user %s: %w", userID, err)
	}
	if user == nil {
		return reject("user not found"), nil
	}

	venueID := p.VenueID()
	if venueID == "" {
		return reject("venue not found"), nil
	}
	venue, err := g.dir.FindVenueByID(ctx, venueID)
	if err != nil {
		return Validation{}, fmt.Errorf("look up venue %s: %w", venueID, err)
	}
	if venue == nil {
		return reject("venue not found"), nil
	}
	if !venue.Settings.GeofenceEnabled {
		return skip("geofencing disabled for venue"), nil
	}

	if p.Location.Accuracy > g.maxAccuracy {
		return reject("location accuracy too low"), nil
	}

	// Dedup runs last so only events passing every other rule occupy a
	// bucket; a rejected fix must not suppress the valid crossing after it.
	ev := p.ToLocationEvent()
	dup, err := g.dir.IsDuplicateLocationEvent(ctx, userID, venueID, ev.Type, ev.Timestamp, g.dedupWindow)
	if err != nil {
		return Validation{}, fmt.Errorf("dedup check: %w", err)
	}
	if dup {
		g.logger.Debug("suppressed duplicate event",
			"user", userID, "venue", venueID, "type", ev.Type)
		return skip("duplicate event"), nil
	}

	return admitted(), nil
}
