// Package webhook ingests geofencing-provider events: payload decoding,
// signature verification, the ordered admission rules, and the duplicate
// suppression that forms the engine's idempotency boundary.
package webhook

import (
	"time"

	"geotrigger/core"
)

// Provider event types. Anything else is accepted but never processed.
const (
	TypeEnteredGeofence = "user.entered_geofence"
	TypeExitedGeofence  = "user.exited_geofence"
)

// PayloadUser identifies the device owner as known to the provider.
type PayloadUser struct {
	UserID      string         `json:"userId"`
	DeviceID    string         `json:"deviceId,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// PayloadLocation is the fix that produced the crossing. Coordinates are
// GeoJSON order, longitude first.
type PayloadLocation struct {
	Coordinates [2]float64 `json:"coordinates"`
	Accuracy    float64    `json:"accuracy"`
	Timestamp   string     `json:"timestamp,omitempty"`
}

// PayloadGeofence is the provider's view of the crossed boundary. The venue
// binding lives in Metadata under "venueId".
type PayloadGeofence struct {
	ID          string         `json:"_id"`
	Tag         string         `json:"tag,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Payload is the provider's webhook body.
type Payload struct {
	ID         string           `json:"id"`
	CreatedAt  time.Time        `json:"createdAt"`
	Live       bool             `json:"live"`
	Type       string           `json:"type"`
	User       PayloadUser      `json:"user"`
	Location   PayloadLocation  `json:"location"`
	Geofence   *PayloadGeofence `json:"geofence,omitempty"`
	Confidence string           `json:"confidence,omitempty"`
	Duration   float64          `json:"duration,omitempty"` // seconds, set on exit
	Replayed   bool             `json:"replayed,omitempty"`
}

// VenueID extracts the venue binding from the geofence metadata.
func (p *Payload) VenueID() core.VenueID {
	if p.Geofence == nil {
		return ""
	}
	v, _ := p.Geofence.Metadata["venueId"].(string)
	return core.VenueID(v)
}

// ToLocationEvent converts an admitted payload into the immutable domain
// event. Callers must run the guard first.
func (p *Payload) ToLocationEvent() core.LocationEvent {
	ev := core.LocationEvent{
		ID:      p.ID,
		UserID:  core.UserID(p.User.UserID),
		VenueID: p.VenueID(),
		Coordinates: core.Coordinates{
			Longitude: p.Location.Coordinates[0],
			Latitude:  p.Location.Coordinates[1],
		},
		Accuracy:   p.Location.Accuracy,
		Timestamp:  p.CreatedAt.UTC(),
		Confidence: p.Confidence,
	}
	if p.Geofence != nil {
		ev.GeofenceID = p.Geofence.ID
	}
	switch p.Type {
	case TypeEnteredGeofence:
		ev.Type = core.EventEnter
	case TypeExitedGeofence:
		ev.Type = core.EventExit
		ev.Duration = time.Duration(p.Duration * float64(time.Second))
	}
	return ev
}
