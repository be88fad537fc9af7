// Package leaderboard ranks users by lifetime tier points.
package leaderboard

import (
	"context"

	"geotrigger/core"
	"geotrigger/engine"
)

// Entry is one ranked standing.
type Entry struct {
	User   core.UserID `json:"user_id"`
	Points int64       `json:"points"`
}

// Board abstracts leaderboard operations.
type Board interface {
	Update(user core.UserID, points int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
}

// Standings is a Board kept current from the engine's event stream. Every
// points award carries the user's running total, so the board never needs
// to read storage.
type Standings struct {
	Board
}

// NewStandings builds an empty skip-list backed standings board.
func NewStandings() *Standings {
	return &Standings{Board: NewSkipList()}
}

// Attach subscribes the board to points awards on the bus. The returned
// function detaches it.
func (s *Standings) Attach(bus *engine.EventBus) func() {
	return bus.Subscribe(core.EventPointsAwarded, func(_ context.Context, ev core.DomainEvent) {
		s.Update(ev.UserID, ev.Total)
	})
}
