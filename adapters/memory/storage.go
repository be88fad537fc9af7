// Package memory is a concurrent in-memory Repository implementation, used in
// tests and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"geotrigger/core"
	"geotrigger/engine"
	"geotrigger/passport"
	"geotrigger/rewards"
)

// Store keeps all engine state in process memory. Per-user state lives in one
// record guarded by its own mutex, so concurrent updates to the same user's
// ledger are serialized while distinct users proceed in parallel.
type Store struct {
	users   sync.Map // map[core.UserID]*core.User
	venues  sync.Map // map[core.VenueID]*core.Venue
	records sync.Map // map[core.UserID]*userRecord

	mu      sync.RWMutex
	rewards map[string]*rewards.Triggered
}

type displayRecord struct {
	count int
	last  time.Time
}

type userRecord struct {
	mu           sync.Mutex
	tier         *core.UserTier
	ledger       []*core.PointsTransaction
	events       []core.LocationEvent
	dedup        map[string]time.Time
	passports    map[string]*passport.Passport
	stamps       []passport.Stamp
	achievements map[string]passport.Achievement
	displays     map[string]*displayRecord
}

func New() *Store {
	return &Store{rewards: make(map[string]*rewards.Triggered)}
}

// PutUser registers a user in the directory.
func (s *Store) PutUser(_ context.Context, u *core.User) error {
	cp := *u
	s.users.Store(u.ID, &cp)
	return nil
}

// PutVenue registers a venue in the directory.
func (s *Store) PutVenue(_ context.Context, v *core.Venue) error {
	cp := *v
	s.venues.Store(v.ID, &cp)
	return nil
}

func (s *Store) record(user core.UserID) *userRecord {
	if v, ok := s.records.Load(user); ok {
		return v.(*userRecord)
	}
	rec := &userRecord{
		dedup:        map[string]time.Time{},
		passports:    map[string]*passport.Passport{},
		achievements: map[string]passport.Achievement{},
		displays:     map[string]*displayRecord{},
	}
	actual, _ := s.records.LoadOrStore(user, rec)
	return actual.(*userRecord)
}

func (s *Store) FindUserByID(_ context.Context, id core.UserID) (*core.User, error) {
	if v, ok := s.users.Load(id); ok {
		cp := *v.(*core.User)
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) FindVenueByID(_ context.Context, id core.VenueID) (*core.Venue, error) {
	if v, ok := s.venues.Load(id); ok {
		cp := *v.(*core.Venue)
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) GetUserTier(_ context.Context, user core.UserID) (*core.UserTier, error) {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.tier == nil {
		return nil, nil
	}
	cp := *rec.tier
	return &cp, nil
}

func (s *Store) UpdateUserTier(_ context.Context, tier *core.UserTier) error {
	rec := s.record(tier.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	cp := *tier
	rec.tier = &cp
	return nil
}

func (s *Store) CreatePointsTransaction(_ context.Context, tx *core.PointsTransaction) error {
	rec := s.record(tx.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	cp := *tx
	rec.ledger = append(rec.ledger, &cp)
	return nil
}

// LedgerEntries returns a copy of the user's points ledger, newest last.
func (s *Store) LedgerEntries(_ context.Context, user core.UserID) ([]*core.PointsTransaction, error) {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]*core.PointsTransaction, 0, len(rec.ledger))
	for _, tx := range rec.ledger {
		cp := *tx
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CreateLocationEvent(_ context.Context, ev *core.LocationEvent) error {
	rec := s.record(ev.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.events = append(rec.events, *ev)
	return nil
}

func dedupKey(venue core.VenueID, typ core.EventType) string {
	return string(venue) + "|" + string(typ)
}

func (s *Store) IsDuplicateLocationEvent(_ context.Context, user core.UserID, venue core.VenueID, typ core.EventType, bucket time.Time, window time.Duration) (bool, error) {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	key := dedupKey(venue, typ)
	if prev, ok := rec.dedup[key]; ok {
		delta := bucket.Sub(prev)
		if delta < 0 {
			delta = -delta
		}
		if delta < window {
			return true, nil
		}
	}
	rec.dedup[key] = bucket
	return false, nil
}

func (s *Store) GetVenueVisitCount(_ context.Context, user core.UserID, venue core.VenueID) (int, error) {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := 0
	for _, ev := range rec.events {
		if ev.VenueID == venue && ev.Type == core.EventEnter {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountVenuesVisitedOn(_ context.Context, user core.UserID, day time.Time) (int, error) {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	y, m, d := day.UTC().Date()
	seen := map[core.VenueID]struct{}{}
	for _, ev := range rec.events {
		ey, em, ed := ev.Timestamp.UTC().Date()
		if ey == y && em == m && ed == d && ev.Type == core.EventEnter {
			seen[ev.VenueID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (s *Store) GetUserActivePassports(_ context.Context, user core.UserID) ([]*passport.Passport, error) {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var out []*passport.Passport
	for _, p := range rec.passports {
		if p.Status == passport.StatusActive {
			cp := clonePassport(p)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreatePassport(_ context.Context, p *passport.Passport) error {
	rec := s.record(p.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.passports[p.ID] = clonePassport(p)
	return nil
}

func (s *Store) UpdatePassport(_ context.Context, p *passport.Passport) error {
	rec := s.record(p.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.passports[p.ID] = clonePassport(p)
	return nil
}

func (s *Store) CreateStamp(_ context.Context, user core.UserID, st *passport.Stamp) error {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.stamps = append(rec.stamps, *st)
	return nil
}

func (s *Store) GetPassportCollection(_ context.Context, user core.UserID) (*passport.Collection, error) {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	col := &passport.Collection{UserID: user}
	venues := map[core.VenueID]struct{}{}
	for _, st := range rec.stamps {
		venues[st.VenueID] = struct{}{}
	}
	for _, p := range rec.passports {
		if p.Status == passport.StatusCompleted {
			col.PassportsCompleted++
		}
	}
	for id := range rec.achievements {
		col.AchievementIDs = append(col.AchievementIDs, id)
	}
	sort.Strings(col.AchievementIDs)
	col.StampsCollected = len(rec.stamps)
	col.VenuesVisited = len(venues)
	col.CurrentStreakDays = streakDays(rec.stamps)
	return col, nil
}

// streakDays counts consecutive calendar days with at least one stamp, ending
// at the most recent stamp day.
func streakDays(stamps []passport.Stamp) int {
	if len(stamps) == 0 {
		return 0
	}
	days := map[string]struct{}{}
	latest := stamps[0].StampedAt
	for _, st := range stamps {
		days[st.StampedAt.UTC().Format("2006-01-02")] = struct{}{}
		if st.StampedAt.After(latest) {
			latest = st.StampedAt
		}
	}
	streak := 0
	for d := latest.UTC(); ; d = d.AddDate(0, 0, -1) {
		if _, ok := days[d.Format("2006-01-02")]; !ok {
			break
		}
		streak++
	}
	return streak
}

func (s *Store) SaveAchievement(_ context.Context, user core.UserID, a passport.Achievement) error {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.achievements[a.ID] = a
	return nil
}

func (s *Store) SaveTriggeredReward(_ context.Context, r *rewards.Triggered) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rewards[r.ID] = &cp
	return nil
}

func (s *Store) GetTriggeredReward(_ context.Context, id string) (*rewards.Triggered, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rewards[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *Store) UpdateTriggeredReward(_ context.Context, r *rewards.Triggered) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rewards[r.ID] = &cp
	return nil
}

// UserRewards returns the user's triggered rewards, most recent first.
func (s *Store) UserRewards(_ context.Context, user core.UserID) ([]*rewards.Triggered, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*rewards.Triggered
	for _, r := range s.rewards {
		if r.UserID == user {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out, nil
}

func (s *Store) PromotionDisplayCount(_ context.Context, user core.UserID, promotionID string) (int, time.Time, error) {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if d, ok := rec.displays[promotionID]; ok {
		return d.count, d.last, nil
	}
	return 0, time.Time{}, nil
}

func (s *Store) RecordPromotionDisplay(_ context.Context, user core.UserID, promotionID string, at time.Time) error {
	rec := s.record(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	d := rec.displays[promotionID]
	if d == nil {
		d = &displayRecord{}
		rec.displays[promotionID] = d
	}
	d.count++
	if at.After(d.last) {
		d.last = at
	}
	return nil
}

func (s *Store) ListExpiredRewards(_ context.Context, before time.Time) ([]*rewards.Triggered, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*rewards.Triggered
	for _, r := range s.rewards {
		if r.Status == rewards.StatusTriggered && r.ExpiresAt.Before(before) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListExpiredPassports(_ context.Context, before time.Time) ([]*passport.Passport, error) {
	var out []*passport.Passport
	s.records.Range(func(_, v any) bool {
		rec := v.(*userRecord)
		rec.mu.Lock()
		for _, p := range rec.passports {
			if p.Status == passport.StatusActive && p.ExpiresAt.Before(before) {
				out = append(out, clonePassport(p))
			}
		}
		rec.mu.Unlock()
		return true
	})
	return out, nil
}

func clonePassport(p *passport.Passport) *passport.Passport {
	cp := *p
	cp.Stamps = append([]passport.Stamp(nil), p.Stamps...)
	return &cp
}

var _ engine.Repository = (*Store)(nil)
