package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"geotrigger/core"
	"geotrigger/engine"
	"geotrigger/passport"
	"geotrigger/rewards"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"GEOTRIGGER_REDIS_ADDR"`
	Password     string        `json:"password,omitempty" env:"GEOTRIGGER_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"GEOTRIGGER_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"GEOTRIGGER_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"GEOTRIGGER_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"GEOTRIGGER_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"GEOTRIGGER_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"GEOTRIGGER_REDIS_WRITE_TIMEOUT"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements engine.Repository on Redis.
// Data structure:
// - geo:user:{id} / geo:venue:{id} -> JSON directory records
// - geo:user:{id}:tier -> JSON tier snapshot
// - geo:user:{id}:ledger -> list of JSON points transactions
// - geo:user:{id}:events -> list of JSON location events
// - geo:user:{id}:visits:{venue} -> entry counter per venue
// - geo:user:{id}:day:{yyyy-mm-dd} -> set of venues entered that day
// - geo:dedup:{user}:{venue}:{type} -> last event bucket (unix), TTL = window
// - geo:user:{id}:passports / :stamps / :achievements -> passport state
// - geo:reward:{id} -> JSON triggered reward, indexed by geo:rewards:active
//   and geo:passports:active sorted sets keyed on expiry for the sweeper
type Store struct {
	client *redis.Client
}

var _ engine.Repository = (*Store)(nil)

// New creates a Redis-backed repository with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func userKey(id core.UserID) string   { return fmt.Sprintf("geo:user:%s", id) }
func venueKey(id core.VenueID) string { return fmt.Sprintf("geo:venue:%s", id) }
func tierKey(u core.UserID) string    { return fmt.Sprintf("geo:user:%s:tier", u) }
func ledgerKey(u core.UserID) string  { return fmt.Sprintf("geo:user:%s:ledger", u) }
func eventsKey(u core.UserID) string  { return fmt.Sprintf("geo:user:%s:events", u) }
func rewardKey(id string) string      { return fmt.Sprintf("geo:reward:%s", id) }

func visitsKey(u core.UserID, v core.VenueID) string {
	return fmt.Sprintf("geo:user:%s:visits:%s", u, v)
}

func dayKey(u core.UserID, day time.Time) string {
	return fmt.Sprintf("geo:user:%s:day:%s", u, day.UTC().Format("2006-01-02"))
}

func dedupKey(u core.UserID, v core.VenueID, typ core.EventType) string {
	return fmt.Sprintf("geo:dedup:%s:%s:%s", u, v, typ)
}

func passportsKey(u core.UserID) string    { return fmt.Sprintf("geo:user:%s:passports", u) }
func stampsKey(u core.UserID) string       { return fmt.Sprintf("geo:user:%s:stamps", u) }
func achievementsKey(u core.UserID) string { return fmt.Sprintf("geo:user:%s:achievements", u) }
func userRewardsKey(u core.UserID) string  { return fmt.Sprintf("geo:user:%s:rewards", u) }

func displayKey(u core.UserID, promo string) string {
	return fmt.Sprintf("geo:user:%s:display:%s", u, promo)
}

const (
	activeRewardsIndex   = "geo:rewards:active"
	activePassportsIndex = "geo:passports:active"
)

func (s *Store) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dst)
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

// PutUser registers a user in the directory.
func (s *Store) PutUser(ctx context.Context, u *core.User) error {
	return s.setJSON(ctx, userKey(u.ID), u)
}

// PutVenue registers a venue in the directory.
func (s *Store) PutVenue(ctx context.Context, v *core.Venue) error {
	return s.setJSON(ctx, venueKey(v.ID), v)
}

func (s *Store) FindUserByID(ctx context.Context, id core.UserID) (*core.User, error) {
	var u core.User
	ok, err := s.getJSON(ctx, userKey(id), &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindVenueByID(ctx context.Context, id core.VenueID) (*core.Venue, error) {
	var v core.Venue
	ok, err := s.getJSON(ctx, venueKey(id), &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

func (s *Store) GetUserTier(ctx context.Context, user core.UserID) (*core.UserTier, error) {
	var t core.UserTier
	ok, err := s.getJSON(ctx, tierKey(user), &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

func (s *Store) UpdateUserTier(ctx context.Context, tier *core.UserTier) error {
	return s.setJSON(ctx, tierKey(tier.UserID), tier)
}

func (s *Store) CreatePointsTransaction(ctx context.Context, tx *core.PointsTransaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, ledgerKey(tx.UserID), data).Err()
}

// LedgerEntries returns a user's points transactions in insertion order.
func (s *Store) LedgerEntries(ctx context.Context, user core.UserID) ([]core.PointsTransaction, error) {
	raw, err := s.client.LRange(ctx, ledgerKey(user), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]core.PointsTransaction, 0, len(raw))
	for _, item := range raw {
		var tx core.PointsTransaction
		if err := json.Unmarshal([]byte(item), &tx); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) CreateLocationEvent(ctx context.Context, ev *core.LocationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, eventsKey(ev.UserID), data).Err(); err != nil {
		return err
	}
	if ev.Type != core.EventEnter {
		return nil
	}
	if err := s.client.Incr(ctx, visitsKey(ev.UserID, ev.VenueID)).Err(); err != nil {
		return err
	}
	dk := dayKey(ev.UserID, ev.Timestamp)
	if err := s.client.SAdd(ctx, dk, string(ev.VenueID)).Err(); err != nil {
		return err
	}
	// The per-day distinct-venue set only matters for same-day bonuses.
	return s.client.Expire(ctx, dk, 48*time.Hour).Err()
}

// dedupScript records the event bucket and reports whether a prior sighting
// fell inside the window. Check and record are one atomic step.
var dedupScript = redis.NewScript(`
	local prev = redis.call('GET', KEYS[1])
	local bucket = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	if prev then
		local delta = bucket - tonumber(prev)
		if delta < 0 then delta = -delta end
		if delta < window then
			return 1
		end
	end
	redis.call('SET', KEYS[1], bucket, 'EX', ARGV[3])
	return 0
`)

func (s *Store) IsDuplicateLocationEvent(ctx context.Context, user core.UserID, venue core.VenueID, typ core.EventType, bucket time.Time, window time.Duration) (bool, error) {
	ttl := int64(window / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	key := dedupKey(user, venue, typ)
	res, err := dedupScript.Run(ctx, s.client, []string{key},
		bucket.Unix(), int64(window/time.Second), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, errors.New("unexpected result type from Redis script")
	}
	return n == 1, nil
}

func (s *Store) GetVenueVisitCount(ctx context.Context, user core.UserID, venue core.VenueID) (int, error) {
	n, err := s.client.Get(ctx, visitsKey(user, venue)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *Store) CountVenuesVisitedOn(ctx context.Context, user core.UserID, day time.Time) (int, error) {
	n, err := s.client.SCard(ctx, dayKey(user, day)).Result()
	return int(n), err
}

func (s *Store) GetUserActivePassports(ctx context.Context, user core.UserID) ([]*passport.Passport, error) {
	all, err := s.client.HGetAll(ctx, passportsKey(user)).Result()
	if err != nil {
		return nil, err
	}
	var out []*passport.Passport
	for _, raw := range all {
		var p passport.Passport
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		if p.Status == passport.StatusActive {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreatePassport(ctx context.Context, p *passport.Passport) error {
	return s.writePassport(ctx, p)
}

func (s *Store) UpdatePassport(ctx context.Context, p *passport.Passport) error {
	return s.writePassport(ctx, p)
}

func (s *Store) writePassport(ctx context.Context, p *passport.Passport) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, passportsKey(p.UserID), p.ID, data).Err(); err != nil {
		return err
	}
	member := fmt.Sprintf("%s|%s", p.UserID, p.ID)
	if p.Status == passport.StatusActive {
		return s.client.ZAdd(ctx, activePassportsIndex, redis.Z{
			Score:  float64(p.ExpiresAt.Unix()),
			Member: member,
		}).Err()
	}
	return s.client.ZRem(ctx, activePassportsIndex, member).Err()
}

func (s *Store) CreateStamp(ctx context.Context, user core.UserID, st *passport.Stamp) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, stampsKey(user), data).Err()
}

func (s *Store) SaveAchievement(ctx context.Context, user core.UserID, a passport.Achievement) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, achievementsKey(user), a.ID, data).Err()
}

func (s *Store) GetPassportCollection(ctx context.Context, user core.UserID) (*passport.Collection, error) {
	col := &passport.Collection{UserID: user}

	rawStamps, err := s.client.LRange(ctx, stampsKey(user), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	venues := map[core.VenueID]struct{}{}
	var stamps []passport.Stamp
	for _, raw := range rawStamps {
		var st passport.Stamp
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, err
		}
		stamps = append(stamps, st)
		venues[st.VenueID] = struct{}{}
	}
	col.StampsCollected = len(stamps)
	col.VenuesVisited = len(venues)
	col.CurrentStreakDays = streakDays(stamps)

	all, err := s.client.HGetAll(ctx, passportsKey(user)).Result()
	if err != nil {
		return nil, err
	}
	for _, raw := range all {
		var p passport.Passport
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		if p.Status == passport.StatusCompleted {
			col.PassportsCompleted++
		}
	}

	ids, err := s.client.HKeys(ctx, achievementsKey(user)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	col.AchievementIDs = ids
	return col, nil
}

// streakDays counts consecutive calendar days with at least one stamp,
// ending at the most recent stamp's day.
func streakDays(stamps []passport.Stamp) int {
	if len(stamps) == 0 {
		return 0
	}
	days := map[string]struct{}{}
	var latest time.Time
	for _, st := range stamps {
		day := st.StampedAt.UTC().Truncate(24 * time.Hour)
		days[day.Format("2006-01-02")] = struct{}{}
		if day.After(latest) {
			latest = day
		}
	}
	streak := 0
	for d := latest; ; d = d.AddDate(0, 0, -1) {
		if _, ok := days[d.Format("2006-01-02")]; !ok {
			break
		}
		streak++
	}
	return streak
}

func (s *Store) SaveTriggeredReward(ctx context.Context, r *rewards.Triggered) error {
	if err := s.setJSON(ctx, rewardKey(r.ID), r); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, userRewardsKey(r.UserID), r.ID).Err(); err != nil {
		return err
	}
	return s.reindexReward(ctx, r)
}

func (s *Store) GetTriggeredReward(ctx context.Context, id string) (*rewards.Triggered, error) {
	var r rewards.Triggered
	ok, err := s.getJSON(ctx, rewardKey(id), &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

func (s *Store) UpdateTriggeredReward(ctx context.Context, r *rewards.Triggered) error {
	if err := s.setJSON(ctx, rewardKey(r.ID), r); err != nil {
		return err
	}
	return s.reindexReward(ctx, r)
}

func (s *Store) reindexReward(ctx context.Context, r *rewards.Triggered) error {
	if r.Status == rewards.StatusTriggered {
		return s.client.ZAdd(ctx, activeRewardsIndex, redis.Z{
			Score:  float64(r.ExpiresAt.Unix()),
			Member: r.ID,
		}).Err()
	}
	return s.client.ZRem(ctx, activeRewardsIndex, r.ID).Err()
}

// UserRewards returns all triggered rewards ever minted for a user.
func (s *Store) UserRewards(ctx context.Context, user core.UserID) ([]*rewards.Triggered, error) {
	ids, err := s.client.SMembers(ctx, userRewardsKey(user)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	out := make([]*rewards.Triggered, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetTriggeredReward(ctx, id)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) PromotionDisplayCount(ctx context.Context, user core.UserID, promotionID string) (int, time.Time, error) {
	vals, err := s.client.HGetAll(ctx, displayKey(user, promotionID)).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(vals) == 0 {
		return 0, time.Time{}, nil
	}
	count, _ := strconv.Atoi(vals["count"])
	var last time.Time
	if raw, ok := vals["last"]; ok && raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("corrupt display record: %w", err)
		}
		last = time.Unix(unix, 0).UTC()
	}
	return count, last, nil
}

func (s *Store) RecordPromotionDisplay(ctx context.Context, user core.UserID, promotionID string, at time.Time) error {
	key := displayKey(user, promotionID)
	if err := s.client.HIncrBy(ctx, key, "count", 1).Err(); err != nil {
		return err
	}
	return s.client.HSet(ctx, key, "last", at.Unix()).Err()
}

func (s *Store) ListExpiredRewards(ctx context.Context, before time.Time) ([]*rewards.Triggered, error) {
	ids, err := s.client.ZRangeByScore(ctx, activeRewardsIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	var out []*rewards.Triggered
	for _, id := range ids {
		r, err := s.GetTriggeredReward(ctx, id)
		if err != nil {
			return nil, err
		}
		if r != nil && r.Status == rewards.StatusTriggered {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ListExpiredPassports(ctx context.Context, before time.Time) ([]*passport.Passport, error) {
	members, err := s.client.ZRangeByScore(ctx, activePassportsIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	var out []*passport.Passport
	for _, member := range members {
		user, id, ok := strings.Cut(member, "|")
		if !ok {
			continue
		}
		raw, err := s.client.HGet(ctx, passportsKey(core.UserID(user)), id).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var p passport.Passport
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		if p.Status == passport.StatusActive {
			out = append(out, &p)
		}
	}
	return out, nil
}
