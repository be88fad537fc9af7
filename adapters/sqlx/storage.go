package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlx "github.com/jmoiron/sqlx"

	// Database drivers are registered here so callers only pick a name.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"geotrigger/core"
	"geotrigger/engine"
	"geotrigger/passport"
	"geotrigger/rewards"
)

// Driver selects the SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration
type Config struct {
	Driver          Driver        `json:"driver" env:"GEOTRIGGER_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"GEOTRIGGER_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"GEOTRIGGER_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"GEOTRIGGER_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"GEOTRIGGER_SQL_CONN_MAX_LIFETIME"`
}

// DefaultConfig returns sensible defaults for the given driver
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		DSN:             "",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.Repository on a relational database. Directory
// records, tiers, passports, and rewards are stored as JSON documents with
// the columns the queries filter on lifted out alongside them.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

var _ engine.Repository = (*Store)(nil)

// New opens a connection pool for the configured driver and verifies it.
func New(config Config) (*Store, error) {
	if config.Driver != DriverPostgres && config.Driver != DriverMySQL {
		return nil, fmt.Errorf("unsupported SQL driver: %s", config.Driver)
	}
	db, err := sqlx.Connect(string(config.Driver), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Driver, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	return &Store{db: db, driver: config.Driver}, nil
}

// NewWithDB wraps an existing database handle (useful for testing)
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (id VARCHAR(64) PRIMARY KEY, doc TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS venues (id VARCHAR(64) PRIMARY KEY, doc TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS user_tiers (user_id VARCHAR(64) PRIMARY KEY, doc TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS points_ledger (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			doc TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS location_events (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			venue_id VARCHAR(64) NOT NULL,
			event_type VARCHAR(16) NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			doc TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS event_dedup (
			user_id VARCHAR(64) NOT NULL,
			venue_id VARCHAR(64) NOT NULL,
			event_type VARCHAR(16) NOT NULL,
			bucket TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, venue_id, event_type))`,
		`CREATE TABLE IF NOT EXISTS passports (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			doc TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS stamps (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			venue_id VARCHAR(64) NOT NULL,
			stamped_at TIMESTAMP NOT NULL,
			doc TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			user_id VARCHAR(64) NOT NULL,
			achievement_id VARCHAR(64) NOT NULL,
			doc TEXT NOT NULL,
			PRIMARY KEY (user_id, achievement_id))`,
		`CREATE TABLE IF NOT EXISTS rewards (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			doc TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS promotion_displays (
			user_id VARCHAR(64) NOT NULL,
			promotion_id VARCHAR(64) NOT NULL,
			display_count INT NOT NULL,
			last_display TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, promotion_id))`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// upsertSuffix appends the dialect's conflict clause to an INSERT.
func (s *Store) upsertSuffix(conflictCols string, updates string) string {
	if s.driver == DriverMySQL {
		return " ON DUPLICATE KEY UPDATE " + updates
	}
	return " ON CONFLICT (" + conflictCols + ") DO UPDATE SET " + updates
}

// excluded names the incoming row's column in an upsert update clause.
func (s *Store) excluded(col string) string {
	if s.driver == DriverMySQL {
		return "VALUES(" + col + ")"
	}
	return "EXCLUDED." + col
}

// PutUser registers a user in the directory.
func (s *Store) PutUser(ctx context.Context, u *core.User) error {
	return s.upsertDoc(ctx, "users", "id", string(u.ID), u)
}

// PutVenue registers a venue in the directory.
func (s *Store) PutVenue(ctx context.Context, v *core.Venue) error {
	return s.upsertDoc(ctx, "venues", "id", string(v.ID), v)
}

func (s *Store) upsertDoc(ctx context.Context, table, keyCol, key string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (%s, doc) VALUES (?, ?)", table, keyCol) +
		s.upsertSuffix(keyCol, "doc = "+s.excluded("doc"))
	_, err = s.db.ExecContext(ctx, s.db.Rebind(q), key, doc)
	return err
}

func (s *Store) getDoc(ctx context.Context, table, keyCol, key string, dst any) (bool, error) {
	var doc []byte
	q := s.db.Rebind(fmt.Sprintf("SELECT doc FROM %s WHERE %s = ?", table, keyCol))
	err := s.db.QueryRowContext(ctx, q, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(doc, dst)
}

func (s *Store) FindUserByID(ctx context.Context, id core.UserID) (*core.User, error) {
	var u core.User
	ok, err := s.getDoc(ctx, "users", "id", string(id), &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindVenueByID(ctx context.Context, id core.VenueID) (*core.Venue, error) {
	var v core.Venue
	ok, err := s.getDoc(ctx, "venues", "id", string(id), &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

func (s *Store) GetUserTier(ctx context.Context, user core.UserID) (*core.UserTier, error) {
	var t core.UserTier
	ok, err := s.getDoc(ctx, "user_tiers", "user_id", string(user), &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

func (s *Store) UpdateUserTier(ctx context.Context, tier *core.UserTier) error {
	return s.upsertDoc(ctx, "user_tiers", "user_id", string(tier.UserID), tier)
}

func (s *Store) CreatePointsTransaction(ctx context.Context, tx *core.PointsTransaction) error {
	doc, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	q := s.db.Rebind(`INSERT INTO points_ledger (id, user_id, created_at, doc) VALUES (?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, q, tx.ID, tx.UserID, tx.CreatedAt.UTC(), doc)
	return err
}

// LedgerEntries returns a user's points transactions in creation order.
func (s *Store) LedgerEntries(ctx context.Context, user core.UserID) ([]core.PointsTransaction, error) {
	q := s.db.Rebind(`SELECT doc FROM points_ledger WHERE user_id = ? ORDER BY created_at, id`)
	var docs [][]byte
	if err := s.db.SelectContext(ctx, &docs, q, user); err != nil {
		return nil, err
	}
	out := make([]core.PointsTransaction, 0, len(docs))
	for _, doc := range docs {
		var tx core.PointsTransaction
		if err := json.Unmarshal(doc, &tx); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) CreateLocationEvent(ctx context.Context, ev *core.LocationEvent) error {
	doc, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	q := s.db.Rebind(`INSERT INTO location_events (id, user_id, venue_id, event_type, occurred_at, doc)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, q, ev.ID, ev.UserID, ev.VenueID, ev.Type, ev.Timestamp.UTC(), doc)
	return err
}

func (s *Store) IsDuplicateLocationEvent(ctx context.Context, user core.UserID, venue core.VenueID, typ core.EventType, bucket time.Time, window time.Duration) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var prev time.Time
	q := tx.Rebind(`SELECT bucket FROM event_dedup WHERE user_id = ? AND venue_id = ? AND event_type = ?`)
	err = tx.QueryRowContext(ctx, q, user, venue, typ).Scan(&prev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first sighting, fall through to record
	case err != nil:
		return false, err
	default:
		delta := bucket.Sub(prev)
		if delta < 0 {
			delta = -delta
		}
		if delta < window {
			return true, nil
		}
	}

	ins := tx.Rebind(`INSERT INTO event_dedup (user_id, venue_id, event_type, bucket) VALUES (?, ?, ?, ?)` +
		s.upsertSuffix("user_id, venue_id, event_type", "bucket = "+s.excluded("bucket")))
	if _, err := tx.ExecContext(ctx, ins, user, venue, typ, bucket.UTC()); err != nil {
		return false, err
	}
	return false, tx.Commit()
}

func (s *Store) GetVenueVisitCount(ctx context.Context, user core.UserID, venue core.VenueID) (int, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM location_events WHERE user_id = ? AND venue_id = ? AND event_type = ?`)
	err := s.db.GetContext(ctx, &n, q, user, venue, core.EventEnter)
	return n, err
}

func (s *Store) CountVenuesVisitedOn(ctx context.Context, user core.UserID, day time.Time) (int, error) {
	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	var n int
	q := s.db.Rebind(`SELECT COUNT(DISTINCT venue_id) FROM location_events
		WHERE user_id = ? AND event_type = ? AND occurred_at >= ? AND occurred_at < ?`)
	err := s.db.GetContext(ctx, &n, q, user, core.EventEnter, start, start.AddDate(0, 0, 1))
	return n, err
}

func (s *Store) GetUserActivePassports(ctx context.Context, user core.UserID) ([]*passport.Passport, error) {
	q := s.db.Rebind(`SELECT doc FROM passports WHERE user_id = ? AND status = ? ORDER BY id`)
	var docs [][]byte
	if err := s.db.SelectContext(ctx, &docs, q, user, passport.StatusActive); err != nil {
		return nil, err
	}
	out := make([]*passport.Passport, 0, len(docs))
	for _, doc := range docs {
		var p passport.Passport
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, nil
}

func (s *Store) CreatePassport(ctx context.Context, p *passport.Passport) error {
	return s.writePassport(ctx, p)
}

func (s *Store) UpdatePassport(ctx context.Context, p *passport.Passport) error {
	return s.writePassport(ctx, p)
}

func (s *Store) writePassport(ctx context.Context, p *passport.Passport) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	q := `INSERT INTO passports (id, user_id, status, expires_at, doc) VALUES (?, ?, ?, ?, ?)` +
		s.upsertSuffix("id", fmt.Sprintf("status = %s, expires_at = %s, doc = %s",
			s.excluded("status"), s.excluded("expires_at"), s.excluded("doc")))
	_, err = s.db.ExecContext(ctx, s.db.Rebind(q), p.ID, p.UserID, p.Status, p.ExpiresAt.UTC(), doc)
	return err
}

func (s *Store) CreateStamp(ctx context.Context, user core.UserID, st *passport.Stamp) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return err
	}
	q := s.db.Rebind(`INSERT INTO stamps (id, user_id, venue_id, stamped_at, doc) VALUES (?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, q, st.ID, user, st.VenueID, st.StampedAt.UTC(), doc)
	return err
}

func (s *Store) SaveAchievement(ctx context.Context, user core.UserID, a passport.Achievement) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return err
	}
	q := `INSERT INTO achievements (user_id, achievement_id, doc) VALUES (?, ?, ?)` +
		s.upsertSuffix("user_id, achievement_id", "doc = "+s.excluded("doc"))
	_, err = s.db.ExecContext(ctx, s.db.Rebind(q), user, a.ID, doc)
	return err
}

func (s *Store) GetPassportCollection(ctx context.Context, user core.UserID) (*passport.Collection, error) {
	col := &passport.Collection{UserID: user}

	var stampedAt []time.Time
	q := s.db.Rebind(`SELECT stamped_at FROM stamps WHERE user_id = ? ORDER BY stamped_at`)
	if err := s.db.SelectContext(ctx, &stampedAt, q, user); err != nil {
		return nil, err
	}
	col.StampsCollected = len(stampedAt)
	col.CurrentStreakDays = streakDays(stampedAt)

	q = s.db.Rebind(`SELECT COUNT(DISTINCT venue_id) FROM stamps WHERE user_id = ?`)
	if err := s.db.GetContext(ctx, &col.VenuesVisited, q, user); err != nil {
		return nil, err
	}

	q = s.db.Rebind(`SELECT COUNT(*) FROM passports WHERE user_id = ? AND status = ?`)
	if err := s.db.GetContext(ctx, &col.PassportsCompleted, q, user, passport.StatusCompleted); err != nil {
		return nil, err
	}

	q = s.db.Rebind(`SELECT achievement_id FROM achievements WHERE user_id = ? ORDER BY achievement_id`)
	if err := s.db.SelectContext(ctx, &col.AchievementIDs, q, user); err != nil {
		return nil, err
	}
	return col, nil
}

// streakDays counts consecutive calendar days with at least one stamp,
// ending at the most recent stamp's day.
func streakDays(stampedAt []time.Time) int {
	if len(stampedAt) == 0 {
		return 0
	}
	days := map[string]struct{}{}
	var latest time.Time
	for _, ts := range stampedAt {
		day := ts.UTC().Truncate(24 * time.Hour)
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
	return s.writeReward(ctx, r)
}

func (s *Store) UpdateTriggeredReward(ctx context.Context, r *rewards.Triggered) error {
	return s.writeReward(ctx, r)
}

func (s *Store) writeReward(ctx context.Context, r *rewards.Triggered) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return err
	}
	q := `INSERT INTO rewards (id, user_id, status, expires_at, doc) VALUES (?, ?, ?, ?, ?)` +
		s.upsertSuffix("id", fmt.Sprintf("status = %s, expires_at = %s, doc = %s",
			s.excluded("status"), s.excluded("expires_at"), s.excluded("doc")))
	_, err = s.db.ExecContext(ctx, s.db.Rebind(q), r.ID, r.UserID, r.Status, r.ExpiresAt.UTC(), doc)
	return err
}

func (s *Store) GetTriggeredReward(ctx context.Context, id string) (*rewards.Triggered, error) {
	var r rewards.Triggered
	ok, err := s.getDoc(ctx, "rewards", "id", id, &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// UserRewards returns all triggered rewards ever minted for a user.
func (s *Store) UserRewards(ctx context.Context, user core.UserID) ([]*rewards.Triggered, error) {
	q := s.db.Rebind(`SELECT doc FROM rewards WHERE user_id = ? ORDER BY id`)
	return s.selectRewards(ctx, q, user)
}

func (s *Store) ListExpiredRewards(ctx context.Context, before time.Time) ([]*rewards.Triggered, error) {
	q := s.db.Rebind(`SELECT doc FROM rewards WHERE status = ? AND expires_at <= ? ORDER BY id`)
	return s.selectRewards(ctx, q, rewards.StatusTriggered, before.UTC())
}

func (s *Store) selectRewards(ctx context.Context, query string, args ...any) ([]*rewards.Triggered, error) {
	var docs [][]byte
	if err := s.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, err
	}
	out := make([]*rewards.Triggered, 0, len(docs))
	for _, doc := range docs {
		var r rewards.Triggered
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, nil
}

func (s *Store) ListExpiredPassports(ctx context.Context, before time.Time) ([]*passport.Passport, error) {
	q := s.db.Rebind(`SELECT doc FROM passports WHERE status = ? AND expires_at <= ? ORDER BY id`)
	var docs [][]byte
	if err := s.db.SelectContext(ctx, &docs, q, passport.StatusActive, before.UTC()); err != nil {
		return nil, err
	}
	out := make([]*passport.Passport, 0, len(docs))
	for _, doc := range docs {
		var p passport.Passport
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, nil
}

func (s *Store) PromotionDisplayCount(ctx context.Context, user core.UserID, promotionID string) (int, time.Time, error) {
	var row struct {
		Count int       `db:"display_count"`
		Last  time.Time `db:"last_display"`
	}
	q := s.db.Rebind(`SELECT display_count, last_display FROM promotion_displays WHERE user_id = ? AND promotion_id = ?`)
	err := s.db.GetContext(ctx, &row, q, user, promotionID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	return row.Count, row.Last, nil
}

func (s *Store) RecordPromotionDisplay(ctx context.Context, user core.UserID, promotionID string, at time.Time) error {
	q := `INSERT INTO promotion_displays (user_id, promotion_id, display_count, last_display) VALUES (?, ?, 1, ?)` +
		s.upsertSuffix("user_id, promotion_id",
			"display_count = promotion_displays.display_count + 1, last_display = "+s.excluded("last_display"))
	_, err := s.db.ExecContext(ctx, s.db.Rebind(q), user, promotionID, at.UTC())
	return err
}
