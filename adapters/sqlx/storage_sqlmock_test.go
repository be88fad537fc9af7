package sqlx_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	storage "geotrigger/adapters/sqlx"
	"geotrigger/core"
	"geotrigger/passport"
	"geotrigger/rewards"
)

func newMockStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	xdb := storage.NewWithDB(libsqlx.NewDb(db, "postgres"), storage.DriverPostgres)
	cleanup := func() {
		_ = db.Close()
	}
	return xdb, mock, cleanup
}

var noon = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

func TestSQLMock_FindUserByID(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	doc, _ := json.Marshal(core.User{ID: "u1", DisplayName: "Ana"})
	mock.ExpectQuery(`SELECT doc FROM users`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))

	u, err := store.FindUserByID(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "Ana", u.DisplayName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_FindUserByID_Missing(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT doc FROM users`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}))

	u, err := store.FindUserByID(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, u)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Dedup_FirstSighting(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT bucket FROM event_dedup`).
		WithArgs(core.UserID("u1"), core.VenueID("v1"), core.EventEnter).
		WillReturnRows(sqlmock.NewRows([]string{"bucket"}))
	mock.ExpectExec(`INSERT INTO event_dedup`).
		WithArgs(core.UserID("u1"), core.VenueID("v1"), core.EventEnter, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	dup, err := store.IsDuplicateLocationEvent(context.Background(), "u1", "v1", core.EventEnter, noon, 5*time.Minute)
	require.NoError(t, err)
	require.False(t, dup)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Dedup_InsideWindow(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT bucket FROM event_dedup`).
		WithArgs(core.UserID("u1"), core.VenueID("v1"), core.EventEnter).
		WillReturnRows(sqlmock.NewRows([]string{"bucket"}).AddRow(noon))
	mock.ExpectRollback()

	dup, err := store.IsDuplicateLocationEvent(context.Background(), "u1", "v1", core.EventEnter,
		noon.Add(2*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	require.True(t, dup)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_CreateLocationEvent(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO location_events`).
		WithArgs("e1", core.UserID("u1"), core.VenueID("v1"), core.EventEnter, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateLocationEvent(context.Background(), &core.LocationEvent{
		ID: "e1", UserID: "u1", VenueID: "v1", Type: core.EventEnter, Timestamp: noon,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetVenueVisitCount(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM location_events`).
		WithArgs(core.UserID("u1"), core.VenueID("v1"), core.EventEnter).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.GetVenueVisitCount(context.Background(), "u1", "v1")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_UpdateTriggeredReward_Upsert(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO rewards .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("r1", core.UserID("u1"), rewards.StatusRedeemed, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.UpdateTriggeredReward(context.Background(), &rewards.Triggered{
		ID: "r1", UserID: "u1", Status: rewards.StatusRedeemed, ExpiresAt: noon.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_ListExpiredPassports(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	doc, _ := json.Marshal(passport.Passport{ID: "p1", UserID: "u1", Status: passport.StatusActive})
	mock.ExpectQuery(`SELECT doc FROM passports WHERE status`).
		WithArgs(passport.StatusActive, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))

	expired, err := store.ListExpiredPassports(context.Background(), noon)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "p1", expired[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_RecordPromotionDisplay_Upsert(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO promotion_displays .* ON CONFLICT \(user_id, promotion_id\) DO UPDATE`).
		WithArgs(core.UserID("u1"), "welcome", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.RecordPromotionDisplay(context.Background(), "u1", "welcome", noon))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_New_UnsupportedDriver(t *testing.T) {
	_, err := storage.New(storage.Config{Driver: "sqlite"})
	require.Error(t, err)
}
