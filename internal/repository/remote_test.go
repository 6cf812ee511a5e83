package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/childcare-checkin/internal/apperr"
	"github.com/iliyamo/childcare-checkin/internal/changefeed"
	"github.com/iliyamo/childcare-checkin/internal/model"
)

var fixedNow = time.Date(2025, 10, 12, 19, 0, 0, 0, time.Local)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []changefeed.Notification
}

func (p *recordingPublisher) Publish(_ context.Context, n changefeed.Notification) error {
	p.mu.Lock()
	p.sent = append(p.sent, n)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) tables() []changefeed.Table {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []changefeed.Table
	for _, n := range p.sent {
		out = append(out, n.Table)
	}
	return out
}

func newTestRemote(t *testing.T) (*Remote, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	pub := &recordingPublisher{}
	r := NewRemote(db, WithPublisher(pub), WithClock(func() time.Time { return fixedNow }))
	return r, mock, pub
}

var childCols = []string{"id", "venue_id", "name", "guardian_name", "guardian_relation", "guardian_phone",
	"notes", "check_in_time", "emergency_active", "registration_date"}

func TestRemote_CreateVenue(t *testing.T) {
	r, mock, pub := newTestRemote(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO venues").
		WithArgs(sqlmock.AnyArg(), "V1", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO venue_settings").
		WithArgs(sqlmock.AnyArg(), model.DefaultMaxOccupancy, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	v, err := r.CreateVenue(context.Background(), "V1", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "V1", v.Name)
	assert.Equal(t, []changefeed.Table{changefeed.TableVenues, changefeed.TableSettings}, pub.tables())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemote_CreateVenue_DuplicateNameRollsBack(t *testing.T) {
	r, mock, pub := newTestRemote(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO venues").WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	_, err := r.CreateVenue(context.Background(), "V1", 10)
	assert.ErrorIs(t, err, apperr.ErrRemoteRejected)
	assert.Empty(t, pub.tables())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemote_GetVenueByID_Missing(t *testing.T) {
	r, mock, _ := newTestRemote(t)
	mock.ExpectQuery("FROM venues WHERE id").WithArgs("gone").WillReturnError(sql.ErrNoRows)

	_, err := r.GetVenueByID(context.Background(), "gone")
	assert.ErrorIs(t, err, apperr.ErrVenueNotFound)
}

func TestRemote_ListChildren(t *testing.T) {
	r, mock, _ := newTestRemote(t)
	rows := sqlmock.NewRows(childCols).
		AddRow("c1", "v1", "Ana", "Maria", "mother", "555-0100", "", fixedNow, false, "2025-10-12").
		AddRow("c2", "v1", "Ben", "Joao", "father", "555-0101", "peanuts", fixedNow, true, "2025-10-05")
	mock.ExpectQuery("FROM children WHERE venue_id").WithArgs("v1").WillReturnRows(rows)

	got, err := r.ListChildren(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.RelationFather, got[1].GuardianRelation)
	assert.True(t, got[1].EmergencyActive)
	assert.Equal(t, "2025-10-05", got[1].RegistrationDate)
}

func TestRemote_InsertChild(t *testing.T) {
	c := model.Child{
		VenueID: "v1", Name: "Ana", GuardianName: "Maria", GuardianRelation: model.RelationMother,
		GuardianPhone: "555-0100", CheckInTime: fixedNow, RegistrationDate: "2025-10-12",
	}

	t.Run("stored and published", func(t *testing.T) {
		r, mock, pub := newTestRemote(t)
		mock.ExpectExec("INSERT INTO children").WillReturnResult(sqlmock.NewResult(1, 1))

		got, err := r.InsertChild(context.Background(), c)
		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, []changefeed.Table{changefeed.TableChildren}, pub.tables())
		assert.Equal(t, "v1", pub.sent[0].VenueID)
	})

	t.Run("venue gone", func(t *testing.T) {
		r, mock, pub := newTestRemote(t)
		mock.ExpectExec("INSERT INTO children").
			WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})

		_, err := r.InsertChild(context.Background(), c)
		assert.ErrorIs(t, err, apperr.ErrVenueNotFound)
		assert.Empty(t, pub.tables())
	})

	t.Run("invalid rows never reach the database", func(t *testing.T) {
		r, mock, _ := newTestRemote(t)
		bad := c
		bad.GuardianPhone = ""
		_, err := r.InsertChild(context.Background(), bad)
		assert.ErrorIs(t, err, apperr.ErrValidationFailed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRemote_UpdateChild(t *testing.T) {
	r, mock, pub := newTestRemote(t)
	on := true

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("c1").WillReturnRows(sqlmock.NewRows(childCols).
		AddRow("c1", "v1", "Ana", "Maria", "mother", "555-0100", "", fixedNow, false, "2025-10-12"))
	mock.ExpectExec("UPDATE children").
		WithArgs("Ana", "Maria", "mother", "555-0100", "", true, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := r.UpdateChild(context.Background(), "c1", model.ChildPatch{EmergencyActive: &on})
	require.NoError(t, err)
	assert.True(t, got.EmergencyActive)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, changefeed.EventUpdate, pub.sent[0].EventType)
	assert.NotEmpty(t, pub.sent[0].Old)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemote_DeleteChild_Missing(t *testing.T) {
	r, mock, pub := newTestRemote(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("nope").WillReturnRows(sqlmock.NewRows(childCols))
	mock.ExpectRollback()

	_, err := r.DeleteChild(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, pub.tables())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemote_UpsertServiceRecord(t *testing.T) {
	r, mock, pub := newTestRemote(t)
	cols := []string{"id", "venue_id", "date", "scripture_read", "hymns_sung", "lesson_summary", "child_count", "created_at"}
	earlier := fixedNow.Add(-time.Hour)

	mock.ExpectQuery("FROM service_records WHERE venue_id").WithArgs("v1", "2025-10-12").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("s1", "v1", "2025-10-12", "Ps 23", "", "", 2, earlier))
	mock.ExpectExec("ON DUPLICATE KEY UPDATE").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("FROM service_records WHERE venue_id").WithArgs("v1", "2025-10-12").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("s1", "v1", "2025-10-12", "John 3", "", "", 3, earlier))

	rec, err := r.UpsertServiceRecord(context.Background(), "v1", "2025-10-12",
		model.ServiceContent{ScriptureRead: "John 3"}, 3)
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.ID, "the existing row keeps its id")
	assert.Equal(t, earlier, rec.CreatedAt)
	assert.Equal(t, 3, rec.ChildCount)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, changefeed.EventUpdate, pub.sent[0].EventType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemote_UpsertServiceRecord_BadDate(t *testing.T) {
	r, mock, _ := newTestRemote(t)
	_, err := r.UpsertServiceRecord(context.Background(), "v1", "2025-02-30", model.ServiceContent{}, 0)
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemote_DeleteAll(t *testing.T) {
	r, mock, pub := newTestRemote(t)
	mock.ExpectExec("DELETE FROM children WHERE venue_id").WithArgs("v1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM usage_days WHERE venue_id").WithArgs("v1").WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := r.DeleteAllChildren(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = r.DeleteAllUsageDays(context.Background(), "v1")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []changefeed.Table{changefeed.TableChildren}, pub.tables(), "empty deletes are not published")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemote_EarliestRecordDate(t *testing.T) {
	r, mock, _ := newTestRemote(t)
	mock.ExpectQuery("UNION ALL").WillReturnRows(sqlmock.NewRows([]string{"d"}).AddRow("2025-09-28"))
	mock.ExpectQuery("UNION ALL").WillReturnRows(sqlmock.NewRows([]string{"d"}).AddRow(nil))

	d, ok, err := r.EarliestRecordDate(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2025-09-28", d)

	_, ok, err = r.EarliestRecordDate(context.Background(), "v1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemote_HasVenueData(t *testing.T) {
	r, mock, _ := newTestRemote(t)
	mock.ExpectQuery("EXISTS").WithArgs("v1", "v1", "v1").WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(true))

	has, err := r.HasVenueData(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, apperr.ErrNotFound},
		{"duplicate", &mysql.MySQLError{Number: 1062}, apperr.ErrRemoteRejected},
		{"missing parent", &mysql.MySQLError{Number: 1452}, apperr.ErrVenueNotFound},
		{"still referenced", &mysql.MySQLError{Number: 1451}, apperr.ErrRemoteRejected},
		{"other server error", &mysql.MySQLError{Number: 1064}, apperr.ErrRemoteRejected},
		{"bad connection", driver.ErrBadConn, apperr.ErrNetworkUnavailable},
		{"invalid connection", mysql.ErrInvalidConn, apperr.ErrNetworkUnavailable},
		{"deadline", context.DeadlineExceeded, apperr.ErrNetworkUnavailable},
		{"unknown", errors.New("boom"), apperr.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("op", tt.err), tt.want)
		})
	}

	assert.NoError(t, classify("op", nil))
	already := apperr.Validation("op", "name is required")
	assert.Same(t, already, classify("op", already))
}
