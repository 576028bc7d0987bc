package db

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/onboarding-survey/internal/types"
)

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	db, err := New(context.Background(), mock, zap.NewNop())
	require.NoError(t, err)
	return db, mock
}

func q(sql string) string { return regexp.QuoteMeta(sql) }

var userCols = []string{"id", "name", "email", "phone", "password_hash", "password_set",
	"onboarded", "survey_completed_at", "created_at", "updated_at"}

func TestNew_PingFails(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()

	pingErr := errors.New("database unavailable")
	mock.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mock, nil)
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("create", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("INSERT INTO users (name, email, phone)")).
			WithArgs("Jane", "jane@example.com", "").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))

		got, err := db.CreateUser(ctx, "Jane", "jane@example.com", "")
		require.NoError(t, err)
		assert.Equal(t, id, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("FROM users WHERE id = $1")).WithArgs(id).
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(id, "Jane", "jane@example.com", "", "hash", true, true, &now, now, now))

		u, err := db.GetUser(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.True(t, u.Onboarded)
		assert.Equal(t, now, *u.SurveyCompletedAt)
	})

	t.Run("get missing returns nil", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("FROM users WHERE id = $1")).WithArgs(id).WillReturnError(pgx.ErrNoRows)

		u, err := db.GetUser(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("get by empty email skips the query", func(t *testing.T) {
		db, mock := newMockDB(t)
		u, err := db.GetUserByEmail(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, u)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("email exists", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("SELECT EXISTS")).WithArgs("jane@example.com").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := db.CheckEmailExists(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("update password on missing user", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("UPDATE users SET password_hash")).WithArgs("hash", id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := db.UpdatePassword(ctx, id, "hash")
		assert.ErrorContains(t, err, "user not found")
	})

	t.Run("set onboarded", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("UPDATE users SET onboarded")).WithArgs(true, &now, id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, db.SetOnboarded(ctx, id, true, &now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("read maps the user row", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("FROM users WHERE id = $1")).WithArgs(id).
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(id, "Jane", "jane@example.com", "", "", false, false, (*time.Time)(nil), now, now))

		rec, err := db.Session(id).Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, &types.UserRecord{ID: id}, rec)
	})

	t.Run("read of deleted user is nil", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("FROM users WHERE id = $1")).WithArgs(id).WillReturnError(pgx.ErrNoRows)

		rec, err := db.Session(id).Read(ctx)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("write rejects another user's record", func(t *testing.T) {
		db, mock := newMockDB(t)
		err := db.Session(id).Write(ctx, types.UserRecord{ID: uuid.New(), Onboarded: true})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("write updates onboarding", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("UPDATE users SET onboarded")).WithArgs(true, &now, id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, db.Session(id).Write(ctx, types.UserRecord{ID: id, Onboarded: true, SurveyCompletedAt: &now}))
	})
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	responseID := uuid.New()
	completed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var d types.FormData
	d.FullName.Value = "Jane Doe"
	d.EducationLevel.Value = "PhD"
	d.Industry.Value = "Finance & Banking"
	d.MissionFocus.Value = []string{"Risk Management"}
	d.StrengthAreas.Value = []string{"Problem Solving", "Data Analysis", "Design Thinking"}
	d.LearningPreference.Value = "reading"
	sub := types.Submission{UserID: userID, Data: d, CompletedAt: completed, TotalTimeSpent: time.Minute}

	t.Run("upserts and returns a receipt", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("ON CONFLICT (user_id) DO UPDATE")).
			WithArgs(userID, "Jane Doe", "PhD", "Finance & Banking", []string{"Risk Management"},
				d.StrengthAreas.Value, "reading", pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg(), completed).
			WillReturnRows(pgxmock.NewRows([]string{"id", "completed_at"}).AddRow(responseID, completed))

		receipt, err := db.Submit(ctx, sub)
		require.NoError(t, err)
		assert.Equal(t, responseID, receipt.ResponseID)
		assert.Equal(t, completed, receipt.CompletedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates failures", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("INSERT INTO survey_responses")).WillReturnError(errors.New("conn reset"))

		_, err := db.Submit(ctx, sub)
		assert.ErrorContains(t, err, "failed to save survey response")
	})
}

var responseCols = []string{"id", "user_id", "full_name", "education_level", "industry", "mission_focus",
	"strength_areas", "learning_preference", "portfolio", "experience_summary", "platform_connections",
	"metadata", "completed_at", "created_at", "updated_at"}

func responseRow(rows *pgxmock.Rows, id, userID uuid.UUID, industry string, at time.Time) *pgxmock.Rows {
	return rows.AddRow(id, userID, "Jane Doe", "PhD", industry, []string{"Risk Management"},
		[]string{"Problem Solving"}, "both",
		[]byte(`{"file":null,"url":"https://janedoe.dev"}`), "summary",
		[]byte(`{"github":{"connected":true,"username":"jane"}}`),
		[]byte(`{"total_time_spent":60000,"interactions":[],"started_at":"2026-03-01T09:00:00Z","completed_at":"2026-03-01T10:00:00Z"}`),
		at, at, at)
}

func TestGetSurveyResponse(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	db, mock := newMockDB(t)
	mock.ExpectQuery(q("FROM survey_responses WHERE user_id = $1")).WithArgs(userID).
		WillReturnRows(responseRow(pgxmock.NewRows(responseCols), uuid.New(), userID, "Finance & Banking", at))

	r, err := db.GetSurveyResponse(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "Jane Doe", r.FullName)
	require.NotNil(t, r.Portfolio.URL)
	assert.Equal(t, "https://janedoe.dev", *r.Portfolio.URL)
	assert.True(t, r.PlatformConnections.GitHub.Connected)
	assert.Equal(t, int64(60000), r.Metadata.TotalTimeSpent)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"full_name":"Jane Doe"`)
}

func TestListSurveyResponses(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	since := at.Add(-24 * time.Hour)

	db, mock := newMockDB(t)
	rows := pgxmock.NewRows(responseCols)
	responseRow(rows, uuid.New(), uuid.New(), "Finance & Banking", at)
	responseRow(rows, uuid.New(), uuid.New(), "Finance & Banking", at.Add(-time.Hour))
	mock.ExpectQuery(q("AND industry = $1 AND completed_at >= $2 ORDER BY completed_at DESC LIMIT $3 OFFSET $4")).
		WithArgs("Finance & Banking", since, 100, 0).
		WillReturnRows(rows)

	out, err := db.ListSurveyResponses(ctx, ResponseFilters{Industry: "Finance & Banking", Since: &since})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSurveyStatus(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	completed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	draftAt := completed.Add(-time.Hour)

	db, mock := newMockDB(t)
	mock.ExpectQuery(q("FROM users u WHERE u.id = $1")).WithArgs(id, "survey_draft:x").
		WillReturnRows(pgxmock.NewRows([]string{"onboarded", "survey_completed_at", "response", "draft"}).
			AddRow(true, &completed, &completed, &draftAt))

	st, err := db.GetSurveyStatus(ctx, id, "survey_draft:x")
	require.NoError(t, err)
	assert.True(t, st.Completed)
	assert.True(t, st.Onboarded)
	assert.Equal(t, completed, *st.LastModified)
}

func TestDrafts(t *testing.T) {
	ctx := context.Background()

	t.Run("save upserts", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("INSERT INTO survey_drafts")).WithArgs("k", []byte(`{}`)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		require.NoError(t, db.Drafts().Save(ctx, "k", []byte(`{}`)))
	})

	t.Run("load missing is nil", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("SELECT data FROM survey_drafts")).WithArgs("k").WillReturnError(pgx.ErrNoRows)
		blob, err := db.Drafts().Load(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, blob)
	})

	t.Run("load", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q("SELECT data FROM survey_drafts")).WithArgs("k").
			WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte(`{"currentStep":3}`)))
		blob, err := db.Drafts().Load(ctx, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `{"currentStep":3}`, string(blob))
	})

	t.Run("delete", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("DELETE FROM survey_drafts")).WithArgs("k").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		require.NoError(t, db.Drafts().Delete(ctx, "k"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	t.Run("applies pending embedded migrations", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS schema_migrations")).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectQuery(q("SELECT name FROM schema_migrations")).
			WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("001_users.sql"))
		mock.ExpectBegin()
		mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS survey_responses")).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec(q("INSERT INTO schema_migrations")).WithArgs("002_survey.sql").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		ran, err := db.Migrate(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"002_survey.sql"}, ran)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back a failing migration", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS schema_migrations")).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectQuery(q("SELECT name FROM schema_migrations")).
			WillReturnRows(pgxmock.NewRows([]string{"name"}))
		mock.ExpectBegin()
		mock.ExpectExec(q("CREATE EXTENSION")).WillReturnError(errors.New("permission denied"))
		mock.ExpectRollback()

		ran, err := db.Migrate(ctx, "")
		assert.ErrorContains(t, err, "exec migration 001_users.sql")
		assert.Empty(t, ran)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoadMigrations(t *testing.T) {
	files, err := loadMigrations("")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "001_users.sql", files[0].name)

	dir := t.TempDir()
	files, err = loadMigrations(dir)
	require.NoError(t, err)
	assert.Empty(t, files, "an existing directory overrides the embedded set")

	files, err = loadMigrations(dir + "/missing")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
