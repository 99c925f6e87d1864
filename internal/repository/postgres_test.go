package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicantRepository_EnsureApplicant(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		wantCreated bool
	}{
		{name: "new applicant", affected: 1, wantCreated: true},
		{name: "existing applicant", affected: 0, wantCreated: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectExec(`INSERT INTO applicants .* ON CONFLICT \(applicant_id\) DO NOTHING`).
				WithArgs("applicant-1", []byte("{}")).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			repo := NewApplicantRepository(db, logger.NewTestLogger(t))
			created, err := repo.EnsureApplicant(context.Background(), "applicant-1")

			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, created)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApplicantRepository_EnsureApplicant_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO applicants`).WillReturnError(errors.New("connection reset"))

	_, err = NewApplicantRepository(db, logger.NewTestLogger(t)).EnsureApplicant(context.Background(), "a")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeDatabaseInsertFailed, commonerrors.Normalize(err).Code)
}

func testApplication() models.Application {
	return models.Application{
		ApplicantID:    "applicant-1",
		Income:         1200,
		FamilySize:     3,
		Eligibility:    "approved",
		Recommendation: "Approved for support.",
		FinalDecision:  "APPROVED: ...",
		RawData:        json.RawMessage(`{"eligibility":"approved"}`),
	}
}

func TestApplicationRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO applications`).
		WithArgs(
			sqlmock.AnyArg(),
			"applicant-1",
			1200.0,
			3,
			"approved",
			"Approved for support.",
			"APPROVED: ...",
			[]byte(`{"eligibility":"approved"}`),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("application_decided", "application", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewApplicationRepository(db, logger.NewTestLogger(t))
	app, err := repo.Create(context.Background(), testApplication())

	require.NoError(t, err)
	assert.Len(t, app.ApplicationID, 36)
	assert.WithinDuration(t, time.Now().UTC(), app.CreatedAt, 5*time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepository_Create_AuditFailureIgnored(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO applications`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(errors.New("audit table missing"))

	in := testApplication()
	in.RawData = nil
	app, err := NewApplicationRepository(db, logger.NewTestLogger(t)).Create(context.Background(), in)

	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(app.RawData))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepository_Create_InsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO applications`).WillReturnError(errors.New("foreign key violation"))

	app, err := NewApplicationRepository(db, logger.NewTestLogger(t)).Create(context.Background(), testApplication())

	assert.Nil(t, app)
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeDatabaseInsertFailed, commonerrors.Normalize(err).Code)
	assert.Contains(t, commonerrors.Normalize(err).Details, "foreign key violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChatHistoryRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewChatHistoryRepository(db, logger.NewTestLogger(t))
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO chat_history`).
		WithArgs("session-1", "applicant-1", models.RoleUser, "hello", ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Append(context.Background(), models.ChatMessage{
		SessionID:   "session-1",
		ApplicantID: "applicant-1",
		Role:        models.RoleUser,
		Message:     "hello",
		Timestamp:   ts,
	}))

	rows := sqlmock.NewRows([]string{"session_id", "applicant_id", "role", "message", "timestamp"}).
		AddRow("session-1", "applicant-1", "user", "hello", ts).
		AddRow("session-1", "applicant-1", "assistant", "hi there", ts.Add(time.Second))
	mock.ExpectQuery(`SELECT session_id, applicant_id, role, message, timestamp FROM chat_history WHERE session_id = \$1`).
		WithArgs("session-1").
		WillReturnRows(rows)

	msgs, err := repo.ListSession(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hi there", msgs[1].Message)

	mock.ExpectQuery(`SELECT session_id`).WillReturnError(errors.New("timeout"))
	_, err = repo.ListSession(context.Background(), "session-2")
	assert.Equal(t, commonerrors.ErrCodeQueryExecutionFailed, commonerrors.Normalize(err).Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}
