package createapplicationrecord

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"social-support-workers/internal/assessment/eligibility"
	"social-support-workers/internal/assessment/pipeline"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) {
	tl.t.Logf("DEBUG: %s %v", msg, fields)
}

func (tl *testLogger) Info(msg string, fields map[string]interface{}) {
	tl.t.Logf("INFO: %s %v", msg, fields)
}

func (tl *testLogger) Warn(msg string, fields map[string]interface{}) {
	tl.t.Logf("WARN: %s %v", msg, fields)
}

func (tl *testLogger) Error(msg string, fields map[string]interface{}) {
	tl.t.Logf("ERROR: %s %v", msg, fields)
}

func (tl *testLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return tl
}

func (tl *testLogger) WithError(err error) logger.Logger {
	return tl.WithFields(map[string]interface{}{"error": err})
}

func (tl *testLogger) With(fields map[string]interface{}) logger.Logger {
	return tl
}

func newTestLogger(t *testing.T) logger.Logger {
	return &testLogger{t: t}
}

type recordingIndex struct {
	apps []*models.Application
}

func (r *recordingIndex) Index(_ context.Context, app *models.Application) error {
	r.apps = append(r.apps, app)
	return nil
}

func createTestInput() *Input {
	bundle := pipeline.NewBundle(nil)
	bundle.SetEligibility(eligibility.Approved)
	return &Input{
		ApplicantID:    "applicant-001",
		Income:         1200,
		FamilySize:     4,
		Eligibility:    "approved",
		Recommendation: "Approved for support.",
		FinalDecision:  "APPROVED: Your application meets our criteria. Approved for support.",
		ProcessedData:  bundle,
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO applicants`).
		WithArgs("applicant-001", []byte("{}")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO applications`).
		WithArgs(
			sqlmock.AnyArg(), // application ID (UUID)
			"applicant-001",
			1200.0,
			4,
			"approved",
			"Approved for support.",
			"APPROVED: Your application meets our criteria. Approved for support.",
			[]byte(`{"eligibility":"approved"}`),
			sqlmock.AnyArg(), // created_at
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	idx := &recordingIndex{}
	handler := NewHandler(&Config{}, db, idx, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.NotEmpty(t, output.ApplicationID)
	assert.Equal(t, StatusRecorded, output.ApplicationStatus)
	_, err = time.Parse(time.RFC3339, output.CreatedAt)
	assert.NoError(t, err)

	require.Len(t, idx.apps, 1)
	assert.Equal(t, output.ApplicationID, idx.apps[0].ApplicationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_MissingDecision(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(&Config{}, db, &recordingIndex{}, newTestLogger(t))

	input := createTestInput()
	input.Eligibility = ""
	output, err := handler.Execute(context.Background(), input)

	assert.Nil(t, output)
	assert.True(t, errors.Is(err, ErrMissingDecision))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_InsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO applicants`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO applications`).WillReturnError(errors.New("database connection failed"))

	idx := &recordingIndex{}
	handler := NewHandler(&Config{}, db, idx, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	assert.Nil(t, output)
	assert.True(t, errors.Is(err, ErrDatabaseInsertFailed))
	assert.Contains(t, err.Error(), "database connection failed")
	assert.Empty(t, idx.apps)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_ApplicantError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO applicants`).WillReturnError(errors.New("too many connections"))

	output, err := NewHandler(&Config{}, db, nil, newTestLogger(t)).Execute(context.Background(), createTestInput())

	assert.Nil(t, output)
	assert.True(t, errors.Is(err, ErrDatabaseInsertFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInput_DecodesJobVariables(t *testing.T) {
	vars := `{
		"applicant_id": "applicant-001",
		"income": 900,
		"family_size": 2,
		"documents": ["x"],
		"eligibility": "approved",
		"recommendation": "r",
		"finalDecision": "APPROVED: r",
		"processedData": {"eligibility": "approved", "resume_data": {"employment_history": [], "employment_count": 0}}
	}`

	var input Input
	require.NoError(t, json.Unmarshal([]byte(vars), &input))
	assert.Equal(t, 2, input.FamilySize)
	require.NotNil(t, input.ProcessedData)
	assert.Equal(t, eligibility.Approved, input.ProcessedData.Eligibility())
	assert.True(t, input.ProcessedData.Has(pipeline.KeyResumeData))
}
