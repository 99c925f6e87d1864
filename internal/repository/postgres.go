package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/models"

	"github.com/google/uuid"
)

type ApplicantRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewApplicantRepository(db *sql.DB, log logger.Logger) *ApplicantRepository {
	return &ApplicantRepository{db: db, logger: log}
}

// EnsureApplicant creates the applicant when it does not exist yet. It
// reports whether a row was inserted.
func (r *ApplicantRepository) EnsureApplicant(ctx context.Context, applicantID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO applicants (applicant_id, demographic)
		VALUES ($1, $2)
		ON CONFLICT (applicant_id) DO NOTHING`,
		applicantID, []byte("{}"),
	)
	if err != nil {
		return false, commonerrors.NewDatabaseInsertFailedError(fmt.Errorf("ensure applicant %s: %w", applicantID, err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, nil
	}
	if n > 0 {
		r.logger.Info("applicant created", map[string]interface{}{"applicantId": applicantID})
	}
	return n > 0, nil
}

type ApplicationRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewApplicationRepository(db *sql.DB, log logger.Logger) *ApplicationRepository {
	return &ApplicationRepository{db: db, logger: log}
}

// Create stores app under a fresh id and returns the stored record. The
// audit row is best effort.
func (r *ApplicationRepository) Create(ctx context.Context, app models.Application) (*models.Application, error) {
	app.ApplicationID = uuid.New().String()
	app.CreatedAt = time.Now().UTC()
	if len(app.RawData) == 0 {
		app.RawData = json.RawMessage("{}")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO applications (
			application_id, applicant_id, income, family_size,
			eligibility, recommendation, final_decision, raw_data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		app.ApplicationID,
		app.ApplicantID,
		app.Income,
		app.FamilySize,
		app.Eligibility,
		app.Recommendation,
		app.FinalDecision,
		[]byte(app.RawData),
		app.CreatedAt,
	)
	if err != nil {
		return nil, commonerrors.NewDatabaseInsertFailedError(fmt.Errorf("insert application: %w", err))
	}

	details, err := json.Marshal(map[string]interface{}{
		"applicantId": app.ApplicantID,
		"eligibility": app.Eligibility,
	})
	if err != nil {
		details = []byte("{}")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		"application_decided",
		"application",
		app.ApplicationID,
		details,
		app.CreatedAt,
	)
	if err != nil {
		r.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":         err.Error(),
			"applicationId": app.ApplicationID,
		})
	}

	r.logger.Info("application record created", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"applicantId":   app.ApplicantID,
		"eligibility":   app.Eligibility,
	})
	return &app, nil
}

type ChatHistoryRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewChatHistoryRepository(db *sql.DB, log logger.Logger) *ChatHistoryRepository {
	return &ChatHistoryRepository{db: db, logger: log}
}

func (r *ChatHistoryRepository) Append(ctx context.Context, msg models.ChatMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_history (session_id, applicant_id, role, message, timestamp)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.SessionID, msg.ApplicantID, msg.Role, msg.Message, msg.Timestamp,
	)
	if err != nil {
		return commonerrors.NewDatabaseInsertFailedError(fmt.Errorf("append chat message: %w", err))
	}
	return nil
}

// ListSession returns a session's messages oldest first.
func (r *ChatHistoryRepository) ListSession(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, applicant_id, role, message, timestamp
		FROM chat_history
		WHERE session_id = $1
		ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, commonerrors.NewQueryExecutionFailedError("chat_history", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.SessionID, &m.ApplicantID, &m.Role, &m.Message, &m.Timestamp); err != nil {
			return nil, commonerrors.NewQueryExecutionFailedError("chat_history", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, commonerrors.NewQueryExecutionFailedError("chat_history", err)
	}
	return out, nil
}
