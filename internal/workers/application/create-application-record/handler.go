package createapplicationrecord

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"social-support-workers/internal/assessment/eligibility"
	"social-support-workers/internal/assessment/pipeline"
	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/repository"
	"social-support-workers/internal/service"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "create-application-record"

	StatusRecorded = "recorded"
)

var (
	ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")
	ErrMissingDecision      = errors.New("MISSING_DECISION")
)

type Handler struct {
	config     *Config
	applicants service.ApplicantStore
	recorder   *service.ApplicationService
	logger     logger.Logger
}

func NewHandler(config *Config, db *sql.DB, index service.DecisionIndex, log logger.Logger) *Handler {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		applicants: repository.NewApplicantRepository(db, log),
		recorder: service.NewApplicationService(service.ApplicationServiceOptions{
			Applications: repository.NewApplicationRepository(db, log),
			Index:        index,
			Logger:       log,
		}),
		logger: log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		errorCode := "UNKNOWN_ERROR"
		retries := int32(0)
		if errors.Is(err, ErrDatabaseInsertFailed) {
			errorCode = "DATABASE_INSERT_FAILED"
			retries = 3
		} else if errors.Is(err, ErrMissingDecision) {
			errorCode = "MISSING_DECISION"
		}
		h.failJob(client, job, errorCode, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ApplicantID == "" || input.Eligibility == "" {
		return nil, fmt.Errorf("%w: applicant_id and eligibility are required", ErrMissingDecision)
	}

	if _, err := h.applicants.EnsureApplicant(ctx, input.ApplicantID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseInsertFailed, commonerrors.Normalize(err).Details)
	}

	bundle := input.ProcessedData
	if bundle == nil {
		bundle = pipeline.NewBundle(h.logger)
	}
	res := &pipeline.DecisionResult{
		Eligibility:    eligibility.Label(input.Eligibility),
		Recommendation: input.Recommendation,
		FinalDecision:  input.FinalDecision,
		ProcessedData:  bundle,
	}

	app, err := h.recorder.Record(ctx, pipeline.ApplicationInput{
		ApplicantID: input.ApplicantID,
		Income:      input.Income,
		FamilySize:  input.FamilySize,
	}, res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseInsertFailed, commonerrors.Normalize(err).Details)
	}

	return &Output{
		ApplicationID:     app.ApplicationID,
		ApplicationStatus: StatusRecorded,
		CreatedAt:         app.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		h.logger.Info("job completed successfully", map[string]interface{}{
			"jobKey": job.Key,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string, retries int32) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
		"retries":      retries,
	})

	if retries > 0 {
		_, err := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(retries).
			ErrorMessage(errorMessage).
			Send(context.Background())
		if err != nil {
			h.logger.Error("failed to fail job", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
