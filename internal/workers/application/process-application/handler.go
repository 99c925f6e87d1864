package processapplication

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"social-support-workers/internal/assessment/pipeline"
	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/common/metrics"
	"social-support-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "process-application"
)

type Decider interface {
	Decide(ctx context.Context, in pipeline.ApplicationInput) (*pipeline.DecisionResult, bool)
}

type Handler struct {
	config  *Config
	decider Decider
	errors  *commonerrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, decider Decider, log logger.Logger) *Handler {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		decider: decider,
		errors:  commonerrors.NewErrorHandler(log),
		logger:  log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parse(job.Variables)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(commonerrors.Normalize(err).Code)).Inc()
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(commonerrors.Normalize(err).Code)).Inc()
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

// parse validates the job variables against the application schema.
func (h *Handler) parse(variables string) (*Input, error) {
	var doc interface{}
	if err := json.Unmarshal([]byte(variables), &doc); err != nil {
		return nil, commonerrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}

	result, err := validation.Validate(validation.ApplicationSchema, doc)
	if err != nil {
		return nil, commonerrors.NewInternalError(err)
	}
	if !result.Valid {
		return nil, commonerrors.NewApplicationValidationFailedError(result.Error())
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, commonerrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if h.decider == nil {
		return nil, commonerrors.NewPipelineFailedError(fmt.Errorf("no decision pipeline configured"))
	}

	res, cached := h.decider.Decide(ctx, *input)
	if res == nil {
		return nil, commonerrors.NewPipelineFailedError(fmt.Errorf("pipeline returned no result"))
	}

	h.logger.Info("application decided", map[string]interface{}{
		"applicantId": input.ApplicantID,
		"eligibility": string(res.Eligibility),
		"cached":      cached,
	})

	return &Output{
		Eligibility:    string(res.Eligibility),
		Recommendation: res.Recommendation,
		FinalDecision:  res.FinalDecision,
		ProcessedData:  res.ProcessedData,
		Cached:         cached,
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) Parse(variables string) (*Input, error) {
	return h.parse(variables)
}
