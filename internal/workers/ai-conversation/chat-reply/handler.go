package chatreply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/service"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "chat-reply"
)

var (
	ErrInvalidChatRequest = errors.New("INVALID_CHAT_REQUEST")
	ErrChatReplyFailed    = errors.New("CHAT_REPLY_FAILED")
)

// Logger is the subset of logging the worker needs.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Responder interface {
	Reply(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error)
}

type Handler struct {
	config    *Config
	responder Responder
	logger    Logger
}

func NewHandler(config *Config, responder Responder, log Logger) *Handler {
	return &Handler{
		config:    config,
		responder: responder,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, fmt.Errorf("%w: parse input: %v", ErrInvalidChatRequest, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidChatRequest)
	}
	if len(input.Messages) == 0 {
		return nil, fmt.Errorf("%w: at least one message is required", ErrInvalidChatRequest)
	}

	resp, err := h.responder.Reply(ctx, service.ChatRequest{
		UserID:    input.UserID,
		SessionID: input.SessionID,
		Messages:  input.Messages,
		Context:   input.Context,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty reply", ErrChatReplyFailed)
	}

	h.logger.Info("chat reply generated", map[string]interface{}{
		"userId":    input.UserID,
		"sessionId": resp.SessionID,
		"turns":     len(input.Messages),
	})

	return &Output{
		ChatResponses: resp.Responses,
		SessionID:     resp.SessionID,
	}, nil
}

// classify maps err to a job error code and the retries left for it.
// LLM failures keep the retry budget of their error code.
func classify(err error) (string, int32) {
	switch {
	case errors.Is(err, ErrInvalidChatRequest):
		return "INVALID_CHAT_REQUEST", 0
	case errors.Is(err, ErrChatReplyFailed):
		return "CHAT_REPLY_FAILED", 1
	}

	var stdErr *commonerrors.StandardError
	if errors.As(err, &stdErr) {
		return string(stdErr.Code), int32(commonerrors.GetRetryCount(stdErr.Code))
	}
	return "UNKNOWN_ERROR", 0
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)

	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	errorCode, retries := classify(err)

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":    job.Key,
		"error":     err.Error(),
		"errorCode": errorCode,
		"retries":   retries,
	})

	_, _ = client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(err.Error()).
		Send(context.Background())
}

// Execute method for direct usage
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
