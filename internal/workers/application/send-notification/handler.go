package sendnotification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"social-support-workers/internal/assessment/eligibility"
	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "send-notification"
)

var (
	ErrContactLookupFailed = errors.New("CONTACT_LOOKUP_FAILED")
	ErrMissingApplicant    = errors.New("MISSING_APPLICANT")
)

// SESService and SNSService are the slices of the AWS clients the worker uses.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Handler struct {
	config    *Config
	db        *sql.DB
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
	templates map[string]models.NotificationTemplate
}

func NewHandler(config *Config, db *sql.DB, sesClient SESService, snsClient SNSService, log logger.Logger) *Handler {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Handler{
		config:    config,
		db:        db,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		sesClient: sesClient,
		snsClient: snsClient,
		templates: loadTemplates(),
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
		if errors.Is(err, ErrContactLookupFailed) {
			errorCode = "CONTACT_LOOKUP_FAILED"
			retries = 3
		} else if errors.Is(err, ErrMissingApplicant) {
			errorCode = "MISSING_APPLICANT"
		}
		h.failJob(client, job, errorCode, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ApplicantID == "" {
		return nil, fmt.Errorf("%w: applicant_id is required", ErrMissingApplicant)
	}

	email, phone := input.Email, input.Phone
	if email == "" && phone == "" {
		var err error
		email, phone, err = h.getApplicantContact(ctx, input.ApplicantID)
		if errors.Is(err, sql.ErrNoRows) {
			h.logger.Warn("applicant not found", map[string]interface{}{
				"applicantId": input.ApplicantID,
			})
			return h.output(StatusDisabled, nil), nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContactLookupFailed, err)
		}
	}

	template := h.templateFor(input.Eligibility)
	data := map[string]interface{}{
		"applicantId":   input.ApplicantID,
		"applicationId": input.ApplicationID,
		"finalDecision": input.FinalDecision,
	}
	subject := renderTemplate(template.Subject, data)
	body := renderTemplate(template.Body, data)

	var channels []string
	failed := false

	if h.config.EmailEnabled && h.sesClient != nil && email != "" {
		if err := h.sendEmail(ctx, email, subject, body); err != nil {
			h.logger.Error("email send failed", map[string]interface{}{
				"error": commonerrors.NewNotificationSendFailedError(ChannelEmail, err).Details,
				"email": email,
			})
			failed = true
		} else {
			channels = append(channels, ChannelEmail)
		}
	}

	if h.config.SMSEnabled && h.snsClient != nil && phone != "" {
		if err := h.sendSMS(ctx, phone, body); err != nil {
			h.logger.Error("SMS send failed", map[string]interface{}{
				"error": commonerrors.NewNotificationSendFailedError(ChannelSMS, err).Details,
				"phone": phone,
			})
			failed = true
		} else {
			channels = append(channels, ChannelSMS)
		}
	}

	status := StatusDisabled
	switch {
	case failed:
		status = StatusFailed
	case len(channels) > 0:
		status = StatusSent
	}

	return h.output(status, channels), nil
}

func (h *Handler) output(status string, channels []string) *Output {
	return &Output{
		NotificationID: uuid.New().String(),
		Status:         status,
		Channels:       channels,
		SentAt:         time.Now().UTC().Format(time.RFC3339),
	}
}

func (h *Handler) templateFor(label string) models.NotificationTemplate {
	if eligibility.Label(label) == eligibility.Approved {
		return h.templates[models.NotificationDecisionApproved]
	}
	return h.templates[models.NotificationDecisionDeclined]
}

func (h *Handler) getApplicantContact(ctx context.Context, applicantID string) (string, string, error) {
	var email, phone string
	err := h.db.QueryRowContext(ctx,
		`SELECT COALESCE(demographic->>'email', ''), COALESCE(demographic->>'phone', '') FROM applicants WHERE applicant_id = $1`,
		applicantID,
	).Scan(&email, &phone)
	return email, phone, err
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	return err
}

func (h *Handler) sendSMS(ctx context.Context, to, message string) error {
	_, err := h.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
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

// renderTemplate substitutes {{key}} placeholders and drops any left unresolved.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}

func loadTemplates() map[string]models.NotificationTemplate {
	return map[string]models.NotificationTemplate{
		models.NotificationDecisionApproved: {
			Type:    models.NotificationDecisionApproved,
			Subject: "Your social support application was approved",
			Body:    "Application {{applicationId}}: {{finalDecision}}",
		},
		models.NotificationDecisionDeclined: {
			Type:    models.NotificationDecisionDeclined,
			Subject: "Update on your social support application",
			Body:    "Application {{applicationId}}: {{finalDecision}}",
		},
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
