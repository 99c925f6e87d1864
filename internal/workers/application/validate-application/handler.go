package validateapplication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "validate-application"
)

var (
	ErrApplicationValidationFailed = errors.New("APPLICATION_VALIDATION_FAILED")
)

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input map[string]interface{}
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, input)
	if err != nil {
		h.failJob(client, job, "APPLICATION_VALIDATION_FAILED", err.Error())
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
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) execute(_ context.Context, input map[string]interface{}) (*Output, error) {
	var validationErrors []ValidationError

	result, err := validation.Validate(validation.ApplicationSchema, input)
	if err != nil {
		return nil, err
	}
	for _, e := range result.Errors {
		validationErrors = append(validationErrors, ValidationError{Field: e.Field, Code: e.Code, Message: e.Message})
	}

	validated := map[string]interface{}{}
	for _, key := range []string{"applicant_id", "income", "family_size"} {
		if v, ok := input[key]; ok {
			validated[key] = v
		}
	}

	warnings := rangeWarnings(input)
	documents, docWarnings := h.validateDocuments(input["documents"])
	warnings = append(warnings, docWarnings...)
	validated["documents"] = documents

	contact, contactErrors := h.validateContact(input)
	for k, v := range contact {
		validated[k] = v
	}
	validationErrors = append(validationErrors, contactErrors...)

	isValid := len(validationErrors) == 0
	h.logger.Info("validation completed", map[string]interface{}{
		"isValid":    isValid,
		"errorCount": len(validationErrors),
		"warnings":   len(warnings),
	})

	if !isValid {
		fields := make([]string, len(validationErrors))
		for i, e := range validationErrors {
			fields[i] = e.Field
		}
		return nil, fmt.Errorf("%w: %d validation errors (%s)", ErrApplicationValidationFailed, len(validationErrors), strings.Join(fields, ", "))
	}

	return &Output{
		IsValid:          true,
		ValidatedData:    validated,
		ValidationErrors: []ValidationError{},
		Warnings:         warnings,
	}, nil
}

// rangeWarnings flags values that are scored anyway but look wrong.
func rangeWarnings(input map[string]interface{}) []string {
	var warnings []string
	if v, ok := input["income"].(float64); ok && v < 0 {
		warnings = append(warnings, "income is negative")
	}
	if v, ok := input["family_size"].(float64); ok && v < 1 {
		warnings = append(warnings, "family_size is below 1")
	}
	return warnings
}

// validateDocuments keeps references in order. Blank entries stay in place
// so document indices line up with the submission, but are reported.
func (h *Handler) validateDocuments(raw interface{}) ([]string, []string) {
	items, _ := raw.([]interface{})
	docs := make([]string, 0, len(items))
	var warnings []string
	for i, item := range items {
		s, _ := item.(string)
		if strings.TrimSpace(s) == "" {
			warnings = append(warnings, fmt.Sprintf("documents.%d is blank", i))
		}
		docs = append(docs, s)
	}
	return docs, warnings
}

// validateContact checks the optional email and phone used for decision
// notices. Phone numbers are normalized to digits with an optional +.
func (h *Handler) validateContact(input map[string]interface{}) (map[string]interface{}, []ValidationError) {
	validated := make(map[string]interface{})
	errs := []ValidationError{}

	if emailRaw, ok := input["email"]; ok {
		emailStr, isString := emailRaw.(string)
		emailStr = strings.TrimSpace(emailStr)
		switch {
		case !isString:
			errs = append(errs, ValidationError{Field: "email", Code: "INVALID_TYPE", Message: "Email must be a string"})
		case emailStr == "":
		case emailRegex.MatchString(emailStr):
			validated["email"] = emailStr
		default:
			errs = append(errs, ValidationError{Field: "email", Code: "INVALID_FORMAT", Message: "Invalid email format"})
		}
	}

	if phoneRaw, ok := input["phone"]; ok {
		phoneStr, isString := phoneRaw.(string)
		phoneStr = phoneStripRegex.ReplaceAllString(phoneStr, "")
		switch {
		case !isString:
			errs = append(errs, ValidationError{Field: "phone", Code: "INVALID_TYPE", Message: "Phone must be a string"})
		case phoneStr == "":
		case phoneRegex.MatchString(phoneStr):
			validated["phone"] = phoneStr
		default:
			errs = append(errs, ValidationError{Field: "phone", Code: "INVALID_FORMAT", Message: "Phone must be 7-15 digits"})
		}
	}

	return validated, errs
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

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

func (h *Handler) Execute(ctx context.Context, input map[string]interface{}) (*Output, error) {
	return h.execute(ctx, input)
}
