package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeApplicationValidationFailed ErrorCode = "APPLICATION_VALIDATION_FAILED"
	ErrCodeInvalidInput                ErrorCode = "INVALID_INPUT"

	ErrCodeExtractionFailed     ErrorCode = "EXTRACTION_FAILED"
	ErrCodeDocumentFetchFailed  ErrorCode = "DOCUMENT_FETCH_FAILED"
	ErrCodeClassifierLoadFailed ErrorCode = "CLASSIFIER_LOAD_FAILED"
	ErrCodePipelineFailed       ErrorCode = "PIPELINE_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"

	ErrCodeCacheUnavailable  ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeSearchIndexFailed ErrorCode = "SEARCH_INDEX_FAILED"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeLLMConnectFailed     ErrorCode = "LLM_CONNECT_FAILED"
	ErrCodeLLMTimeout           ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMHostError         ErrorCode = "LLM_HOST_ERROR"
	ErrCodeLLMMalformedResponse ErrorCode = "LLM_MALFORMED_RESPONSE"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewApplicationValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationValidationFailed,
		Message:   "Application data validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid job input",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewDocumentFetchFailedError(ref string, err error) *StandardError {
	e := newError(ErrCodeDocumentFetchFailed, "Document could not be fetched", err, true)
	e.Metadata = map[string]interface{}{"reference": ref}
	return e
}

func NewExtractionFailedError(err error) *StandardError {
	return newError(ErrCodeExtractionFailed, "Document extraction failed", err, false)
}

func NewClassifierLoadFailedError(path string, err error) *StandardError {
	e := newError(ErrCodeClassifierLoadFailed, "Eligibility classifier could not be loaded", err, false)
	e.Metadata = map[string]interface{}{"path": path}
	return e
}

func NewPipelineFailedError(err error) *StandardError {
	return newError(ErrCodePipelineFailed, "Decision pipeline failed", err, true)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err, true)
}

func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert operation failed", err, true)
}

func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	e := newError(ErrCodeQueryExecutionFailed, "Database query execution error", err, true)
	e.Details = fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error())
	return e
}

func NewCacheUnavailableError(err error) *StandardError {
	return newError(ErrCodeCacheUnavailable, "Decision cache unavailable", err, false)
}

func NewSearchIndexFailedError(index string, err error) *StandardError {
	e := newError(ErrCodeSearchIndexFailed, "Search index write failed", err, true)
	e.Metadata = map[string]interface{}{"index": index}
	return e
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	e := newError(ErrCodeNotificationSendFailed, "Notification delivery failed", err, true)
	e.Details = fmt.Sprintf("channel: %s, error: %s", channel, err.Error())
	return e
}

func NewLLMConnectFailedError(err error) *StandardError {
	return newError(ErrCodeLLMConnectFailed, "Failed to connect to LLM host", err, true)
}

func NewLLMTimeoutError(err error) *StandardError {
	return newError(ErrCodeLLMTimeout, "LLM host read timeout", err, true)
}

func NewLLMHostError(status int, err error) *StandardError {
	e := newError(ErrCodeLLMHostError, fmt.Sprintf("LLM host error: %d", status), err, status >= 500)
	e.Metadata = map[string]interface{}{"status": status}
	return e
}

func NewLLMMalformedResponseError(err error) *StandardError {
	return newError(ErrCodeLLMMalformedResponse, "Unexpected LLM response format", err, false)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeApplicationValidationFailed: "APPLICATION_VALIDATION_FAILED",
	ErrCodeInvalidInput:                "INVALID_INPUT",
	ErrCodeExtractionFailed:            "EXTRACTION_FAILED",
	ErrCodeDocumentFetchFailed:         "DOCUMENT_FETCH_FAILED",
	ErrCodeClassifierLoadFailed:        "CLASSIFIER_LOAD_FAILED",
	ErrCodePipelineFailed:              "PIPELINE_FAILED",
	ErrCodeDatabaseConnectionFailed:    "DATABASE_CONNECTION_FAILED",
	ErrCodeDatabaseInsertFailed:        "DATABASE_INSERT_FAILED",
	ErrCodeQueryExecutionFailed:        "QUERY_EXECUTION_FAILED",
	ErrCodeSearchIndexFailed:           "SEARCH_INDEX_FAILED",
	ErrCodeNotificationSendFailed:      "NOTIFICATION_SEND_FAILED",
	ErrCodeLLMConnectFailed:            "LLM_CONNECT_FAILED",
	ErrCodeLLMTimeout:                  "LLM_TIMEOUT",
	ErrCodeLLMHostError:                "LLM_HOST_ERROR",
	ErrCodeLLMMalformedResponse:        "LLM_MALFORMED_RESPONSE",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeSearchIndexFailed,
		ErrCodeNotificationSendFailed,
		ErrCodePipelineFailed:
		return 3

	case ErrCodeLLMConnectFailed,
		ErrCodeDocumentFetchFailed,
		ErrCodeLLMHostError:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// HTTPStatus maps a code to the status the API answers with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeApplicationValidationFailed, ErrCodeInvalidInput:
		return http.StatusUnprocessableEntity
	case ErrCodeLLMTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeLLMConnectFailed, ErrCodeLLMHostError, ErrCodeLLMMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "CACHE"):
		return "STORAGE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "LLM"):
		return "AI"
	case strings.Contains(codeStr, "EXTRACTION") || strings.Contains(codeStr, "DOCUMENT") ||
		strings.Contains(codeStr, "CLASSIFIER") || strings.Contains(codeStr, "PIPELINE"):
		return "PIPELINE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
