package chatreply

import (
	"context"
	"errors"
	"testing"
	"time"

	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Logger Implementation
// ==========================

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{
		t:      t,
		fields: make(map[string]interface{}),
	}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	return &TestLogger{t: l.t, fields: l.mergeFields(fields)}
}

func (l *TestLogger) mergeFields(fields map[string]interface{}) map[string]interface{} {
	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}
	return all
}

// ==========================
// Test Helper Functions
// ==========================

type stubResponder struct {
	got  service.ChatRequest
	resp *service.ChatResponse
	err  error
}

func (s *stubResponder) Reply(_ context.Context, req service.ChatRequest) (*service.ChatResponse, error) {
	s.got = req
	return s.resp, s.err
}

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func createTestInput() *Input {
	return &Input{
		UserID:    "applicant-001",
		SessionID: "sess-1",
		Messages:  []string{"Why was I declined?"},
		Context:   map[string]interface{}{"eligibility": "declined"},
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	responder := &stubResponder{resp: &service.ChatResponse{
		Responses: []string{"Your household income is above the threshold."},
		SessionID: "sess-1",
	}}
	h := NewHandler(createTestConfig(), responder, NewTestLogger(t))

	output, err := h.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.Equal(t, []string{"Your household income is above the threshold."}, output.ChatResponses)
	assert.Equal(t, "sess-1", output.SessionID)
	assert.Equal(t, service.ChatRequest{
		UserID:    "applicant-001",
		SessionID: "sess-1",
		Messages:  []string{"Why was I declined?"},
		Context:   map[string]interface{}{"eligibility": "declined"},
	}, responder.got)
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"missing user", func(in *Input) { in.UserID = " " }},
		{"no messages", func(in *Input) { in.Messages = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responder := &stubResponder{}
			input := createTestInput()
			tt.mutate(input)

			_, err := NewHandler(createTestConfig(), responder, NewTestLogger(t)).Execute(context.Background(), input)

			assert.ErrorIs(t, err, ErrInvalidChatRequest)
			assert.Empty(t, responder.got.UserID)
		})
	}
}

func TestHandler_Execute_ResponderFailures(t *testing.T) {
	t.Run("LLM error passes through", func(t *testing.T) {
		llmErr := commonerrors.NewLLMTimeoutError(context.DeadlineExceeded)
		h := NewHandler(createTestConfig(), &stubResponder{err: llmErr}, NewTestLogger(t))

		_, err := h.Execute(context.Background(), createTestInput())
		assert.Same(t, llmErr, err)
	})

	t.Run("nil reply", func(t *testing.T) {
		h := NewHandler(createTestConfig(), &stubResponder{}, NewTestLogger(t))

		_, err := h.Execute(context.Background(), createTestInput())
		assert.ErrorIs(t, err, ErrChatReplyFailed)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantRetries int32
	}{
		{"invalid request", ErrInvalidChatRequest, "INVALID_CHAT_REQUEST", 0},
		{"empty reply", ErrChatReplyFailed, "CHAT_REPLY_FAILED", 1},
		{"llm timeout", commonerrors.NewLLMTimeoutError(errors.New("deadline")), "LLM_TIMEOUT", 1},
		{"llm unreachable", commonerrors.NewLLMConnectFailedError(errors.New("refused")), "LLM_CONNECT_FAILED", 2},
		{"llm malformed", commonerrors.NewLLMMalformedResponseError(errors.New("bad json")), "LLM_MALFORMED_RESPONSE", 0},
		{"unknown", errors.New("boom"), "UNKNOWN_ERROR", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, retries := classify(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantRetries, retries)
		})
	}
}
