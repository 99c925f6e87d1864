package validateapplication

import (
	"context"
	"testing"

	"social-support-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{}
}

func createValidApplication() map[string]interface{} {
	return map[string]interface{}{
		"applicant_id": "applicant-001",
		"income":       1800.0, // float64 to match JSON unmarshaling
		"family_size":  4.0,
		"documents":    []interface{}{"https://docs.example/resume.pdf", "data:text/csv;base64,QQ=="},
		"email":        " applicant@example.com ",
		"phone":        "+1 (555) 000-1111",
	}
}

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

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	h := NewHandler(createTestConfig(), newTestLogger(t))

	output, err := h.Execute(context.Background(), createValidApplication())

	require.NoError(t, err)
	assert.True(t, output.IsValid)
	assert.Empty(t, output.ValidationErrors)
	assert.Empty(t, output.Warnings)
	assert.Equal(t, "applicant-001", output.ValidatedData["applicant_id"])
	assert.Equal(t, 1800.0, output.ValidatedData["income"])
	assert.Equal(t, "applicant@example.com", output.ValidatedData["email"])
	assert.Equal(t, "+15550001111", output.ValidatedData["phone"])
	assert.Equal(t, []string{"https://docs.example/resume.pdf", "data:text/csv;base64,QQ=="}, output.ValidatedData["documents"])
}

func TestHandler_Execute_MinimalApplication(t *testing.T) {
	h := NewHandler(createTestConfig(), newTestLogger(t))

	output, err := h.Execute(context.Background(), map[string]interface{}{
		"applicant_id": "a",
		"income":       0.0,
		"family_size":  1.0,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{}, output.ValidatedData["documents"])
	assert.NotContains(t, output.ValidatedData, "email")
	assert.NotContains(t, output.ValidatedData, "phone")
}

func TestHandler_Execute_ValidationFailed(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(map[string]interface{})
		wantField string
	}{
		{"missing applicant", func(m map[string]interface{}) { delete(m, "applicant_id") }, "applicant_id"},
		{"fractional family", func(m map[string]interface{}) { m["family_size"] = 2.5 }, "family_size"},
		{"non-string document", func(m map[string]interface{}) { m["documents"] = []interface{}{42.0} }, "documents.0"},
		{"bad email", func(m map[string]interface{}) { m["email"] = "not-an-email" }, "email"},
		{"short phone", func(m map[string]interface{}) { m["phone"] = "123" }, "phone"},
		{"phone wrong type", func(m map[string]interface{}) { m["phone"] = 5550001111.0 }, "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := createValidApplication()
			tt.mutate(input)

			output, err := NewHandler(createTestConfig(), newTestLogger(t)).Execute(context.Background(), input)

			assert.Nil(t, output)
			assert.ErrorIs(t, err, ErrApplicationValidationFailed)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestHandler_Execute_OutOfRangeValuesWarn(t *testing.T) {
	input := createValidApplication()
	input["income"] = -5.0
	input["family_size"] = 0.0

	output, err := NewHandler(createTestConfig(), newTestLogger(t)).Execute(context.Background(), input)

	require.NoError(t, err)
	assert.True(t, output.IsValid)
	assert.Equal(t, -5.0, output.ValidatedData["income"])
	assert.Equal(t, []string{"income is negative", "family_size is below 1"}, output.Warnings)
}

func TestHandler_Execute_BlankDocumentWarning(t *testing.T) {
	input := createValidApplication()
	input["documents"] = []interface{}{"ok", "  "}

	output, err := NewHandler(createTestConfig(), newTestLogger(t)).Execute(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, []string{"documents.1 is blank"}, output.Warnings)
	assert.Len(t, output.ValidatedData["documents"], 2)
}

func TestHandler_ValidateContact_EmptyValuesIgnored(t *testing.T) {
	h := NewHandler(createTestConfig(), newTestLogger(t))

	contact, errs := h.validateContact(map[string]interface{}{"email": "", "phone": "  "})

	assert.Empty(t, contact)
	assert.Empty(t, errs)
}

func BenchmarkHandler_Execute(b *testing.B) {
	h := &Handler{config: createTestConfig(), logger: logger.NewNoOpLogger()}
	input := createValidApplication()
	for i := 0; i < b.N; i++ {
		_, _ = h.Execute(context.Background(), input)
	}
}
