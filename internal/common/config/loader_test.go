package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
app:
  name: social-support-workers
  version: 1.2.0
database:
  postgres:
    host: localhost
    database: social_support
    user: app
  redis:
    address: localhost:6379
policy:
  eligibility:
    income_threshold: 2500
    family_size_threshold: abc
workers:
  process-application:
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, "http://llm:11434", cfg.LLM.BaseURL)
	assert.Equal(t, 4, cfg.Extraction.MaxParallel)
	assert.Equal(t, []string{"eng"}, cfg.Extraction.OCR.Languages)
	assert.Equal(t, "social-support-decisions", cfg.Search.Index)

	wc := cfg.Workers["process-application"]
	assert.True(t, wc.Enabled)
	assert.Equal(t, 5, wc.MaxJobsActive)
	assert.Equal(t, 30000, wc.Timeout)
}

func TestLoadFromFile_RawPolicyValuesSurvive(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	// Malformed thresholds are kept verbatim; the policies substitute defaults.
	assert.Equal(t, "2500", cfg.Policy.Eligibility.IncomeThreshold)
	assert.Equal(t, "abc", cfg.Policy.Eligibility.FamilySizeThreshold)
}

func TestLoadFromFile_LegacyEnvironment(t *testing.T) {
	t.Setenv("LOW_INCOME_THRESHOLD", "750")
	t.Setenv("OLLAMA_MODEL", "llama3")
	t.Setenv("CHATBOT_READ_TIMEOUT", "45")
	t.Setenv("POSTGRES_URL", "postgres://app@db/social_support")

	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, "750", cfg.Policy.Recommendation.LowIncomeThreshold)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, "45", cfg.LLM.ReadTimeout)
	assert.Equal(t, "postgres://app@db/social_support", cfg.Database.Postgres.GetDSN())
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing postgres",
			body:    "app:\n  name: x\n",
			wantErr: "database.postgres.host",
		},
		{
			name: "camunda enabled without broker",
			body: `
camunda:
  enabled: true
database:
  postgres:
    url: postgres://app@db/x
`,
			wantErr: "camunda.broker_address",
		},
		{
			name: "search without elasticsearch",
			body: `
search:
  enabled: true
database:
  postgres:
    url: postgres://app@db/x
`,
			wantErr: "elasticsearch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.GetDSN())
}

func TestParseSeconds(t *testing.T) {
	def := 3 * time.Second
	assert.Equal(t, def, ParseSeconds("", def))
	assert.Equal(t, def, ParseSeconds("soon", def))
	assert.Equal(t, def, ParseSeconds("-1", def))
	assert.Equal(t, def, ParseSeconds("NaN", def))
	assert.Equal(t, 30*time.Second, ParseSeconds("30", def))
	assert.Equal(t, 2500*time.Millisecond, ParseSeconds(" 2.5 ", def))
}

func TestGetWorkerConfig(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"chat-reply": {Enabled: false}}}

	assert.False(t, IsWorkerEnabled(cfg, "chat-reply"))
	assert.True(t, IsWorkerEnabled(cfg, "unknown"))
	assert.Equal(t, 5, GetWorkerConfig(cfg, "unknown").MaxJobsActive)
	assert.Equal(t, 2*time.Second, GetDuration(2000))
}
