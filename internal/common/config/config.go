package config

import "fmt"

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	LLM           LLMConfig               `mapstructure:"llm"`
	Policy        PolicyConfig            `mapstructure:"policy"`
	Extraction    ExtractionConfig        `mapstructure:"extraction"`
	Cache         CacheConfig             `mapstructure:"cache"`
	Search        SearchConfig            `mapstructure:"search"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Registry    string `mapstructure:"registry"` // activity registry path
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	URL            string `mapstructure:"url"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN prefers a full connection URL (POSTGRES_URL) over the discrete fields.
func (p PostgresConfig) GetDSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LLMConfig describes the Ollama-compatible chat host. Timeouts are kept as raw
// seconds strings so a malformed value falls back to the default instead of
// failing the whole load.
type LLMConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	ConnectTimeout string  `mapstructure:"connect_timeout"` // seconds
	ReadTimeout    string  `mapstructure:"read_timeout"`    // seconds
	RateLimit      float64 `mapstructure:"rate_limit"`      // requests per second
	RateBurst      int     `mapstructure:"rate_burst"`
	SystemPrompt   string  `mapstructure:"system_prompt"`
}

// PolicyConfig carries the decision thresholds as raw strings; the policy
// packages parse them with per-field defaults.
type PolicyConfig struct {
	Eligibility struct {
		IncomeThreshold     string `mapstructure:"income_threshold"`
		FamilySizeThreshold string `mapstructure:"family_size_threshold"`
		ModelPath           string `mapstructure:"model_path"`
	} `mapstructure:"eligibility"`

	Recommendation struct {
		DocThreshold            string `mapstructure:"doc_threshold"`
		LowIncomeThreshold      string `mapstructure:"low_income_threshold"`
		HighFamilySizeThreshold string `mapstructure:"high_family_size_threshold"`
	} `mapstructure:"recommendation"`
}

type ExtractionConfig struct {
	FetchTimeout     int     `mapstructure:"fetch_timeout"` // milliseconds
	MaxParallel      int     `mapstructure:"max_parallel"`
	MaxDocumentBytes int64   `mapstructure:"max_document_bytes"`
	FetchRateLimit   float64 `mapstructure:"fetch_rate_limit"` // requests per second
	FetchBurst       int     `mapstructure:"fetch_burst"`

	OCR struct {
		Enabled        bool     `mapstructure:"enabled"`
		Languages      []string `mapstructure:"languages"`
		TessdataPrefix string   `mapstructure:"tessdata_prefix"`
	} `mapstructure:"ocr"`
}

type CacheConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	DecisionTTL     int  `mapstructure:"decision_ttl"` // milliseconds
	SessionTTL      int  `mapstructure:"session_ttl"`  // milliseconds
	SessionMaxTurns int  `mapstructure:"session_max_turns"`
}

type SearchConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
}

type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
