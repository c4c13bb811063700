// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Storage       StorageConfig           `mapstructure:"storage"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	APIs          APIsConfig              `mapstructure:"apis"`
	Pipeline      PipelineConfig          `mapstructure:"pipeline"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// IsProduction hides error details from HTTP clients.
func (a AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

type ServerConfig struct {
	Address             string `mapstructure:"address"`
	ReadTimeout         int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout        int    `mapstructure:"write_timeout"` // milliseconds
	MaxUploadBytes      int64  `mapstructure:"max_upload_bytes"`
	MaxImageUploadBytes int64  `mapstructure:"max_image_upload_bytes"` // crop diagnosis bodies
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
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
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetAddresses returns the configured addresses, falling back to URL.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig selects where completed outcomes are persisted.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"` // none | redis | postgres
	TTL       int    `mapstructure:"ttl"`     // seconds, redis only
	KeyPrefix string `mapstructure:"key_prefix"`
	MaxPerKey int    `mapstructure:"max_per_key"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// APIsConfig holds settings for the outbound providers.
type APIsConfig struct {
	GenAI struct {
		BaseURL         string   `mapstructure:"base_url"`
		APIKey          string   `mapstructure:"api_key"`
		Model           string   `mapstructure:"model"`
		FallbackModels  []string `mapstructure:"fallback_models"`
		Timeout         int      `mapstructure:"timeout"` // milliseconds
		Temperature     float64  `mapstructure:"temperature"`
		MaxOutputTokens int      `mapstructure:"max_output_tokens"`
		PromptLogPath   string   `mapstructure:"prompt_log_path"`
	} `mapstructure:"genai"`

	WebSearch struct {
		BaseURL       string `mapstructure:"base_url"`
		APIKey        string `mapstructure:"api_key"`
		Timeout       int    `mapstructure:"timeout"` // milliseconds
		SearchDepth   string `mapstructure:"search_depth"`
		MaxResults    int    `mapstructure:"max_results"`
		IncludeAnswer bool   `mapstructure:"include_answer"`
	} `mapstructure:"web_search"`

	KnowledgeIndex struct {
		Enabled bool   `mapstructure:"enabled"`
		Index   string `mapstructure:"index"`
	} `mapstructure:"knowledge_index"`
}

// PipelineConfig tunes the generation pipeline shared by all request types.
type PipelineConfig struct {
	RequestTimeout    int         `mapstructure:"request_timeout"` // milliseconds
	MaxExcerpts       int         `mapstructure:"max_excerpts"`
	ExcerptChars      int         `mapstructure:"excerpt_chars"`
	MinSuppliedFields int         `mapstructure:"min_supplied_fields"`
	WeatherContext    bool        `mapstructure:"weather_context"` // retrieve context for weather advisories
	Retry             RetryConfig `mapstructure:"retry"`
}

// RetryConfig bounds in-request retries of retryable stage failures.
type RetryConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	BaseDelay   int     `mapstructure:"base_delay"` // milliseconds
	MaxDelay    int     `mapstructure:"max_delay"`  // milliseconds
	Jitter      float64 `mapstructure:"jitter"`
}

// NotificationConfig holds settings for weather advisory alerts.
type NotificationConfig struct {
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
