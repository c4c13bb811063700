// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on
// top, then applies environment overrides and defaults.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	// APIS_GENAI_API_KEY overrides apis.genai.api_key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env", // tests in test/e2e/
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			v.Set(key, os.ExpandEnv(strVal))
		}
	}
}

// overrideEmptyConfig fills credentials from their conventional variable names.
func overrideEmptyConfig(cfg *Config) {
	if cfg.APIs.GenAI.APIKey == "" {
		cfg.APIs.GenAI.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY", "GENAI_API_KEY")
	}
	if cfg.APIs.WebSearch.APIKey == "" {
		cfg.APIs.WebSearch.APIKey = firstEnv("TAVILY_API_KEY", "WEB_SEARCH_API_KEY")
	}
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Notifications.AWS.Region == "" {
		cfg.Notifications.AWS.Region = os.Getenv("AWS_REGION")
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			return val
		}
	}
	return ""
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "agri-pipeline"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120000
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Server.MaxImageUploadBytes == 0 {
		cfg.Server.MaxImageUploadBytes = 16 << 20
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "none"
	}
	if cfg.Storage.TTL == 0 {
		cfg.Storage.TTL = 30 * 24 * 3600
	}
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = "results"
	}
	if cfg.Storage.MaxPerKey == 0 {
		cfg.Storage.MaxPerKey = 50
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 90000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.APIs.GenAI.Model == "" {
		cfg.APIs.GenAI.Model = "gemini-2.0-flash"
	}
	if cfg.APIs.GenAI.Timeout == 0 {
		cfg.APIs.GenAI.Timeout = 60000
	}
	if cfg.APIs.GenAI.Temperature == 0 {
		cfg.APIs.GenAI.Temperature = 0.4
	}
	if cfg.APIs.WebSearch.BaseURL == "" {
		cfg.APIs.WebSearch.BaseURL = "https://api.tavily.com"
	}
	if cfg.APIs.WebSearch.Timeout == 0 {
		cfg.APIs.WebSearch.Timeout = 10000
	}
	if cfg.APIs.WebSearch.SearchDepth == "" {
		cfg.APIs.WebSearch.SearchDepth = "advanced"
	}
	if cfg.APIs.WebSearch.MaxResults == 0 {
		cfg.APIs.WebSearch.MaxResults = 5
	}
	if cfg.APIs.KnowledgeIndex.Index == "" {
		cfg.APIs.KnowledgeIndex.Index = "agronomy-knowledge"
	}

	if cfg.Pipeline.RequestTimeout == 0 {
		cfg.Pipeline.RequestTimeout = 60000
	}
	if cfg.Pipeline.MaxExcerpts == 0 {
		cfg.Pipeline.MaxExcerpts = 5
	}
	if cfg.Pipeline.ExcerptChars == 0 {
		cfg.Pipeline.ExcerptChars = 500
	}
	if cfg.Pipeline.MinSuppliedFields == 0 {
		cfg.Pipeline.MinSuppliedFields = 1
	}
	if cfg.Pipeline.Retry.MaxAttempts == 0 {
		cfg.Pipeline.Retry.MaxAttempts = 1
	}
	if cfg.Pipeline.Retry.BaseDelay == 0 {
		cfg.Pipeline.Retry.BaseDelay = 500
	}
	if cfg.Pipeline.Retry.MaxDelay == 0 {
		cfg.Pipeline.Retry.MaxDelay = 5000
	}
	if cfg.Pipeline.Retry.Jitter == 0 {
		cfg.Pipeline.Retry.Jitter = 0.1
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "none":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for storage.backend=redis")
		}
	case "postgres":
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required for storage.backend=postgres")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required for storage.backend=postgres")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required for storage.backend=postgres")
		}
	default:
		return fmt.Errorf("storage.backend must be one of none, redis, postgres (got %q)", cfg.Storage.Backend)
	}

	if cfg.APIs.KnowledgeIndex.Enabled && len(cfg.Database.Elasticsearch.GetAddresses()) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses or url is required when apis.knowledge_index.enabled")
	}

	if cfg.Notifications.SMS.Enabled && cfg.Notifications.AWS.Region == "" {
		return fmt.Errorf("notifications.aws.region is required when notifications.sms.enabled")
	}

	if cfg.Pipeline.Retry.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.retry.max_attempts must be >= 1")
	}
	if cfg.Pipeline.Retry.Jitter < 0 || cfg.Pipeline.Retry.Jitter > 1 {
		return fmt.Errorf("pipeline.retry.jitter must be within [0, 1]")
	}
	if cfg.Pipeline.MinSuppliedFields < 0 {
		return fmt.Errorf("pipeline.min_supplied_fields must be >= 0")
	}

	return nil
}

// ValidateForWorkers checks settings needed only by the job worker mode.
func ValidateForWorkers(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       90000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
