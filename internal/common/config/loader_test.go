package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: test-pipeline
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "test-pipeline", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, int64(16<<20), cfg.Server.MaxImageUploadBytes)
	assert.Equal(t, "none", cfg.Storage.Backend)
	assert.Equal(t, 5, cfg.Pipeline.MaxExcerpts)
	assert.Equal(t, 500, cfg.Pipeline.ExcerptChars)
	assert.Equal(t, 1, cfg.Pipeline.MinSuppliedFields)
	assert.Equal(t, 1, cfg.Pipeline.Retry.MaxAttempts)
	assert.Equal(t, "gemini-2.0-flash", cfg.APIs.GenAI.Model)
	assert.Equal(t, "https://api.tavily.com", cfg.APIs.WebSearch.BaseURL)
	assert.Equal(t, 60*time.Second, GetDuration(cfg.Pipeline.RequestTimeout))
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_PIPELINE_TAVILY", "tvly-from-env")
	path := writeConfig(t, `
apis:
  web_search:
    api_key: "${TEST_PIPELINE_TAVILY}"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tvly-from-env", cfg.APIs.WebSearch.APIKey)
}

func TestLoadFromFile_ConventionalKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-test-key")
	path := writeConfig(t, `
apis:
  genai:
    model: gemini-1.5-pro
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-test-key", cfg.APIs.GenAI.APIKey)
	assert.Equal(t, "gemini-1.5-pro", cfg.APIs.GenAI.Model)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "redis storage without address",
			body: `
storage:
  backend: redis
`,
			wantErr: "database.redis.address",
		},
		{
			name: "unknown storage backend",
			body: `
storage:
  backend: s3
`,
			wantErr: "storage.backend",
		},
		{
			name: "knowledge index without elasticsearch",
			body: `
apis:
  knowledge_index:
    enabled: true
`,
			wantErr: "elasticsearch",
		},
		{
			name: "jitter out of range",
			body: `
pipeline:
  retry:
    jitter: 2.5
`,
			wantErr: "jitter",
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

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestWorkerConfigHelpers(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"diagnose-crop": {Enabled: false, MaxJobsActive: 2, Timeout: 1000, MaxRetries: 1},
	}}

	assert.False(t, IsWorkerEnabled(cfg, "diagnose-crop"))
	assert.True(t, IsWorkerEnabled(cfg, "weather-advisory-tips"))

	wc := GetWorkerConfig(cfg, "diagnose-crop")
	assert.Equal(t, 2, wc.MaxJobsActive)

	fallback := GetWorkerConfig(cfg, "generate-annual-plan")
	assert.True(t, fallback.Enabled)
	assert.Equal(t, 90000, fallback.Timeout)
}

func TestValidateForWorkers(t *testing.T) {
	assert.Error(t, ValidateForWorkers(&Config{}))
	assert.NoError(t, ValidateForWorkers(&Config{Camunda: CamundaConfig{BrokerAddress: "localhost:26500"}}))
}

func TestElasticsearchAddresses(t *testing.T) {
	assert.Nil(t, ElasticsearchConfig{}.GetAddresses())
	assert.Equal(t, []string{"http://es:9200"}, ElasticsearchConfig{URL: "http://es:9200"}.GetAddresses())
	assert.Equal(t, []string{"a", "b"}, ElasticsearchConfig{Addresses: []string{"a", "b"}, URL: "c"}.GetAddresses())
}
