package diagnosecrop

import (
	"fmt"
	"time"

	"agri-pipeline/internal/common/config"
)

type Config struct {
	Enabled       bool
	MaxJobsActive int
	Timeout       time.Duration
	MaxRetries    int
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 3,
		Timeout:       120 * time.Second,
		MaxRetries:    2,
	}
}

func ConfigFromApp(cfg *config.Config) *Config {
	wc := config.GetWorkerConfig(cfg, TaskType)
	c := DefaultConfig()
	c.Enabled = wc.Enabled
	if wc.MaxJobsActive > 0 {
		c.MaxJobsActive = wc.MaxJobsActive
	}
	if wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	c.MaxRetries = wc.MaxRetries
	return c
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	return nil
}
