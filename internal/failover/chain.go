// Package failover tries an ordered list of providers, moving to the next one
// only when the previous failed with a retryable error.
package failover

import (
	"context"
	stderrors "errors"
	"time"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/common/metrics"
)

// ErrNoProviders is returned by Do on an empty chain.
var ErrNoProviders = stderrors.New("no providers configured")

// Named pairs a provider with the name used in logs, metrics and provenance.
type Named[P any] struct {
	Name     string
	Provider P
}

// Attempt records one provider call.
type Attempt struct {
	Provider   string        `json:"provider"`
	Code       string        `json:"code,omitempty"`
	DurationMs int64         `json:"durationMs"`
	Duration   time.Duration `json:"-"`
	Err        error         `json:"-"`
}

// Report describes how a chain call was served.
type Report struct {
	ServedBy string    `json:"servedBy,omitempty"`
	Attempts []Attempt `json:"attempts"`
}

type Chain[P any] struct {
	component string
	providers []Named[P]
	logger    logger.Logger
}

// NewChain builds a chain; component labels metrics ("retrieval", "generation").
func NewChain[P any](component string, log logger.Logger, providers ...Named[P]) *Chain[P] {
	return &Chain[P]{
		component: component,
		providers: providers,
		logger:    log.WithFields(map[string]interface{}{"component": component}),
	}
}

func (c *Chain[P]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.providers)
}

func (c *Chain[P]) Names() []string {
	names := make([]string, 0, c.Len())
	if c == nil {
		return names
	}
	for _, p := range c.providers {
		names = append(names, p.Name)
	}
	return names
}

// Do calls fn for each provider in order until one succeeds. A non-retryable
// error, a cancelled context or the last provider's error ends the walk and
// is returned. PipelineErrors are tagged with the failing provider.
func (c *Chain[P]) Do(ctx context.Context, fn func(ctx context.Context, p P) error) (Report, error) {
	var report Report
	if c.Len() == 0 {
		return report, ErrNoProviders
	}

	for i, named := range c.providers {
		start := time.Now()
		err := fn(ctx, named.Provider)
		elapsed := time.Since(start)

		attempt := Attempt{
			Provider:   named.Name,
			Duration:   elapsed,
			DurationMs: elapsed.Milliseconds(),
			Err:        err,
		}
		if pe, ok := apperrors.AsPipelineError(err); ok {
			attempt.Code = string(pe.Code)
		}
		report.Attempts = append(report.Attempts, attempt)

		if err == nil {
			metrics.ProviderAttempts.WithLabelValues(c.component, named.Name, metrics.OutcomeSuccess).Inc()
			report.ServedBy = named.Name
			if i > 0 {
				c.logger.Info("served by fallback provider", map[string]interface{}{
					"provider": named.Name,
					"attempts": len(report.Attempts),
				})
			}
			return report, nil
		}

		metrics.ProviderAttempts.WithLabelValues(c.component, named.Name, metrics.OutcomeFailure).Inc()

		last := i == len(c.providers)-1
		if last || ctx.Err() != nil || !apperrors.IsRetryable(err) {
			return report, tagProvider(err, named.Name)
		}

		c.logger.Warn("provider failed, trying next", map[string]interface{}{
			"provider": named.Name,
			"next":     c.providers[i+1].Name,
			"code":     attempt.Code,
			"error":    err.Error(),
		})
	}
	return report, ErrNoProviders
}

func tagProvider(err error, name string) error {
	if pe, ok := apperrors.AsPipelineError(err); ok && pe.Provider == "" {
		return pe.WithProvider(name)
	}
	return err
}
