// Package app assembles the pipeline, its providers and the request
// handlers from configuration. Both the HTTP server and the job workers are
// built from the same App.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"agri-pipeline/internal/api"
	"agri-pipeline/internal/common/aws"
	"agri-pipeline/internal/common/camunda"
	"agri-pipeline/internal/common/config"
	"agri-pipeline/internal/common/database"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/common/observability"
	"agri-pipeline/internal/failover"
	"agri-pipeline/internal/generation"
	"agri-pipeline/internal/normalize"
	"agri-pipeline/internal/notify"
	"agri-pipeline/internal/pipeline"
	"agri-pipeline/internal/prompt"
	"agri-pipeline/internal/retrieval"
	"agri-pipeline/internal/store"
	diagnosecrop "agri-pipeline/internal/workers/crop-health/diagnose-crop"
	generateannualplan "agri-pipeline/internal/workers/planning/generate-annual-plan"
	advisorytips "agri-pipeline/internal/workers/weather/advisory-tips"
	"agri-pipeline/pkg/registry"
)

type App struct {
	Config        *config.Config
	Logger        logger.Logger
	Observability *observability.Observability
	Runner        *pipeline.Runner

	Plans      *generateannualplan.Handler
	Diagnoses  *diagnosecrop.Handler
	Advisories *advisorytips.Handler

	Store  store.Store
	Checks map[string]api.ReadinessCheck

	closers []func() error
}

type settings struct {
	genaiHTTPClient *http.Client
	esTransport     http.RoundTripper
	smsSender       notify.SMSSender
	redisClient     *database.RedisClient
	observability   *observability.Observability
}

type Option func(*settings)

// WithGenAIHTTPClient routes generation calls through client.
func WithGenAIHTTPClient(client *http.Client) Option {
	return func(s *settings) { s.genaiHTTPClient = client }
}

// WithElasticsearchTransport replaces the knowledge index transport.
func WithElasticsearchTransport(rt http.RoundTripper) Option {
	return func(s *settings) { s.esTransport = rt }
}

// WithSMSSender replaces the SNS client used for advisory alerts.
func WithSMSSender(sender notify.SMSSender) Option {
	return func(s *settings) { s.smsSender = sender }
}

// WithRedisClient replaces the Redis connection of the result store.
func WithRedisClient(client *database.RedisClient) Option {
	return func(s *settings) { s.redisClient = client }
}

func WithObservability(obs *observability.Observability) Option {
	return func(s *settings) { s.observability = obs }
}

func Build(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if log == nil {
		log = logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	}

	a := &App{
		Config: cfg,
		Logger: log,
		Checks: map[string]api.ReadinessCheck{},
	}

	a.Observability = s.observability
	if a.Observability == nil {
		a.Observability = observability.New(cfg.App.Name)
		a.closers = append(a.closers, func() error { a.Observability.Shutdown(); return nil })
	}

	retrievers, err := a.buildRetrievers(s)
	if err != nil {
		a.Close()
		return nil, err
	}
	generators, err := a.buildGenerators(ctx, s)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Runner = pipeline.NewRunner(pipeline.Config{
		RequestTimeout: config.GetDuration(cfg.Pipeline.RequestTimeout),
		Retry: failover.RetryPolicy{
			MaxAttempts: cfg.Pipeline.Retry.MaxAttempts,
			BaseDelay:   config.GetDuration(cfg.Pipeline.Retry.BaseDelay),
			MaxDelay:    config.GetDuration(cfg.Pipeline.Retry.MaxDelay),
			Jitter:      cfg.Pipeline.Retry.Jitter,
		},
		Retrieval: retrieval.Options{
			MaxResults: cfg.APIs.WebSearch.MaxResults,
			Depth:      cfg.APIs.WebSearch.SearchDepth,
		},
	}, pipeline.Dependencies{
		Retrievers:    retrievers,
		Generators:    generators,
		Normalizer:    normalize.New(normalize.Options{MinSupplied: cfg.Pipeline.MinSuppliedFields}, log),
		Observability: a.Observability,
		Logger:        log,
	})

	if err := a.buildStore(ctx, s); err != nil {
		a.Close()
		return nil, err
	}
	notifier, err := a.buildNotifier(ctx, s)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildHandlers(notifier); err != nil {
		a.Close()
		return nil, err
	}

	log.Info("pipeline assembled", map[string]interface{}{
		"retrievers": a.Runner.Retrievers(),
		"generators": a.Runner.Generators(),
		"storage":    cfg.Storage.Backend,
		"smsAlerts":  notifier != nil,
	})
	return a, nil
}

func (a *App) buildRetrievers(s *settings) (*retrieval.Chain, error) {
	cfg := a.Config
	var providers []failover.Named[retrieval.Retriever]

	if cfg.APIs.KnowledgeIndex.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch, s.esTransport)
		if err != nil {
			return nil, err
		}
		providers = append(providers, failover.Named[retrieval.Retriever]{
			Name:     "knowledge-index",
			Provider: retrieval.NewElasticsearchRetriever(es, cfg.APIs.KnowledgeIndex.Index, a.Logger),
		})
		a.Checks["elasticsearch"] = es.Ping
	}

	// Without an index the search API is always registered so a missing key
	// surfaces as a configuration error per request.
	if cfg.APIs.WebSearch.APIKey != "" || len(providers) == 0 {
		providers = append(providers, failover.Named[retrieval.Retriever]{
			Name: "tavily",
			Provider: retrieval.NewTavilyRetriever(retrieval.TavilyConfig{
				BaseURL:       cfg.APIs.WebSearch.BaseURL,
				APIKey:        cfg.APIs.WebSearch.APIKey,
				Timeout:       config.GetDuration(cfg.APIs.WebSearch.Timeout),
				IncludeAnswer: cfg.APIs.WebSearch.IncludeAnswer,
			}, a.Logger),
		})
	}
	return retrieval.NewChain(a.Logger, providers...), nil
}

func (a *App) buildGenerators(ctx context.Context, s *settings) (*generation.Chain, error) {
	g := a.Config.APIs.GenAI
	promptLog := generation.NewPromptLog(g.PromptLogPath)

	models := append([]string{g.Model}, g.FallbackModels...)
	seen := map[string]bool{}
	var providers []failover.Named[generation.Generator]
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true

		gen, err := generation.NewGeminiGenerator(ctx, generation.GeminiConfig{
			BaseURL:         g.BaseURL,
			APIKey:          g.APIKey,
			Model:           model,
			Timeout:         config.GetDuration(g.Timeout),
			Temperature:     g.Temperature,
			MaxOutputTokens: g.MaxOutputTokens,
			HTTPClient:      s.genaiHTTPClient,
		}, promptLog, a.Logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, failover.Named[generation.Generator]{Name: model, Provider: gen})
	}
	return generation.NewChain(a.Logger, providers...), nil
}

func (a *App) buildStore(ctx context.Context, s *settings) error {
	cfg := a.Config
	switch cfg.Storage.Backend {
	case "redis":
		client := s.redisClient
		if client == nil {
			client = database.NewRedis(cfg.Database.Redis)
			a.closers = append(a.closers, client.Close)
		}
		a.Store = store.NewRedisStore(client, cfg.Storage)
		a.Checks["redis"] = client.Ping

	case "postgres":
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)

		pgStore := store.NewPostgresStore(pg)
		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := pgStore.EnsureSchema(schemaCtx); err != nil {
			return err
		}
		a.Store = pgStore
		a.Checks["postgres"] = pg.Ping
	}
	return nil
}

func (a *App) buildNotifier(ctx context.Context, s *settings) (advisorytips.Notifier, error) {
	sms := a.Config.Notifications.SMS
	if !sms.Enabled {
		return nil, nil
	}
	sender := s.smsSender
	if sender == nil {
		client, err := aws.NewSNSClient(ctx, a.Config.Notifications.AWS.Region, sms.SenderID)
		if err != nil {
			return nil, err
		}
		sender = client
	}
	return notify.NewSMSNotifier(sender, 0, a.Logger), nil
}

func (a *App) buildHandlers(notifier advisorytips.Notifier) error {
	cfg := a.Config
	composer := prompt.NewComposer(prompt.Options{
		MaxExcerpts:  cfg.Pipeline.MaxExcerpts,
		ExcerptChars: cfg.Pipeline.ExcerptChars,
	})

	var err error
	a.Plans, err = generateannualplan.NewHandler(generateannualplan.HandlerOptions{
		Config:   generateannualplan.ConfigFromApp(cfg),
		Runner:   a.Runner,
		Composer: composer,
		Logger:   a.Logger,
	})
	if err != nil {
		return err
	}

	a.Diagnoses, err = diagnosecrop.NewHandler(diagnosecrop.HandlerOptions{
		Config:   diagnosecrop.ConfigFromApp(cfg),
		Runner:   a.Runner,
		Composer: composer,
		Logger:   a.Logger,
	})
	if err != nil {
		return err
	}

	advisoryOpts := advisorytips.HandlerOptions{
		Config:     advisorytips.ConfigFromApp(cfg),
		Runner:     a.Runner,
		Composer:   composer,
		UseContext: cfg.Pipeline.WeatherContext,
		Logger:     a.Logger,
	}
	if notifier != nil {
		advisoryOpts.Notifier = notifier
	}
	a.Advisories, err = advisorytips.NewHandler(advisoryOpts)
	return err
}

// Server returns the HTTP API over the assembled handlers.
func (a *App) Server() *api.Server {
	opts := api.Options{
		Plans:               a.Plans,
		Diagnoses:           a.Diagnoses,
		Advisories:          a.Advisories,
		Registry:            registry.Build(time.Now()),
		Checks:              a.Checks,
		MaxUploadBytes:      a.Config.Server.MaxUploadBytes,
		MaxImageUploadBytes: a.Config.Server.MaxImageUploadBytes,
		Production:          a.Config.App.IsProduction(),
		Logger:              a.Logger,
	}
	if a.Store != nil {
		opts.Store = a.Store
	}
	return api.NewServer(opts)
}

// WorkerSpec describes one job worker to open against the broker.
type WorkerSpec struct {
	TaskType      string
	Enabled       bool
	MaxJobsActive int
	Timeout       time.Duration
	Handler       camunda.JobHandler
}

func (a *App) Workers() []WorkerSpec {
	plan := a.Plans.Config()
	diagnosis := a.Diagnoses.Config()
	advisory := a.Advisories.Config()
	return []WorkerSpec{
		{a.Plans.GetTaskType(), plan.Enabled, plan.MaxJobsActive, plan.Timeout, a.Plans},
		{a.Diagnoses.GetTaskType(), diagnosis.Enabled, diagnosis.MaxJobsActive, diagnosis.Timeout, a.Diagnoses},
		{a.Advisories.GetTaskType(), advisory.Enabled, advisory.MaxJobsActive, advisory.Timeout, a.Advisories},
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close app: %w", errors.Join(errs...))
	}
	return nil
}
