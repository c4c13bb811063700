package retrieval

import (
	"context"
	"strings"
	"time"

	apperrors "agri-pipeline/internal/common/errors"
	commonhttp "agri-pipeline/internal/common/http"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/common/validation"
	"agri-pipeline/internal/models"
)

const tavilyProvider = "tavily"

type TavilyConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	IncludeAnswer bool
}

// TavilyRetriever queries the Tavily search API.
type TavilyRetriever struct {
	config TavilyConfig
	client *commonhttp.Client
	logger logger.Logger
}

type tavilySearchRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilySearchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func NewTavilyRetriever(cfg TavilyConfig, log logger.Logger) *TavilyRetriever {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	return &TavilyRetriever{
		config: cfg,
		client: commonhttp.NewClient(cfg.Timeout),
		logger: log.WithFields(map[string]interface{}{"provider": tavilyProvider}),
	}
}

func (r *TavilyRetriever) Retrieve(ctx context.Context, query string, opts Options) (*models.ContextBundle, error) {
	if r.config.APIKey == "" {
		return nil, apperrors.NewRetrievalConfigError(tavilyProvider, "web search api key is not set")
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	reqBody := tavilySearchRequest{
		Query:         query,
		MaxResults:    opts.MaxResults,
		SearchDepth:   opts.Depth,
		IncludeAnswer: r.config.IncludeAnswer,
	}
	headers := map[string]string{"Authorization": "Bearer " + r.config.APIKey}

	start := time.Now()
	var resp tavilySearchResponse
	if err := r.client.PostJSON(ctx, r.config.BaseURL+"/search", headers, reqBody, &resp); err != nil {
		r.logger.Warn("web search failed", map[string]interface{}{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, apperrors.NewContextRetrievalError(tavilyProvider, err)
	}

	sources := make([]models.ContextSource, 0, len(resp.Results))
	for _, res := range resp.Results {
		if !validation.ValidateURL(res.URL) {
			r.logger.Debug("dropping result with invalid url", map[string]interface{}{"url": res.URL})
			continue
		}
		sources = append(sources, models.ContextSource{
			Title:   strings.TrimSpace(res.Title),
			Excerpt: strings.TrimSpace(res.Content),
			URL:     res.URL,
			Score:   res.Score,
		})
	}
	sources = rankSources(sources, opts.MaxResults)

	summary := strings.TrimSpace(resp.Answer)
	if summary == "" && len(sources) > 0 {
		summary = sources[0].Excerpt
	}

	r.logger.Debug("web search complete", map[string]interface{}{
		"results":     len(sources),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return models.NewContextBundle(summary, sources, tavilyProvider), nil
}
