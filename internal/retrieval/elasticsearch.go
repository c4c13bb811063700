package retrieval

import (
	"context"
	"encoding/json"
	"strings"

	"agri-pipeline/internal/common/database"
	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/models"
)

const knowledgeIndexProvider = "knowledge-index"

// Searcher is the subset of the Elasticsearch client used for retrieval.
type Searcher interface {
	Search(ctx context.Context, index string, query map[string]interface{}, size int) (*database.SearchResult, error)
}

// knowledgeDocument is the shape of documents in the agronomy index.
type knowledgeDocument struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	URL     string   `json:"url"`
	Region  string   `json:"region"`
	Crops   []string `json:"crops"`
}

// ElasticsearchRetriever runs full-text searches against the agronomy
// knowledge index.
type ElasticsearchRetriever struct {
	searcher Searcher
	index    string
	logger   logger.Logger
}

func NewElasticsearchRetriever(searcher Searcher, index string, log logger.Logger) *ElasticsearchRetriever {
	return &ElasticsearchRetriever{
		searcher: searcher,
		index:    index,
		logger:   log.WithFields(map[string]interface{}{"provider": knowledgeIndexProvider, "index": index}),
	}
}

func (r *ElasticsearchRetriever) Retrieve(ctx context.Context, query string, opts Options) (*models.ContextBundle, error) {
	if r.searcher == nil || r.index == "" {
		return nil, apperrors.NewRetrievalConfigError(knowledgeIndexProvider, "knowledge index is not configured")
	}
	opts = opts.withDefaults()

	esQuery := map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":  query,
			"fields": []string{"title^2", "content", "url", "region", "crops"},
			"type":   "best_fields",
		},
	}

	res, err := r.searcher.Search(ctx, r.index, esQuery, opts.MaxResults)
	if err != nil {
		r.logger.Warn("knowledge index search failed", map[string]interface{}{"error": err.Error()})
		return nil, apperrors.NewContextRetrievalError(knowledgeIndexProvider, err)
	}

	sources := make([]models.ContextSource, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		var doc knowledgeDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			r.logger.Debug("skipping malformed document", map[string]interface{}{"id": hit.ID, "error": err.Error()})
			continue
		}
		excerpt := strings.TrimSpace(doc.Content)
		if excerpt == "" {
			continue
		}
		sources = append(sources, models.ContextSource{
			Title:   strings.TrimSpace(doc.Title),
			Excerpt: excerpt,
			URL:     doc.URL,
			Score:   hit.Score,
		})
	}
	sources = rankSources(sources, opts.MaxResults)

	var summary string
	if len(sources) > 0 {
		summary = sources[0].Excerpt
	}
	return models.NewContextBundle(summary, sources, knowledgeIndexProvider), nil
}
