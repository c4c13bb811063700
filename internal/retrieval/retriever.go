// Package retrieval gathers background context for a generation request
// from a web search provider or an agronomy knowledge index.
package retrieval

import (
	"context"
	"sort"
	"strings"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/failover"
	"agri-pipeline/internal/models"
)

const (
	DefaultMaxResults = 5
	DefaultDepth      = "advanced"
)

// Options tune a single retrieval.
type Options struct {
	MaxResults int
	Depth      string
}

func (o Options) withDefaults() Options {
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.Depth == "" {
		o.Depth = DefaultDepth
	}
	return o
}

// Retriever returns a context bundle for query. Implementations return
// *errors.PipelineError values from the retrieval stage.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts Options) (*models.ContextBundle, error)
}

// Chain asks retrievers in order and returns the first bundle produced.
type Chain struct {
	chain *failover.Chain[Retriever]
}

func NewChain(log logger.Logger, providers ...failover.Named[Retriever]) *Chain {
	return &Chain{chain: failover.NewChain("retrieval", log, providers...)}
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return c.chain.Len()
}

func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	return c.chain.Names()
}

// Retrieve returns the bundle of the first provider that succeeds along with
// the attempt report.
func (c *Chain) Retrieve(ctx context.Context, query string, opts Options) (*models.ContextBundle, failover.Report, error) {
	if c.Len() == 0 {
		return nil, failover.Report{}, apperrors.NewRetrievalConfigError("", "no context provider configured")
	}

	var bundle *models.ContextBundle
	report, err := c.chain.Do(ctx, func(ctx context.Context, r Retriever) error {
		b, err := r.Retrieve(ctx, query, opts)
		if err != nil {
			return apperrors.Normalize(apperrors.StageRetrieval, err)
		}
		bundle = b
		return nil
	})
	if err != nil {
		return nil, report, err
	}
	return bundle, report, nil
}

// rankSources drops duplicate URLs (keeping the higher score), orders by
// score descending and keeps at most max entries. Equal scores keep the
// provider's order.
func rankSources(sources []models.ContextSource, max int) []models.ContextSource {
	seen := make(map[string]int, len(sources))
	ranked := make([]models.ContextSource, 0, len(sources))

	for _, src := range sources {
		key := strings.TrimRight(strings.TrimSpace(src.URL), "/")
		if key == "" {
			ranked = append(ranked, src)
			continue
		}
		if idx, ok := seen[key]; ok {
			if src.Score > ranked[idx].Score {
				ranked[idx] = src
			}
			continue
		}
		seen[key] = len(ranked)
		ranked = append(ranked, src)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}
