package generation

import (
	"context"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/failover"
	"agri-pipeline/internal/models"
	"agri-pipeline/internal/schema"
)

// Chain tries generators in order (primary model first, then fallbacks).
type Chain struct {
	chain *failover.Chain[Generator]
}

func NewChain(log logger.Logger, providers ...failover.Named[Generator]) *Chain {
	return &Chain{chain: failover.NewChain("generation", log, providers...)}
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

func (c *Chain) Generate(ctx context.Context, prompt string, node *schema.Node, media *models.Media) (string, failover.Report, error) {
	if c.Len() == 0 {
		return "", failover.Report{}, apperrors.NewInvocationConfigError("no generation model configured", nil)
	}

	var raw string
	report, err := c.chain.Do(ctx, func(ctx context.Context, g Generator) error {
		out, err := g.Generate(ctx, prompt, node, media)
		if err != nil {
			return apperrors.Normalize(apperrors.StageInvocation, err)
		}
		raw = out
		return nil
	})
	if err != nil {
		return "", report, err
	}
	return raw, report, nil
}
