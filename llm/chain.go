package llm

import (
	"context"
	"errors"
	"fmt"

	"toppers-pipeline/types"
)

// Chain tries each provider in order until one answers
type Chain struct {
	providers []Provider
}

func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

func (c *Chain) Name() string { return "chain" }

// Complete returns the first successful response. When every provider fails
// the joined errors are wrapped in ErrGenerationFailure.
func (c *Chain) Complete(ctx context.Context, req Request) (*Response, error) {
	var errs []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := p.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		log.WithError(err).WithField("provider", p.Name()).Warn("Provider failed, trying next")
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: all %d llm providers failed: %w", types.ErrGenerationFailure, len(c.providers), errors.Join(errs...))
}
