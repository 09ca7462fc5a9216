// Package research turns a topic into the ranked list, the narration script
// and one image prompt per item.
package research

import (
	"context"

	"github.com/sirupsen/logrus"

	"toppers-pipeline/config"
	"toppers-pipeline/llm"
	"toppers-pipeline/types"
)

var log = logrus.WithField("stage", "research")

const ItemCount = 10

// Orchestrator runs research, script writing and prompt building in order
type Orchestrator struct {
	llm         llm.Provider
	cfg         config.ResearchConfig
	temperature float64
	maxTokens   int
}

// New creates a research Orchestrator
func New(cfg *config.Config, provider llm.Provider) *Orchestrator {
	return &Orchestrator{
		llm:         provider,
		cfg:         cfg.Research,
		temperature: cfg.LLM.Temperature,
		maxTokens:   cfg.LLM.MaxTokens,
	}
}

// Run produces the complete text content for topic
func (o *Orchestrator) Run(ctx context.Context, topic types.Topic) (*types.Content, error) {
	items, err := o.Research(ctx, topic)
	if err != nil {
		return nil, err
	}
	script, err := o.WriteScript(ctx, topic, items)
	if err != nil {
		return nil, err
	}
	prompts, err := o.ImagePrompts(items)
	if err != nil {
		return nil, err
	}
	return &types.Content{Topic: topic, Items: items, Script: *script, Prompts: prompts}, nil
}
