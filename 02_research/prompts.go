package research

import (
	"fmt"
	"strings"

	"toppers-pipeline/types"
)

// ImagePrompts builds one prompt per item from its name and visual context,
// padded with style words to the minimum length and capped at the maximum.
func (o *Orchestrator) ImagePrompts(items []types.RankedItem) ([]types.ImagePrompt, error) {
	prompts := make([]types.ImagePrompt, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.VisualContext) == "" {
			return nil, fmt.Errorf("rank %d %q: %w", it.Rank, it.Name, types.ErrMissingVisualContext)
		}
		words := strings.Fields(it.Name + " " + it.VisualContext)
		for _, w := range o.cfg.PromptStyleWords {
			if len(words) >= o.cfg.PromptMinWords {
				break
			}
			words = append(words, w)
		}
		if len(words) > o.cfg.PromptMaxWords {
			words = words[:o.cfg.PromptMaxWords]
		}
		prompts = append(prompts, types.ImagePrompt{Rank: it.Rank, Name: it.Name, Text: strings.Join(words, " ")})
	}
	log.Infof("Built %d image prompts", len(prompts))
	return prompts, nil
}
