package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"toppers-pipeline/llm"
	"toppers-pipeline/types"
)

const researchSystem = `You are an expert researcher who builds compelling Top 10 lists for YouTube Shorts.
You find the most peculiar, fascinating characteristic of every item, the kind of fact that makes
viewers say "I didn't know that!". Respond ONLY with valid JSON. No markdown. No explanation.`

type researchJSON struct {
	Items []types.RankedItem `json:"items"`
}

// Research asks for the ten ranked items and validates them. Items are
// returned in presentation order, #10 first.
func (o *Orchestrator) Research(ctx context.Context, topic types.Topic) ([]types.RankedItem, error) {
	attempts := max(o.cfg.MaxAttempts, 1)
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		log.WithField("attempt", attempt).Infof("Researching %q", topic.Title)

		var raw researchJSON
		err := llm.CompleteJSON(ctx, o.llm, llm.Request{
			System:      researchSystem,
			Prompt:      researchPrompt(topic, lastErr),
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
		}, &raw)
		if err == nil {
			var items []types.RankedItem
			items, err = o.validateItems(raw.Items)
			if err == nil {
				log.Infof("✅ Research ready: %d items", len(items))
				return items, nil
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Research rejected")
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", types.ErrIncompleteResearch, lastErr)
}

func (o *Orchestrator) validateItems(items []types.RankedItem) ([]types.RankedItem, error) {
	if len(items) != ItemCount {
		return nil, fmt.Errorf("got %d items, want %d", len(items), ItemCount)
	}
	seen := make(map[int]bool, ItemCount)
	out := make([]types.RankedItem, 0, ItemCount)

	for _, it := range items {
		if it.Rank < 1 || it.Rank > ItemCount {
			return nil, fmt.Errorf("rank %d out of range", it.Rank)
		}
		if seen[it.Rank] {
			return nil, fmt.Errorf("duplicate rank %d", it.Rank)
		}
		seen[it.Rank] = true

		it.Name = strings.TrimSpace(it.Name)
		var missing []string
		if it.Name == "" {
			missing = append(missing, "name")
		}
		if strings.TrimSpace(it.NarrationFocus) == "" {
			missing = append(missing, "narration_focus")
		}
		if strings.TrimSpace(it.VisualContext) == "" {
			missing = append(missing, "visual_context")
		}
		if strings.TrimSpace(it.SurprisingFact) == "" {
			missing = append(missing, "surprising_fact")
		}
		if len(nonEmpty(it.KeyFacts)) == 0 {
			missing = append(missing, "key_facts")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("rank %d missing %s", it.Rank, strings.Join(missing, ", "))
		}

		it.KeyFacts = nonEmpty(it.KeyFacts)
		it.VisualContext = firstWords(it.VisualContext, o.cfg.VisualContextMaxWords)
		out = append(out, it)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	return out, nil
}

func researchPrompt(topic types.Topic, previous error) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Research the Top 10 list: %s\nCategory: %s\n\n", topic.Title, topic.Category))
	sb.WriteString("For every item give:\n")
	sb.WriteString("- rank (1 is the best, every rank from 1 to 10 exactly once)\n")
	sb.WriteString("- name\n- tagline (one short line)\n- key_facts (2-3 short facts)\n- surprising_fact\n")
	sb.WriteString("- narration_focus: the single aspect the narration will talk about\n")
	sb.WriteString("- visual_context: at most 8 words describing a photo that shows exactly that aspect\n\n")
	if previous != nil {
		sb.WriteString(fmt.Sprintf("Your previous answer was rejected (%v). Fix it.\n\n", previous))
	}
	example, _ := json.Marshal(researchJSON{Items: []types.RankedItem{{
		Rank: 10, Name: "...", Tagline: "...", KeyFacts: []string{"..."},
		SurprisingFact: "...", NarrationFocus: "...", VisualContext: "...",
	}}})
	sb.WriteString("Respond ONLY with JSON shaped like: " + string(example))
	return sb.String()
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if n > 0 && len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
