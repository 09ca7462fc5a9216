package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"toppers-pipeline/llm"
	"toppers-pipeline/types"
)

const scriptSystem = `You are a viral YouTube Shorts writer. You hook viewers in the first 3 seconds and keep
them watching to the end with a conversational, exciting tone. Respond ONLY with valid JSON.`

type scriptJSON struct {
	Hook  string             `json:"hook"`
	Items []types.ItemScript `json:"items_script"`
	CTA   string             `json:"cta"`
}

// WriteScript writes the narration for items (presentation order). A script
// outside the word budget gets one rewrite with an explicit correction.
func (o *Orchestrator) WriteScript(ctx context.Context, topic types.Topic, items []types.RankedItem) (*types.Script, error) {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal research: %w", err)
	}

	correction := ""
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		var raw scriptJSON
		err := llm.CompleteJSON(ctx, o.llm, llm.Request{
			System:      scriptSystem,
			Prompt:      o.scriptPrompt(topic, string(data), correction),
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
		}, &raw)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).WithField("attempt", attempt).Warn("Script generation failed")
			continue
		}

		script, err := assembleScript(raw, items)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", types.ErrGenerationFailure, err)
			log.WithError(err).WithField("attempt", attempt).Warn("Script rejected")
			continue
		}

		if script.WordCount < o.cfg.ScriptMinWords || script.WordCount > o.cfg.ScriptMaxWords {
			lastErr = fmt.Errorf("%w: %d words, want %d-%d", types.ErrScriptOutOfBudget,
				script.WordCount, o.cfg.ScriptMinWords, o.cfg.ScriptMaxWords)
			correction = fmt.Sprintf("Your script had %d words; rewrite it to between %d and %d words in total.",
				script.WordCount, o.cfg.ScriptMinWords, o.cfg.ScriptMaxWords)
			log.WithField("words", script.WordCount).Warn("Script out of word budget")
			continue
		}

		log.WithField("words", script.WordCount).Info("✅ Script ready")
		return script, nil
	}

	if errors.Is(lastErr, types.ErrScriptOutOfBudget) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("write script: %w", lastErr)
}

// assembleScript orders the narrations to match items and builds the full text
func assembleScript(raw scriptJSON, items []types.RankedItem) (*types.Script, error) {
	if strings.TrimSpace(raw.Hook) == "" || strings.TrimSpace(raw.CTA) == "" {
		return nil, fmt.Errorf("hook and cta are required")
	}
	byRank := make(map[int]types.ItemScript, len(raw.Items))
	for _, is := range raw.Items {
		if strings.TrimSpace(is.Narration) == "" {
			continue
		}
		byRank[is.Rank] = is
	}

	script := &types.Script{Hook: strings.TrimSpace(raw.Hook), CTA: strings.TrimSpace(raw.CTA)}
	parts := []string{script.Hook}
	for _, it := range items {
		is, ok := byRank[it.Rank]
		if !ok {
			return nil, fmt.Errorf("no narration for rank %d", it.Rank)
		}
		is.Name = it.Name
		is.Narration = strings.TrimSpace(is.Narration)
		script.Items = append(script.Items, is)
		parts = append(parts, is.Narration)
	}
	parts = append(parts, script.CTA)

	script.Text = strings.Join(parts, " ")
	script.WordCount = len(strings.Fields(script.Text))
	return script, nil
}

func (o *Orchestrator) scriptPrompt(topic types.Topic, research, correction string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Write a 60-second YouTube Shorts script for: %s\n\n", topic.Title))
	sb.WriteString(fmt.Sprintf("Total length: %d-%d words including hook and call to action.\n",
		o.cfg.ScriptMinWords, o.cfg.ScriptMaxWords))
	sb.WriteString("Count down from #10 to #1. Each item narration talks about its narration_focus only.\n\n")
	sb.WriteString("RESEARCH:\n" + research + "\n\n")
	if correction != "" {
		sb.WriteString(correction + "\n\n")
	}
	sb.WriteString(`Respond ONLY with JSON: {"hook": "...", "items_script": [{"rank": 10, "name": "...", "script": "..."}], "cta": "..."}`)
	return sb.String()
}
