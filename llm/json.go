package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"toppers-pipeline/types"
)

// CleanJSON strips markdown fences and any prose around the outermost JSON value
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// DecodeJSON unmarshals a model reply into v
func DecodeJSON(content string, v any) error {
	cleaned := CleanJSON(content)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("%w: parse model JSON: %v (raw: %s)", types.ErrGenerationFailure, err, truncate(cleaned, 200))
	}
	return nil
}

// CompleteJSON asks p for a JSON reply and decodes it into v
func CompleteJSON(ctx context.Context, p Provider, req Request, v any) error {
	req.JSONMode = true
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp.Content, v)
}
