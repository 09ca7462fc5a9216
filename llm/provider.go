// Package llm talks to the chat-completion backends that write topics,
// research and scripts.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"toppers-pipeline/config"
	"toppers-pipeline/types"
)

var log = logrus.WithField("stage", "llm")

// Request is a single-turn completion request
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Response is the text returned by a provider
type Response struct {
	Content    string
	Provider   string
	Model      string
	TokensUsed int
}

// Provider is a text-generation backend
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ErrNotConfigured is returned when a provider has no API key
var ErrNotConfigured = errors.New("provider not configured")

// FromConfig builds the provider chain in the configured order.
// Providers without credentials are skipped.
func FromConfig(cfg *config.Config) (Provider, error) {
	client := &http.Client{Timeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second}

	var providers []Provider
	for _, name := range cfg.LLM.Providers {
		switch name {
		case "groq":
			if cfg.LLM.GroqAPIKey == "" {
				log.Warn("GROQ_API_KEY not set, skipping groq")
				continue
			}
			providers = append(providers, NewGroq(client, cfg.LLM.GroqURL, cfg.LLM.GroqModel, cfg.LLM.GroqAPIKey))
		case "gemini":
			if cfg.LLM.GeminiKey == "" {
				log.Warn("GEMINI_API_KEY not set, skipping gemini")
				continue
			}
			providers = append(providers, NewGemini(client, cfg.LLM.GeminiURL, cfg.LLM.GeminiModel, cfg.LLM.GeminiKey))
		default:
			return nil, fmt.Errorf("unknown llm provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no llm provider configured: %w", ErrNotConfigured)
	}
	return NewChain(providers...), nil
}

// classifyStatus maps an HTTP status to a provider failure kind
func classifyStatus(code int) types.FailureKind {
	switch {
	case code == http.StatusTooManyRequests:
		return types.FailureRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return types.FailureTimeout
	case code == http.StatusBadRequest || code == http.StatusForbidden:
		return types.FailurePolicyRejection
	default:
		return types.FailureUnavailable
	}
}
