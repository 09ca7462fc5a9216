package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"toppers-pipeline/config"
	"toppers-pipeline/types"
)

// Request describes one image to generate
type Request struct {
	Prompt  string
	Subject string // item name, used by lookup providers
	Width   int
	Height  int
}

// Provider returns encoded image bytes (png, jpeg or webp)
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) ([]byte, error)
}

const userAgent = "Mozilla/5.0 (compatible; ToppersPipeline/1.0)"

// FromConfig builds providers in the configured priority order. Providers
// that need a key are skipped when it is missing.
func FromConfig(cfg *config.Config) ([]Provider, error) {
	client := &http.Client{Timeout: time.Duration(cfg.Images.TimeoutSec+10) * time.Second}

	var out []Provider
	for _, name := range cfg.Images.Providers {
		switch name {
		case "pollinations":
			out = append(out, NewPollinations(client, ""))
		case "dalle":
			if cfg.Images.OpenAIAPIKey == "" {
				log.Warn("OPENAI_API_KEY not set, skipping dalle")
				continue
			}
			out = append(out, NewOpenAI(client, "", cfg.Images.OpenAIAPIKey))
		case "stability":
			if cfg.Images.StabilityAPIKey == "" {
				log.Warn("STABILITY_API_KEY not set, skipping stability")
				continue
			}
			out = append(out, NewStability(client, "", cfg.Images.StabilityAPIKey))
		case "wikipedia":
			out = append(out, NewWikipedia(client, ""))
		default:
			return nil, fmt.Errorf("unknown image provider %q", name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable image provider in %v", cfg.Images.Providers)
	}
	return out, nil
}

func classifyStatus(code int) types.FailureKind {
	switch {
	case code == http.StatusTooManyRequests:
		return types.FailureRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return types.FailureTimeout
	case code == http.StatusNotFound:
		return types.FailureNoResult
	default:
		return types.FailureUnavailable
	}
}

func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &types.ProviderError{
		Provider: provider,
		Kind:     classifyStatus(resp.StatusCode),
		Err:      fmt.Errorf("HTTP %d: %s", resp.StatusCode, body),
	}
}

func transportError(provider string, err error) error {
	kind := types.FailureUnavailable
	if ue, ok := err.(interface{ Timeout() bool }); ok && ue.Timeout() {
		kind = types.FailureTimeout
	}
	return &types.ProviderError{Provider: provider, Kind: kind, Err: err}
}

// download fetches url and rejects bodies too small to be an image
func download(ctx context.Context, client *http.Client, provider, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(provider, resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return nil, transportError(provider, err)
	}
	if len(data) < 100 {
		return nil, &types.ProviderError{Provider: provider, Kind: types.FailureUnavailable,
			Err: fmt.Errorf("response too small (%d bytes)", len(data))}
	}
	return data, nil
}
