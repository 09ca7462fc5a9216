package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"toppers-pipeline/types"
)

// Stability generates images with Stable Diffusion XL
type Stability struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewStability(client *http.Client, baseURL, apiKey string) *Stability {
	if baseURL == "" {
		baseURL = "https://api.stability.ai"
	}
	return &Stability{httpClient: client, baseURL: baseURL, apiKey: apiKey}
}

func (s *Stability) Name() string { return "stability" }

type textPrompt struct {
	Text string `json:"text"`
}

type stabilityRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	CfgScale    int          `json:"cfg_scale"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Samples     int          `json:"samples"`
	Steps       int          `json:"steps"`
}

type stabilityResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

func (s *Stability) Generate(ctx context.Context, req Request) ([]byte, error) {
	// SDXL only accepts fixed sizes; 768x1344 is its 9:16 portrait
	body, err := json.Marshal(stabilityRequest{
		TextPrompts: []textPrompt{{Text: req.Prompt}},
		CfgScale:    7,
		Height:      1344,
		Width:       768,
		Samples:     1,
		Steps:       30,
	})
	if err != nil {
		return nil, err
	}

	url := s.baseURL + "/v1/generation/stable-diffusion-xl-1024-v1-0/text-to-image"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(s.Name(), resp)
	}

	var out stabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse stability response: %w", err)
	}
	if len(out.Artifacts) == 0 {
		return nil, &types.ProviderError{Provider: s.Name(), Kind: types.FailureUnavailable, Err: fmt.Errorf("no artifacts")}
	}
	if out.Artifacts[0].FinishReason == "CONTENT_FILTERED" {
		return nil, &types.ProviderError{Provider: s.Name(), Kind: types.FailurePolicyRejection, Err: fmt.Errorf("content filtered")}
	}
	return base64.StdEncoding.DecodeString(out.Artifacts[0].Base64)
}
