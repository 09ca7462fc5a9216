package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"toppers-pipeline/types"
)

// OpenAI generates portrait images with DALL-E 3
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewOpenAI(client *http.Client, baseURL, apiKey string) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAI{httpClient: client, baseURL: baseURL, apiKey: apiKey}
}

func (o *OpenAI) Name() string { return "dalle" }

type dalleRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size"`
	Quality        string `json:"quality"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type dalleResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAI) Generate(ctx context.Context, req Request) ([]byte, error) {
	body, err := json.Marshal(dalleRequest{
		Model:          "dall-e-3",
		Prompt:         req.Prompt,
		Size:           "1024x1792", // closest portrait size to 9:16
		Quality:        "standard",
		N:              1,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(o.Name(), err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(o.Name(), err)
	}

	var out dalleResponse
	decodeErr := json.Unmarshal(respBytes, &out)

	if resp.StatusCode != http.StatusOK {
		kind := classifyStatus(resp.StatusCode)
		msg := string(respBytes)
		if out.Error != nil {
			msg = out.Error.Message
			if out.Error.Code == "content_policy_violation" {
				kind = types.FailurePolicyRejection
			}
		}
		return nil, &types.ProviderError{Provider: o.Name(), Kind: kind, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)}
	}
	if decodeErr != nil {
		return nil, &types.ProviderError{Provider: o.Name(), Kind: types.FailureUnavailable, Err: fmt.Errorf("decode dalle response: %w", decodeErr)}
	}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return nil, &types.ProviderError{Provider: o.Name(), Kind: types.FailureUnavailable, Err: fmt.Errorf("empty response")}
	}

	data, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode dalle image: %w", err)
	}
	return data, nil
}
