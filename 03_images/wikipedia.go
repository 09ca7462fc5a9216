package images

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"toppers-pipeline/types"
)

// Wikipedia uses the lead image of the item's Wikipedia article. It is a
// lookup rather than a generator, so it only helps for named real things.
type Wikipedia struct {
	httpClient *http.Client
	baseURL    string
}

func NewWikipedia(client *http.Client, baseURL string) *Wikipedia {
	if baseURL == "" {
		baseURL = "https://en.wikipedia.org"
	}
	return &Wikipedia{httpClient: client, baseURL: baseURL}
}

func (w *Wikipedia) Name() string { return "wikipedia" }

func (w *Wikipedia) Generate(ctx context.Context, req Request) ([]byte, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, &types.ProviderError{Provider: w.Name(), Kind: types.FailureNoResult, Err: fmt.Errorf("no subject")}
	}

	summaryURL := fmt.Sprintf("%s/api/rest_v1/page/summary/%s", w.baseURL,
		url.PathEscape(strings.ReplaceAll(subject, " ", "_")))
	httpReq, err := http.NewRequestWithContext(ctx, "GET", summaryURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", "ToppersPipeline/1.0 (educational)")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(w.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(w.Name(), resp)
	}

	var result struct {
		Thumbnail struct {
			Source string `json:"source"`
		} `json:"thumbnail"`
		OriginalImage struct {
			Source string `json:"source"`
		} `json:"originalimage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse wikipedia summary: %w", err)
	}

	imgURL := result.OriginalImage.Source
	if imgURL == "" {
		imgURL = result.Thumbnail.Source
	}
	if imgURL == "" {
		return nil, &types.ProviderError{Provider: w.Name(), Kind: types.FailureNoResult,
			Err: fmt.Errorf("no image for %q", subject)}
	}
	return download(ctx, w.httpClient, w.Name(), imgURL)
}
