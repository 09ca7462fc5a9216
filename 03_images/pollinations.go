package images

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
)

// Pollinations generates images via Pollinations.ai (free, no key needed)
type Pollinations struct {
	httpClient *http.Client
	baseURL    string
}

func NewPollinations(client *http.Client, baseURL string) *Pollinations {
	if baseURL == "" {
		baseURL = "https://image.pollinations.ai"
	}
	return &Pollinations{httpClient: client, baseURL: baseURL}
}

func (p *Pollinations) Name() string { return "pollinations" }

func (p *Pollinations) Generate(ctx context.Context, req Request) ([]byte, error) {
	prompt := req.Prompt + ", no text, no watermark"
	imageURL := fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&nologo=true&model=flux&seed=%d",
		p.baseURL, url.PathEscape(prompt), req.Width, req.Height, seed(req.Prompt))
	return download(ctx, p.httpClient, p.Name(), imageURL)
}

// seed is stable per prompt so reruns reproduce the same picture
func seed(prompt string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	return h.Sum32() % 1000000
}
