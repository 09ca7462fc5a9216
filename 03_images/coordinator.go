// Package images generates one picture per ranked item, falling back across
// providers, and draws the placeholder and title cards.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"toppers-pipeline/config"
	"toppers-pipeline/types"
)

var log = logrus.WithField("stage", "images")

// Coordinator dispatches image generation for all ranks
type Coordinator struct {
	providers      []Provider
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	timeout        time.Duration
	concurrency    int
	width, height  int
}

// NewCoordinator tries providers in the given order for every rank
func NewCoordinator(cfg *config.Config, providers ...Provider) *Coordinator {
	return &Coordinator{
		providers:      providers,
		maxRetries:     cfg.Images.MaxRetries,
		initialBackoff: cfg.Images.InitialBackoff(),
		maxBackoff:     cfg.Images.MaxBackoff(),
		timeout:        cfg.Images.Timeout(),
		concurrency:    max(cfg.Images.MaxConcurrency, 1),
		width:          cfg.Video.Width,
		height:         cfg.Video.Height,
	}
}

// Synthesize generates a slide image per prompt into dir. A rank whose
// providers all fail is reported as Failed; only cancellation is an error.
func (c *Coordinator) Synthesize(ctx context.Context, prompts []types.ImagePrompt, dir string) (*types.SynthesisResult, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create slides dir: %w", err)
	}
	log.Infof("Generating %d images with %d providers (concurrency %d)", len(prompts), len(c.providers), c.concurrency)

	slides := make([]types.SlideAsset, len(prompts))
	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for i, p := range prompts {
		g.Go(func() error {
			slides[i] = c.synthesizeOne(ctx, p, dir)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &types.SynthesisResult{Slides: slides, AllSucceeded: true}
	for _, s := range slides {
		if s.Status == types.SlideFailed {
			result.AllSucceeded = false
			result.FailedRanks = append(result.FailedRanks, s.Rank)
		}
	}
	log.WithField("failed", result.FailedRanks).Infof("✅ %d/%d images generated", result.Generated(), len(slides))
	return result, nil
}

func (c *Coordinator) synthesizeOne(ctx context.Context, p types.ImagePrompt, dir string) types.SlideAsset {
	asset := types.SlideAsset{Rank: p.Rank, Name: p.Name, Status: types.SlideFailed}
	rlog := log.WithField("rank", p.Rank)
	req := Request{Prompt: p.Text, Subject: p.Name, Width: c.width, Height: c.height}

	var reasons []string
	for _, provider := range c.providers {
		if ctx.Err() != nil {
			asset.Reason = ctx.Err().Error()
			return asset
		}
		img, err := c.withRetry(ctx, provider, req, rlog)
		if err != nil {
			rlog.WithError(err).WithField("provider", provider.Name()).Warn("Provider exhausted, falling back")
			reasons = append(reasons, fmt.Sprintf("%s: %v", provider.Name(), err))
			continue
		}

		path := filepath.Join(dir, SlideFileName(p.Rank, p.Name))
		if err := writePNG(path, img); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", provider.Name(), err))
			continue
		}
		asset.Status = types.SlideGenerated
		asset.ImagePath = path
		asset.Provider = provider.Name()
		rlog.WithField("provider", provider.Name()).Infof("Image saved: %s", path)
		return asset
	}

	asset.Reason = strings.Join(reasons, "; ")
	rlog.Warn("All image providers failed, slide will use a placeholder")
	return asset
}

// withRetry calls one provider with exponential backoff. Policy rejections,
// missing results and undecodable bytes stop immediately.
func (c *Coordinator) withRetry(ctx context.Context, provider Provider, req Request, rlog *logrus.Entry) (image.Image, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialBackoff
	eb.MaxInterval = c.maxBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.maxRetries)), ctx)

	var img image.Image
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		data, err := provider.Generate(callCtx, req)
		if err != nil {
			var pe *types.ProviderError
			if errors.As(err, &pe) && pe.Permanent() {
				return backoff.Permanent(err)
			}
			return err
		}
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			// the same provider will hand back the same bytes
			return backoff.Permanent(fmt.Errorf("decode image: %w", err))
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		rlog.WithError(err).WithField("provider", provider.Name()).Infof("Retrying in %s", wait.Round(time.Millisecond))
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return img, nil
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// SlideFileName is rank_{nn}_{name}.png with the name sanitised and capped at 30 chars
func SlideFileName(rank int, name string) string {
	safe := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if len(safe) > 30 {
		safe = strings.TrimRight(safe[:30], "_")
	}
	if safe == "" {
		safe = "item"
	}
	return fmt.Sprintf("rank_%02d_%s.png", rank, safe)
}

func writePNG(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
