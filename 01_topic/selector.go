// Package topic picks a fresh "Top 10" subject and keeps the rolling history
// of subjects already used.
package topic

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"toppers-pipeline/config"
	"toppers-pipeline/llm"
	"toppers-pipeline/types"
)

var log = logrus.WithField("stage", "topic")

const systemPrompt = `You create titles for "Top 10" list videos on YouTube Shorts.
Titles must be interesting, educational and shareable, focused on beauty, culture, intellect,
human values, nature and innovation. Respond ONLY with JSON: {"title": "...", "category": "..."}`

// templates is the offline pool used when generation is unavailable
var templates = []types.Topic{
	{Title: "Top 10 Countries with the Most Beautiful Architecture", Category: types.CategoryBeauty},
	{Title: "Top 10 Books That Changed How People Think", Category: types.CategoryIntellect},
	{Title: "Top 10 Cities Known for Their Kindness", Category: types.CategoryValues},
	{Title: "Top 10 Natural Wonders You Must See", Category: types.CategoryNature},
	{Title: "Top 10 Ancient Civilizations and Their Wisdom", Category: types.CategoryHistory},
	{Title: "Top 10 Foods That Improve Brain Function", Category: types.CategoryWellness},
	{Title: "Top 10 Innovations That Transformed Daily Life", Category: types.CategoryInnovation},
	{Title: "Top 10 Traditional Art Forms Around the World", Category: types.CategoryArts},
	{Title: "Top 10 Countries with Rich Cultural Heritage", Category: types.CategoryCulture},
	{Title: "Top 10 Places to Find Inner Peace", Category: types.CategoryWellness},
}

// Selector asks the generation backend for a topic that is not in history
type Selector struct {
	llm              llm.Provider
	inspiration      Inspiration
	maxAttempts      int
	temperature      float64
	templateFallback bool
	pick             func(n int) int
}

// NewSelector builds a Selector. inspiration may be nil.
func NewSelector(cfg *config.Config, provider llm.Provider, inspiration Inspiration) *Selector {
	return &Selector{
		llm:              provider,
		inspiration:      inspiration,
		maxAttempts:      cfg.Topic.MaxAttempts,
		temperature:      cfg.LLM.Temperature,
		templateFallback: cfg.Topic.TemplateFallback,
		pick:             rand.IntN,
	}
}

type candidate struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Select returns a topic whose normalized title is absent from history.
// It never writes history.
func (s *Selector) Select(ctx context.Context, history types.HistoryRecord) (types.Topic, error) {
	log.WithField("recent", len(history.Entries)).Info("Selecting topic")

	seeds := s.seeds(ctx)
	var rejected []string
	var genErrs []error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return types.Topic{}, err
		}
		category := types.Categories[s.pick(len(types.Categories))]
		alog := log.WithField("attempt", attempt).WithField("category", category)

		var c candidate
		err := llm.CompleteJSON(ctx, s.llm, llm.Request{
			System:      systemPrompt,
			Prompt:      buildPrompt(category, history.Titles(), rejected, seeds),
			Temperature: s.temperature,
			MaxTokens:   200,
		}, &c)
		if err != nil {
			alog.WithError(err).Warn("Topic generation failed")
			genErrs = append(genErrs, err)
			continue
		}

		title := NormalizeCandidate(c.Title)
		if title == "" {
			alog.Warn("Empty topic title")
			genErrs = append(genErrs, fmt.Errorf("%w: empty title", types.ErrGenerationFailure))
			continue
		}
		if history.Contains(title) || history.Contains(c.Title) {
			alog.Infof("Rejected recent topic %q", title)
			rejected = append(rejected, title)
			continue
		}

		alog.Infof("✅ Topic: %s", title)
		return types.Topic{Title: title, Category: resolveCategory(category, c.Category, alog)}, nil
	}

	if len(genErrs) == s.maxAttempts {
		if s.templateFallback {
			if t, ok := s.fromTemplates(history); ok {
				return t, nil
			}
		}
		return types.Topic{}, fmt.Errorf("select topic: %w: %w", types.ErrGenerationFailure, errors.Join(genErrs...))
	}
	return types.Topic{}, fmt.Errorf("select topic: no fresh title in %d attempts: %w", s.maxAttempts, types.ErrTopicExhausted)
}

func (s *Selector) seeds(ctx context.Context) []string {
	if s.inspiration == nil {
		return nil
	}
	titles, err := s.inspiration.Titles(ctx)
	if err != nil {
		log.WithError(err).Warn("Inspiration unavailable, continuing without it")
		return nil
	}
	return titles
}

func (s *Selector) fromTemplates(history types.HistoryRecord) (types.Topic, bool) {
	var fresh []types.Topic
	for _, t := range templates {
		if !history.Contains(t.Title) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 {
		return types.Topic{}, false
	}
	t := fresh[s.pick(len(fresh))]
	log.Infof("Using template topic %q", t.Title)
	return t, true
}

// resolveCategory prefers the category the model reports when it is one of
// ours. Unknown or missing values fall back to the requested one.
func resolveCategory(requested types.Category, reported string, alog *logrus.Entry) types.Category {
	if strings.TrimSpace(reported) == "" {
		return requested
	}
	got, ok := types.ParseCategory(reported)
	if !ok {
		alog.Warnf("Unknown category %q in reply, keeping %s", reported, requested)
		return requested
	}
	if got != requested {
		alog.Warnf("Model drifted to category %s", got)
	}
	return got
}

// topTenPrefix matches the loose spellings models use for the list prefix,
// e.g. "Top10", "Top 10:", "top ten -".
var topTenPrefix = regexp.MustCompile(`(?i)^top\s*(?:10|ten)\b[\s:\-\x{2013}\x{2014}]*`)

// NormalizeCandidate strips quotes and rewrites any "Top 10" variant to the
// canonical "Top 10 " prefix
func NormalizeCandidate(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'“”`)
	title = strings.TrimSpace(title)
	if loc := topTenPrefix.FindStringIndex(title); loc != nil {
		title = strings.TrimSpace(title[loc[1]:])
	}
	if title == "" {
		return ""
	}
	return "Top 10 " + title
}

func buildPrompt(category types.Category, recent, rejected, seeds []string) string {
	var sb strings.Builder
	sb.WriteString(`Generate ONE creative and engaging "Top 10" list topic for a YouTube Short video.` + "\n\n")
	sb.WriteString(fmt.Sprintf("Category: %s\n\n", category))
	sb.WriteString("Examples:\n")
	sb.WriteString("- Top 10 Countries with the Most Beautiful Landscapes\n")
	sb.WriteString("- Top 10 Cities with the Friendliest People\n")
	sb.WriteString("- Top 10 Ancient Innovations Still Used Today\n\n")

	avoid := append(append([]string{}, recent...), rejected...)
	if len(avoid) > 0 {
		sb.WriteString("AVOID these recent topics:\n")
		for _, t := range avoid {
			sb.WriteString("- " + t + "\n")
		}
		sb.WriteString("\n")
	}
	if len(seeds) > 0 {
		sb.WriteString("Loose inspiration from what people are reading this week (optional):\n")
		for _, t := range seeds {
			sb.WriteString("- " + t + "\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf(`Respond ONLY with JSON: {"title": "Top 10 ...", "category": %q}`, string(category)))
	return sb.String()
}
