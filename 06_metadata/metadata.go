package metadata

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"toppers-pipeline/config"
	"toppers-pipeline/types"
)

var log = logrus.WithField("stage", "metadata")

const (
	shortsTag = " #Shorts"
	// YouTube rejects tag lists longer than this in total
	maxTagChars = 500
)

var baseTags = []string{
	"top 10",
	"top 10 list",
	"countdown",
	"facts",
	"interesting",
	"educational",
	"shorts",
	"youtube shorts",
}

var visibilities = map[string]bool{"public": true, "private": true, "unlisted": true}

// Generator builds YouTube metadata from the run's text artifacts
type Generator struct {
	cfg config.UploadConfig
}

func New(cfg config.UploadConfig) *Generator {
	return &Generator{cfg: cfg}
}

// Run assembles title, description and tags for the finished video
func (g *Generator) Run(topic types.Topic, script *types.Script) *types.VideoMetadata {
	md := &types.VideoMetadata{
		Title:           Title(topic.Title, g.cfg.TitleMaxChars),
		Description:     Description(topic, script),
		Tags:            Tags(topic),
		CategoryID:      g.cfg.CategoryID,
		Visibility:      Visibility(g.cfg.Visibility),
		MadeForKids:     g.cfg.MadeForKids,
		DefaultLanguage: g.cfg.DefaultLanguage,
	}
	log.Infof("✅ Title: %q", md.Title)
	log.Infof("Tags: %d generated", len(md.Tags))
	return md
}

// Title prefixes "Top 10" when missing and adds the #Shorts marker when it
// fits within maxChars. Longer titles are cut on a rune boundary.
func Title(topic string, maxChars int) string {
	title := strings.TrimSpace(topic)
	if !strings.HasPrefix(strings.ToLower(title), "top 10") {
		title = "Top 10 " + title
	}
	if utf8.RuneCountInString(title)+len(shortsTag) <= maxChars {
		return title + shortsTag
	}
	if r := []rune(title); len(r) > maxChars {
		title = strings.TrimSpace(string(r[:maxChars]))
	}
	return title
}

// Description previews the first three ranks and closes with the CTA
func Description(topic types.Topic, script *types.Script) string {
	var sb strings.Builder
	sb.WriteString(topic.Title + "\n\n")
	if script.Hook != "" {
		sb.WriteString(script.Hook + "\n\n")
	}

	preview := script.Items[:min(3, len(script.Items))]
	for _, it := range preview {
		fmt.Fprintf(&sb, "#%d %s\n", it.Rank, it.Name)
	}
	if rest := len(script.Items) - len(preview); rest > 0 {
		fmt.Fprintf(&sb, "\n... and %d more!\n", rest)
	}
	sb.WriteString("\nWatch to see the complete countdown!\n\n")

	if script.CTA != "" {
		sb.WriteString(script.CTA + "\n\n")
	}
	sb.WriteString("What do you think about this list? Drop your opinion in the comments!\n\n")
	sb.WriteString("#top10 #top10list #shorts #youtubeshorts #facts #educational")
	return sb.String()
}

// Tags combines the category words with the fixed channel tags, deduplicated
// and capped to YouTube's total length limit.
func Tags(topic types.Topic) []string {
	var candidates []string
	if topic.Category != "" {
		candidates = append(candidates, strings.ToLower(string(topic.Category)))
		for _, w := range strings.FieldsFunc(strings.ToLower(string(topic.Category)), notLetter) {
			candidates = append(candidates, w)
		}
	}
	candidates = append(candidates, baseTags...)

	seen := make(map[string]bool)
	var tags []string
	total := 0
	for _, t := range candidates {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		if total+len(t) > maxTagChars {
			break
		}
		seen[t] = true
		tags = append(tags, t)
		total += len(t)
	}
	return tags
}

// Visibility normalizes the privacy status, falling back to public
func Visibility(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if !visibilities[v] {
		log.Warnf("Invalid visibility %q, using public", v)
		return "public"
	}
	return v
}

func notLetter(r rune) bool { return !unicode.IsLetter(r) }
