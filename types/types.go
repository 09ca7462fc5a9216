package types

import (
	"strings"
	"time"
	"unicode"
)

// Category is one of the fixed topic categories a Top 10 list can belong to
type Category string

const (
	CategoryBeauty     Category = "Beauty & Aesthetics"
	CategoryIntellect  Category = "Intelligence & Education"
	CategoryCulture    Category = "Culture & Traditions"
	CategoryNature     Category = "Nature & Geography"
	CategoryFood       Category = "Food & Cuisine"
	CategoryHistory    Category = "History & Heritage"
	CategoryInnovation Category = "Innovation & Technology"
	CategoryArts       Category = "Arts & Creativity"
	CategoryWellness   Category = "Wellness & Lifestyle"
	CategoryValues     Category = "Human Values & Character"
)

// Categories lists every valid category in a stable order
var Categories = []Category{
	CategoryBeauty,
	CategoryIntellect,
	CategoryCulture,
	CategoryNature,
	CategoryFood,
	CategoryHistory,
	CategoryInnovation,
	CategoryArts,
	CategoryWellness,
	CategoryValues,
}

// ParseCategory matches s against the category enum, ignoring case and surrounding space
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// Topic is the chosen Top 10 subject for one run
type Topic struct {
	Title    string   `json:"topic"`
	Category Category `json:"category"`
}

// HistoryEntry is one persisted topic in the history window
type HistoryEntry struct {
	Title    string   `json:"topic"`
	Category Category `json:"category"`
	AddedAt  string   `json:"timestamp"`
}

// HistoryRecord holds recently used topics, newest first
type HistoryRecord struct {
	Entries []HistoryEntry `json:"entries"`
}

// Titles returns the topic titles newest first
func (h HistoryRecord) Titles() []string {
	out := make([]string, 0, len(h.Entries))
	for _, e := range h.Entries {
		out = append(out, e.Title)
	}
	return out
}

// Contains reports whether title matches any entry after normalization
func (h HistoryRecord) Contains(title string) bool {
	norm := NormalizeTitle(title)
	for _, e := range h.Entries {
		if NormalizeTitle(e.Title) == norm {
			return true
		}
	}
	return false
}

// NormalizeTitle folds case, drops punctuation and collapses whitespace
func NormalizeTitle(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '_':
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// RankedItem is one entry of the researched Top 10 list
type RankedItem struct {
	Rank           int      `json:"rank"`
	Name           string   `json:"name"`
	Tagline        string   `json:"tagline,omitempty"`
	KeyFacts       []string `json:"key_facts"`
	SurprisingFact string   `json:"surprising_fact"`
	NarrationFocus string   `json:"narration_focus"`
	VisualContext  string   `json:"visual_context"`
}

// ItemScript is the narration for a single ranked item
type ItemScript struct {
	Rank      int    `json:"rank"`
	Name      string `json:"name"`
	Narration string `json:"script"`
}

// Script is the full spoken narration for one video
type Script struct {
	Hook      string       `json:"hook"`
	Items     []ItemScript `json:"items_script"`
	CTA       string       `json:"cta"`
	Text      string       `json:"text"`
	WordCount int          `json:"word_count"`
}

// ImagePrompt is the image-generation prompt for one ranked item
type ImagePrompt struct {
	Rank int    `json:"rank"`
	Name string `json:"name"`
	Text string `json:"prompt"`
}

// Content bundles all text artifacts of a run (saved as content_{ts}.json)
type Content struct {
	Topic   Topic         `json:"topic"`
	Items   []RankedItem  `json:"research"`
	Script  Script        `json:"script"`
	Prompts []ImagePrompt `json:"image_prompts"`
}

// SlideStatus marks whether an item image was produced
type SlideStatus string

const (
	SlideGenerated SlideStatus = "generated"
	SlideFailed    SlideStatus = "failed"
)

// SlideAsset is the outcome of image synthesis for one rank
type SlideAsset struct {
	Rank      int         `json:"rank"`
	Name      string      `json:"name"`
	ImagePath string      `json:"image_path,omitempty"`
	Status    SlideStatus `json:"status"`
	Provider  string      `json:"provider,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// SynthesisResult aggregates the per-rank image outcomes
type SynthesisResult struct {
	Slides       []SlideAsset `json:"slides"`
	AllSucceeded bool         `json:"all_succeeded"`
	FailedRanks  []int        `json:"failed_ranks"`
}

// Generated counts slides that have a real image
func (r SynthesisResult) Generated() int {
	n := 0
	for _, s := range r.Slides {
		if s.Status == SlideGenerated {
			n++
		}
	}
	return n
}

// SegmentKind is the role of a timeline segment
type SegmentKind string

const (
	SegmentTitle SegmentKind = "title"
	SegmentItem  SegmentKind = "item"
	SegmentCTA   SegmentKind = "cta"
)

// Segment is one time-bounded unit of the final video
type Segment struct {
	Kind      SegmentKind   `json:"kind"`
	Rank      int           `json:"rank,omitempty"`
	Start     time.Duration `json:"start"`
	Duration  time.Duration `json:"duration"`
	Narration string        `json:"narration"`
	VisualRef string        `json:"visual_ref,omitempty"`
	AudioRef  string        `json:"audio_ref,omitempty"`
}

// End is the exclusive end time of the segment
func (s Segment) End() time.Duration {
	return s.Start + s.Duration
}

// Timeline is the ordered, gap-free layout of the video
type Timeline struct {
	Segments []Segment     `json:"segments"`
	Total    time.Duration `json:"total"`
}

// Utterance is a synthesized narration clip for one segment
type Utterance struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
}

// VideoArtifact is the rendered output file
type VideoArtifact struct {
	Path     string        `json:"path"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	FPS      int           `json:"fps"`
	Duration time.Duration `json:"duration"`
}

// VideoMetadata holds all YouTube upload metadata
type VideoMetadata struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	CategoryID      string   `json:"category_id"`
	Visibility      string   `json:"visibility"`
	MadeForKids     bool     `json:"made_for_kids"`
	DefaultLanguage string   `json:"default_language"`
}
