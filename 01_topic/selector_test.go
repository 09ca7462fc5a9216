package topic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"toppers-pipeline/config"
	"toppers-pipeline/llm"
	"toppers-pipeline/types"
)

// scriptedLLM replays canned replies in order
type scriptedLLM struct {
	replies []string
	errs    []error
	prompts []string
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, req.Prompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.replies) {
		return nil, errors.New("no more replies")
	}
	return &llm.Response{Content: s.replies[i]}, nil
}

type staticInspiration struct {
	titles []string
	err    error
}

func (s staticInspiration) Titles(ctx context.Context) ([]string, error) { return s.titles, s.err }

func newSelector(p llm.Provider, insp Inspiration) *Selector {
	cfg := config.Default()
	s := NewSelector(&cfg, p, insp)
	s.pick = func(n int) int { return 3 } // Nature & Geography
	return s
}

func TestSelectEmptyHistory(t *testing.T) {
	p := &scriptedLLM{replies: []string{`{"title":"Top 10 Countries","category":"Nature & Geography"}`}}

	got, err := newSelector(p, nil).Select(context.Background(), types.HistoryRecord{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Top 10 Countries" || got.Category != types.CategoryNature {
		t.Fatalf("got %+v", got)
	}
}

func TestSelectSkipsRecentTopics(t *testing.T) {
	history := types.HistoryRecord{Entries: []types.HistoryEntry{
		{Title: "Top 10 Countries"}, {Title: "Top 10 Cities"}, {Title: "Top 10 Lakes"},
	}}
	p := &scriptedLLM{replies: []string{
		`{"title":"Top 10 Countries"}`,
		"```json\n{\"title\":\"top 10 cities\"}\n```",
		`{"title":"\"Top 10 Lakes\""}`,
		`{"title":"Rivers"}`,
	}}

	got, err := newSelector(p, nil).Select(context.Background(), history)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Top 10 Rivers" {
		t.Fatalf("got %q", got.Title)
	}
	if len(p.prompts) != 4 {
		t.Fatalf("calls = %d", len(p.prompts))
	}
	if !strings.Contains(p.prompts[3], "Top 10 Lakes") {
		t.Error("rejected titles should be listed in later prompts")
	}
}

func TestSelectRejectsPrefixVariantsOfRecentTopic(t *testing.T) {
	history := types.HistoryRecord{Entries: []types.HistoryEntry{{Title: "Top 10 Rivers"}}}
	p := &scriptedLLM{replies: []string{
		`{"title":"Top 10: Rivers"}`,
		`{"title":"Top10 Rivers"}`,
		`{"title":"Top 10 Lakes"}`,
	}}

	got, err := newSelector(p, nil).Select(context.Background(), history)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Top 10 Lakes" || len(p.prompts) != 3 {
		t.Fatalf("got %q after %d calls", got.Title, len(p.prompts))
	}
}

func TestSelectCategoryFromReply(t *testing.T) {
	tests := []struct {
		reply string
		want  types.Category
	}{
		{`{"title":"Top 10 Street Foods","category":"food & cuisine"}`, types.CategoryFood},
		{`{"title":"Top 10 Street Foods","category":"Snacks"}`, types.CategoryNature},
		{`{"title":"Top 10 Street Foods"}`, types.CategoryNature},
	}
	for _, tt := range tests {
		got, err := newSelector(&scriptedLLM{replies: []string{tt.reply}}, nil).Select(context.Background(), types.HistoryRecord{})
		if err != nil {
			t.Fatal(err)
		}
		if got.Category != tt.want {
			t.Errorf("reply %s: category = %q, want %q", tt.reply, got.Category, tt.want)
		}
	}
}

func TestSelectExhausted(t *testing.T) {
	history := types.HistoryRecord{Entries: []types.HistoryEntry{{Title: "Top 10 Countries"}}}
	replies := make([]string, 5)
	for i := range replies {
		replies[i] = `{"title":"Top 10 Countries"}`
	}

	_, err := newSelector(&scriptedLLM{replies: replies}, nil).Select(context.Background(), history)
	if !errors.Is(err, types.ErrTopicExhausted) {
		t.Fatalf("got %v", err)
	}
}

func TestSelectAllGenerationErrors(t *testing.T) {
	down := errors.New("503")
	p := &scriptedLLM{errs: []error{down, down, down, down, down}}

	_, err := newSelector(p, nil).Select(context.Background(), types.HistoryRecord{})
	if !errors.Is(err, types.ErrGenerationFailure) {
		t.Fatalf("got %v", err)
	}
	if errors.Is(err, types.ErrTopicExhausted) {
		t.Fatal("generation errors are not exhaustion")
	}
}

func TestSelectTemplateFallback(t *testing.T) {
	down := errors.New("503")
	p := &scriptedLLM{errs: []error{down, down, down, down, down}}
	s := newSelector(p, nil)
	s.templateFallback = true
	s.pick = func(n int) int { return 0 }

	history := types.HistoryRecord{Entries: []types.HistoryEntry{{Title: templates[0].Title}}}
	got, err := s.Select(context.Background(), history)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != templates[1].Title {
		t.Fatalf("got %q", got.Title)
	}
}

func TestSelectUsesInspiration(t *testing.T) {
	p := &scriptedLLM{replies: []string{`{"title":"Top 10 Rivers"}`}}
	insp := staticInspiration{titles: []string{"TIL the Amazon has no bridges"}}

	if _, err := newSelector(p, insp).Select(context.Background(), types.HistoryRecord{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.prompts[0], "Amazon has no bridges") {
		t.Error("inspiration missing from prompt")
	}

	// a failing source is ignored
	p = &scriptedLLM{replies: []string{`{"title":"Top 10 Rivers"}`}}
	if _, err := newSelector(p, staticInspiration{err: errors.New("403")}).Select(context.Background(), types.HistoryRecord{}); err != nil {
		t.Fatal(err)
	}
}

func TestNormalizeCandidate(t *testing.T) {
	tests := []struct{ in, want string }{
		{`"Top 10 Rivers"`, "Top 10 Rivers"},
		{"top 10 rivers", "Top 10 rivers"},
		{"Top Ten Rivers", "Top 10 Rivers"},
		{"Top 10: Rivers", "Top 10 Rivers"},
		{"Top10 Rivers", "Top 10 Rivers"},
		{"top ten - Rivers", "Top 10 Rivers"},
		{"TOP 10 – Rivers", "Top 10 Rivers"},
		{"Top 10", ""},
		{"Rivers of Europe", "Top 10 Rivers of Europe"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCandidate(tt.in); got != tt.want {
			t.Errorf("NormalizeCandidate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
