package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	topic "toppers-pipeline/01_topic"
	render "toppers-pipeline/05_render"
	"toppers-pipeline/config"
	"toppers-pipeline/runlog"
	"toppers-pipeline/storage"
	"toppers-pipeline/types"
)

var rivers = types.Topic{Title: "Top 10 Rivers of Europe", Category: types.CategoryNature}

type fakeTopics struct{ err error }

func (f fakeTopics) Select(ctx context.Context, history types.HistoryRecord) (types.Topic, error) {
	return rivers, f.err
}

type fakeResearch struct{ err error }

func (f fakeResearch) Research(ctx context.Context, t types.Topic) ([]types.RankedItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	var items []types.RankedItem
	for rank := 10; rank >= 1; rank-- {
		items = append(items, types.RankedItem{Rank: rank, Name: fmt.Sprintf("River %d", rank), VisualContext: "wide river valley"})
	}
	return items, nil
}

func (fakeResearch) WriteScript(ctx context.Context, t types.Topic, items []types.RankedItem) (*types.Script, error) {
	s := &types.Script{Hook: "Europe's rivers ranked.", CTA: "Follow for more!"}
	for _, it := range items {
		s.Items = append(s.Items, types.ItemScript{Rank: it.Rank, Name: it.Name, Narration: "A long and lovely river with a story."})
	}
	return s, nil
}

func (fakeResearch) ImagePrompts(items []types.RankedItem) ([]types.ImagePrompt, error) {
	var out []types.ImagePrompt
	for _, it := range items {
		out = append(out, types.ImagePrompt{Rank: it.Rank, Name: it.Name, Text: it.Name + " " + it.VisualContext})
	}
	return out, nil
}

// fakeImages fails the listed ranks
type fakeImages struct{ failed []int }

func (f fakeImages) Synthesize(ctx context.Context, prompts []types.ImagePrompt, dir string) (*types.SynthesisResult, error) {
	res := &types.SynthesisResult{AllSucceeded: true}
	for _, p := range prompts {
		s := types.SlideAsset{Rank: p.Rank, Name: p.Name, Status: types.SlideGenerated, ImagePath: filepath.Join(dir, "x.png")}
		if slices.Contains(f.failed, p.Rank) {
			s.Status = types.SlideFailed
			s.ImagePath = ""
			res.AllSucceeded = false
			res.FailedRanks = append(res.FailedRanks, p.Rank)
		}
		res.Slides = append(res.Slides, s)
	}
	return res, nil
}

type fakeNarrator struct{}

func (fakeNarrator) Narrate(ctx context.Context, segments []types.Segment, dir string) ([]types.Utterance, error) {
	out := make([]types.Utterance, len(segments))
	for i, seg := range segments {
		out[i] = types.Utterance{Path: filepath.Join(dir, fmt.Sprintf("seg_%02d.mp3", i)), Duration: seg.Duration}
	}
	return out, nil
}

type fakeAssembler struct {
	cancel context.CancelFunc
	got    render.Input
}

func (f *fakeAssembler) Assemble(ctx context.Context, in render.Input) (*types.VideoArtifact, error) {
	f.got = in
	if f.cancel != nil {
		f.cancel()
		return nil, fmt.Errorf("%w: %w", types.ErrRenderFailure, ctx.Err())
	}
	if err := os.MkdirAll(filepath.Dir(in.OutPath), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(in.OutPath, []byte("mp4"), 0644); err != nil {
		return nil, err
	}
	return &types.VideoArtifact{Path: in.OutPath, Width: 1080, Height: 1920, FPS: 30, Duration: in.Timeline.Total}, nil
}

type fakePublisher struct {
	err   error
	calls int
}

func (f *fakePublisher) Publish(ctx context.Context, videoFile string, md *types.VideoMetadata) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	return "vid42", "https://www.youtube.com/watch?v=vid42", nil
}

type harness struct {
	ctrl      *Controller
	store     *storage.Memory
	history   *topic.HistoryStore
	ledger    *runlog.Ledger
	publisher *fakePublisher
	assembler *fakeAssembler
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Output = t.TempDir()

	ledger, err := runlog.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })

	h := &harness{
		store:     storage.NewMemory(),
		ledger:    ledger,
		publisher: &fakePublisher{},
		assembler: &fakeAssembler{},
	}
	h.history = topic.NewHistoryStore(h.store, cfg.History.Object, cfg.History.Window)
	deps := Deps{
		History:   h.history,
		Topics:    fakeTopics{},
		Research:  fakeResearch{},
		Images:    fakeImages{},
		Narrator:  fakeNarrator{},
		Assembler: h.assembler,
		Artifacts: storage.NewArtifacts(h.store),
		Publisher: h.publisher,
		Ledger:    ledger,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.ctrl = New(&cfg, deps)
	h.ctrl.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	h.ctrl.newID = func() string { return "run00001" }
	return h
}

func (h *harness) historyTitles(t *testing.T) []string {
	t.Helper()
	rec, err := h.history.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return rec.Titles()
}

func TestRunPublishes(t *testing.T) {
	h := newHarness(t, nil)

	report, err := h.ctrl.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.State != types.StatePublished || report.VideoID != "vid42" || !report.HistoryUpdated {
		t.Fatalf("report = %+v", report)
	}
	if report.Timestamp != "20260301_093000" || report.ContentPath != "content_20260301_093000.json" {
		t.Errorf("timestamp/content = %s %s", report.Timestamp, report.ContentPath)
	}
	if titles := h.historyTitles(t); len(titles) != 1 || titles[0] != rivers.Title {
		t.Errorf("history = %v", titles)
	}
	names := h.store.Names()
	if !slices.Contains(names, "videos_20260301_093000.mp4") || !slices.Contains(names, "content_20260301_093000.json") {
		t.Errorf("stored objects = %v", names)
	}

	in := h.assembler.got
	if len(in.Narration) != len(in.Timeline.Segments) || len(in.Slides) != 10 {
		t.Errorf("assembler input: %d narration, %d segments, %d slides", len(in.Narration), len(in.Timeline.Segments), len(in.Slides))
	}

	entries, err := h.ledger.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].State != types.StatePublished || entries[0].VideoID != "vid42" {
		t.Errorf("ledger = %+v", entries)
	}
}

func TestRunResearchFailure(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Research = fakeResearch{err: fmt.Errorf("research: %w", types.ErrIncompleteResearch)}
	})

	report, err := h.ctrl.Run(context.Background())
	if !errors.Is(err, types.ErrIncompleteResearch) {
		t.Fatalf("err = %v", err)
	}
	var stageErr *types.StageError
	if !errors.As(err, &stageErr) || stageErr.State != types.StateTopicSelected {
		t.Errorf("stage error = %v", err)
	}
	if report.State != types.StateFailed || report.LastGoodState != types.StateTopicSelected {
		t.Errorf("report = %s / %s", report.State, report.LastGoodState)
	}
	if report.HistoryUpdated || len(h.historyTitles(t)) != 0 {
		t.Error("failed run must not touch history")
	}
	if h.publisher.calls != 0 {
		t.Error("failed run must not publish")
	}

	entries, _ := h.ledger.Recent(context.Background(), 1)
	if len(entries) != 1 || entries[0].State != types.StateFailed || entries[0].Error == "" {
		t.Errorf("ledger = %+v", entries)
	}
}

func TestRunTopicExhausted(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Topics = fakeTopics{err: types.ErrTopicExhausted}
	})
	report, err := h.ctrl.Run(context.Background())
	if !errors.Is(err, types.ErrTopicExhausted) || report.LastGoodState != types.StateIdle || report.Topic != nil {
		t.Fatalf("report = %+v, err = %v", report, err)
	}
}

func TestRunPublishFailureKeepsVideo(t *testing.T) {
	h := newHarness(t, nil)
	h.publisher.err = errors.New("quota exceeded")

	report, err := h.ctrl.Run(context.Background())
	if !errors.Is(err, types.ErrPublishFailure) {
		t.Fatalf("err = %v", err)
	}
	if report.State != types.StateFailed || report.LastGoodState != types.StateVideoReady {
		t.Errorf("report = %s / %s", report.State, report.LastGoodState)
	}
	if report.Err != nil || !errors.Is(report.PublishErr, types.ErrPublishFailure) {
		t.Errorf("errors = %v / %v", report.Err, report.PublishErr)
	}
	if !report.HistoryUpdated || len(h.historyTitles(t)) != 1 {
		t.Error("history must be kept after a publish failure")
	}
	if report.Video == nil {
		t.Fatal("video artifact missing")
	}
	if _, err := os.Stat(report.Video.Path); err != nil {
		t.Errorf("video removed: %v", err)
	}
}

func TestRunImageGating(t *testing.T) {
	t.Run("partial failure continues with placeholders", func(t *testing.T) {
		h := newHarness(t, func(d *Deps) { d.Images = fakeImages{failed: []int{3, 7}} })
		report, err := h.ctrl.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(report.FailedRanks, []int{7, 3}) {
			t.Errorf("failed ranks = %v", report.FailedRanks)
		}
	})

	t.Run("nothing generated aborts", func(t *testing.T) {
		h := newHarness(t, func(d *Deps) { d.Images = fakeImages{failed: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}} })
		report, err := h.ctrl.Run(context.Background())
		if !errors.Is(err, types.ErrImageSynthesisFailure) {
			t.Fatalf("err = %v", err)
		}
		if report.LastGoodState != types.StateScripted || len(report.FailedRanks) != 10 {
			t.Errorf("report = %+v", report)
		}
		if len(h.historyTitles(t)) != 0 {
			t.Error("history must stay empty")
		}
	})
}

func TestRunUploadDisabled(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Publisher = nil })
	report, err := h.ctrl.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.State != types.StateVideoReady || !report.HistoryUpdated || report.VideoID != "" {
		t.Errorf("report = %+v", report)
	}
}

func TestRunCancelledDuringRender(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, nil)
	h.assembler.cancel = cancel

	report, err := h.ctrl.Run(ctx)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, types.ErrRenderFailure) {
		t.Fatalf("err = %v", err)
	}
	if report.LastGoodState != types.StateImagesReady {
		t.Errorf("last good = %s", report.LastGoodState)
	}
	if len(h.historyTitles(t)) != 0 || h.publisher.calls != 0 {
		t.Error("cancelled run must not append history or publish")
	}
	// the ledger still records the outcome
	entries, _ := h.ledger.Recent(context.Background(), 1)
	if len(entries) != 1 || entries[0].State != types.StateFailed {
		t.Errorf("ledger = %+v", entries)
	}
}
