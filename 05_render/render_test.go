package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	images "toppers-pipeline/03_images"
	"toppers-pipeline/config"
	"toppers-pipeline/types"
)

// fakeRunner records invocations and creates the output file (the last arg)
type fakeRunner struct {
	calls  [][]string
	failAt int // 1-based call number that fails, 0 = never
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.failAt == len(f.calls) {
		return errors.New("ffmpeg: exit status 1")
	}
	return os.WriteFile(args[len(args)-1], []byte("media"), 0644)
}

type fixedProber time.Duration

func (p fixedProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	return time.Duration(p), nil
}

func testScript(n int) *types.Script {
	s := &types.Script{Hook: "Ten rivers you need to see", CTA: "Follow for more!"}
	for i := 0; i < n; i++ {
		rank := n - i
		s.Items = append(s.Items, types.ItemScript{
			Rank:      rank,
			Name:      fmt.Sprintf("River %d", rank),
			Narration: strings.Repeat("word ", 5+i*3),
		})
	}
	return s
}

func smallConfig() *config.Config {
	cfg := config.Default()
	cfg.Video.Width = 54
	cfg.Video.Height = 96
	return &cfg
}

var topic = types.Topic{Title: "Top 10 Rivers", Category: types.CategoryNature}

func TestBuildTimelineFillsDuration(t *testing.T) {
	for _, n := range []int{1, 3, 10} {
		for _, dur := range []float64{60, 45.5, 61.003} {
			video := config.Default().Video
			video.DurationSec = dur

			tl, err := BuildTimeline(topic, testScript(n), video)
			if err != nil {
				t.Fatalf("n=%d dur=%v: %v", n, dur, err)
			}
			if len(tl.Segments) != n+2 {
				t.Fatalf("segments = %d", len(tl.Segments))
			}
			var cursor time.Duration
			for i, seg := range tl.Segments {
				if seg.Start != cursor {
					t.Fatalf("segment %d starts at %v, want %v", i, seg.Start, cursor)
				}
				if seg.Duration <= 0 {
					t.Fatalf("segment %d has no duration", i)
				}
				cursor = seg.End()
			}
			if cursor != tl.Total || tl.Total != video.VideoDuration().Truncate(time.Millisecond) {
				t.Fatalf("n=%d dur=%v: segments end at %v, total %v", n, dur, cursor, tl.Total)
			}
		}
	}
}

func TestBuildTimelineOrderAndWeights(t *testing.T) {
	tl, err := BuildTimeline(topic, testScript(3), config.Default().Video)
	if err != nil {
		t.Fatal(err)
	}
	first, last := tl.Segments[0], tl.Segments[len(tl.Segments)-1]
	if first.Kind != types.SegmentTitle || first.Duration != 3*time.Second || first.Narration != "Ten rivers you need to see" {
		t.Errorf("title = %+v", first)
	}
	if last.Kind != types.SegmentCTA || last.Duration != 3*time.Second {
		t.Errorf("cta = %+v", last)
	}
	if tl.Segments[1].Rank != 3 || tl.Segments[3].Rank != 1 {
		t.Errorf("ranks out of order")
	}
	// longer narration gets more time
	if tl.Segments[1].Duration >= tl.Segments[3].Duration {
		t.Errorf("weights ignored: %v vs %v", tl.Segments[1].Duration, tl.Segments[3].Duration)
	}

	if _, err := BuildTimeline(topic, &types.Script{}, config.Default().Video); err == nil {
		t.Error("expected error for empty script")
	}
}

func TestFrameCountsSumExactly(t *testing.T) {
	video := config.Default().Video
	video.DurationSec = 59.987
	tl, err := BuildTimeline(topic, testScript(10), video)
	if err != nil {
		t.Fatal(err)
	}
	sum := 0
	for _, n := range frameCounts(tl, 30) {
		sum += n
	}
	want := int(tl.Total.Seconds()*30 + 0.5)
	if sum != want {
		t.Fatalf("frames = %d, want %d", sum, want)
	}
}

func TestBuildTimelineSkewedWeightsKeepEveryItem(t *testing.T) {
	video := config.Default().Video
	video.DurationSec = 7
	video.FPS = 30
	script := testScript(10)
	for i := range script.Items {
		script.Items[i].Narration = strings.Repeat("word ", 200)
	}
	script.Items[9].Narration = "one"

	tl, err := BuildTimeline(topic, script, video)
	if err != nil {
		t.Fatal(err)
	}
	var sum time.Duration
	for i, seg := range tl.Segments {
		if seg.Duration < 34*time.Millisecond {
			t.Errorf("segment %d (rank %d) lasts %v, shorter than a frame", i, seg.Rank, seg.Duration)
		}
		sum += seg.Duration
	}
	if sum != 7*time.Second {
		t.Fatalf("segments sum to %v", sum)
	}
	frames := 0
	for i, n := range frameCounts(tl, video.FPS) {
		if n < 1 {
			t.Errorf("segment %d renders %d frames", i, n)
		}
		frames += n
	}
	if frames != 210 {
		t.Errorf("frames = %d, want 210", frames)
	}

	// ten frames of item time cannot fit in 300ms
	video.DurationSec = 6.3
	if _, err := BuildTimeline(topic, script, video); err == nil {
		t.Error("expected error when items cannot get a frame each")
	}
}

func TestTempoChain(t *testing.T) {
	tests := []struct {
		factor float64
		want   string
	}{
		{1.0, ""},
		{1.5, "atempo=1.5000"},
		{2.0, "atempo=2.0000"},
		{3.0, "atempo=2.0,atempo=1.5000"},
		{5.0, "atempo=2.0,atempo=2.0,atempo=1.2500"},
	}
	for _, tt := range tests {
		if got := strings.Join(TempoChain(tt.factor), ","); got != tt.want {
			t.Errorf("TempoChain(%v) = %q, want %q", tt.factor, got, tt.want)
		}
	}
}

func TestFormatSRT(t *testing.T) {
	tl := &types.Timeline{
		Segments: []types.Segment{
			{Kind: types.SegmentTitle, Start: 0, Duration: 3 * time.Second, Narration: "Top 10 **Rivers**"},
			{Kind: types.SegmentItem, Rank: 1, Start: 3 * time.Second, Duration: 5 * time.Second, Narration: "one two three four five"},
		},
		Total: 8 * time.Second,
	}
	cues := BuildCues(tl, 4)
	if len(cues) != 3 {
		t.Fatalf("cues = %+v", cues)
	}
	if cues[2].Text != "five" || cues[2].End != 8*time.Second {
		t.Errorf("last cue = %+v", cues[2])
	}

	srt := FormatSRT(cues)
	want := "1\n00:00:00,000 --> 00:00:03,000\nTop 10 Rivers\n\n" +
		"2\n00:00:03,000 --> 00:00:07,000\none two three four\n\n" +
		"3\n00:00:07,000 --> 00:00:08,000\nfive\n\n"
	if srt != want {
		t.Errorf("srt =\n%s\nwant\n%s", srt, want)
	}
	if got := srtTime(time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond); got != "01:02:03,045" {
		t.Errorf("srtTime = %s", got)
	}
}

func TestMusicPicker(t *testing.T) {
	dir := t.TempDir()
	tags := `{"_comment": "ignored", "calm.mp3": ["nature", "calm"], "epic.mp3": ["epic", "history"], "bad.mp3": 3}`
	if err := os.WriteFile(filepath.Join(dir, "tags.json"), []byte(tags), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default().Render
	cfg.MusicDir = dir
	cfg.MusicTags = filepath.Join(dir, "tags.json")
	cfg.MusicUsageLog = filepath.Join(dir, "logs", "usage.json")

	m, err := NewMusicPicker(cfg)
	if err != nil {
		t.Fatal(err)
	}
	m.pick = func(int) int { return 0 }

	if got := m.Pick(topic); got != filepath.Join(dir, "calm.mp3") {
		t.Fatalf("first pick = %s", got)
	}
	// the previous track is skipped next time
	if got := m.Pick(topic); got != filepath.Join(dir, "epic.mp3") {
		t.Fatalf("second pick = %s", got)
	}
	if usage := m.loadUsage(); len(usage) != 2 || usage[0].File != "epic.mp3" {
		t.Errorf("usage = %+v", usage)
	}

	cfg.MusicTags = filepath.Join(dir, "missing.json")
	empty, err := NewMusicPicker(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := empty.Pick(topic); got != "" {
		t.Errorf("empty library picked %q", got)
	}
}

func assembleInput(t *testing.T, cfg *config.Config) Input {
	t.Helper()
	dir := t.TempDir()
	tl, err := BuildTimeline(topic, testScript(3), cfg.Video)
	if err != nil {
		t.Fatal(err)
	}

	src := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	img := filepath.Join(dir, "rank_3.png")
	if err := images.WritePNGFile(img, src); err != nil {
		t.Fatal(err)
	}

	var narration []types.Utterance
	for i, seg := range tl.Segments {
		p := filepath.Join(dir, fmt.Sprintf("seg_%02d.mp3", i))
		if err := os.WriteFile(p, []byte("mp3"), 0644); err != nil {
			t.Fatal(err)
		}
		narration = append(narration, types.Utterance{Path: p, Duration: seg.Duration + time.Second})
	}

	return Input{
		Topic:    topic,
		Timeline: tl,
		Slides: []types.SlideAsset{
			{Rank: 3, Name: "River 3", ImagePath: img, Status: types.SlideGenerated},
			{Rank: 2, Name: "River 2", Status: types.SlideFailed, Reason: "all providers failed"},
			{Rank: 1, Name: "River 1", Status: types.SlideFailed},
		},
		Narration: narration,
		WorkDir:   filepath.Join(dir, "work"),
		OutPath:   filepath.Join(dir, "videos", "final.mp4"),
	}
}

func TestAssemble(t *testing.T) {
	cfg := smallConfig()
	runner := &fakeRunner{}
	in := assembleInput(t, cfg)
	a := New(cfg, runner, fixedProber(60*time.Second+200*time.Millisecond))

	art, err := a.Assemble(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if art.Path != in.OutPath || art.Width != 54 || art.FPS != 30 {
		t.Errorf("artifact = %+v", art)
	}

	// failed ranks still get a frame
	for i := range in.Timeline.Segments {
		frame := runner.calls[i][3]
		if _, err := os.Stat(frame); err != nil {
			t.Fatalf("segment %d: %v", i, err)
		}
	}

	// the caller's timeline is not written to
	for i, seg := range in.Timeline.Segments {
		if seg.VisualRef != "" || seg.AudioRef != "" {
			t.Errorf("segment %d modified: %+v", i, seg)
		}
	}

	// 5 clips + concat + 5 fits + concat + mux
	if len(runner.calls) != 13 {
		t.Fatalf("ffmpeg calls = %d", len(runner.calls))
	}
	fit := strings.Join(runner.calls[6], " ")
	if !strings.Contains(fit, "atempo=") || !strings.Contains(fit, "apad") {
		t.Errorf("narration fit = %s", fit)
	}
	mux := strings.Join(runner.calls[12], " ")
	for _, want := range []string{"subtitles=", "-t 60.000", "+faststart", "libx264"} {
		if !strings.Contains(mux, want) {
			t.Errorf("mux missing %q: %s", want, mux)
		}
	}
}

func TestAssembleWithMusic(t *testing.T) {
	cfg := smallConfig()
	cfg.Render.Captions = false
	runner := &fakeRunner{}
	in := assembleInput(t, cfg)
	in.MusicPath = filepath.Join(t.TempDir(), "calm.mp3")
	a := New(cfg, runner, fixedProber(60*time.Second))

	if _, err := a.Assemble(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	mix := strings.Join(runner.calls[12], " ")
	if !strings.Contains(mix, "-stream_loop -1") || !strings.Contains(mix, "volume=0.15") || !strings.Contains(mix, "afade=t=out:st=58.000") {
		t.Errorf("mix = %s", mix)
	}
	mux := strings.Join(runner.calls[13], " ")
	if !strings.Contains(mux, "-c:v copy") || strings.Contains(mux, "subtitles=") {
		t.Errorf("mux = %s", mux)
	}
}

func TestAssembleFailures(t *testing.T) {
	tests := []struct {
		name   string
		failAt int
		probed time.Duration
		mutate func(*Input)
	}{
		{name: "duration out of tolerance", probed: 58 * time.Second},
		{name: "ffmpeg fails", failAt: 2, probed: 60 * time.Second},
		{name: "narration count mismatch", probed: 60 * time.Second, mutate: func(in *Input) { in.Narration = in.Narration[1:] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			in := assembleInput(t, cfg)
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			a := New(cfg, &fakeRunner{failAt: tt.failAt}, fixedProber(tt.probed))
			_, err := a.Assemble(context.Background(), in)
			if !errors.Is(err, types.ErrRenderFailure) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestCoverScaleFillsTarget(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 20))
	for x := 0; x < 100; x++ {
		for y := 0; y < 20; y++ {
			src.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	dst := coverScale(src, 9, 16)
	if dst.Bounds().Dx() != 9 || dst.Bounds().Dy() != 16 {
		t.Fatalf("bounds = %v", dst.Bounds())
	}
	if r, _, _, a := dst.At(0, 0).RGBA(); r>>8 < 200 || a>>8 != 255 {
		t.Errorf("corner not filled: %v", dst.At(0, 0))
	}
}
