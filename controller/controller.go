// Package controller drives one pipeline run through its state machine:
// topic, research, script, images, video, publish.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	render "toppers-pipeline/05_render"
	metadata "toppers-pipeline/06_metadata"
	upload "toppers-pipeline/07_upload"
	"toppers-pipeline/config"
	"toppers-pipeline/types"
)

var log = logrus.WithField("stage", "controller")

// TimestampLayout names the per-run artifacts (content_{ts}.json, videos_{ts}.mp4)
const TimestampLayout = "20060102_150405"

type History interface {
	Load(ctx context.Context) (types.HistoryRecord, error)
	Append(ctx context.Context, t types.Topic) error
}

type TopicSelector interface {
	Select(ctx context.Context, history types.HistoryRecord) (types.Topic, error)
}

type Researcher interface {
	Research(ctx context.Context, topic types.Topic) ([]types.RankedItem, error)
	WriteScript(ctx context.Context, topic types.Topic, items []types.RankedItem) (*types.Script, error)
	ImagePrompts(items []types.RankedItem) ([]types.ImagePrompt, error)
}

type ImageSynthesizer interface {
	Synthesize(ctx context.Context, prompts []types.ImagePrompt, dir string) (*types.SynthesisResult, error)
}

type Narrator interface {
	Narrate(ctx context.Context, segments []types.Segment, dir string) ([]types.Utterance, error)
}

type MusicPicker interface {
	Pick(topic types.Topic) string
}

type Assembler interface {
	Assemble(ctx context.Context, in render.Input) (*types.VideoArtifact, error)
}

type Artifacts interface {
	SaveContent(ctx context.Context, ts string, content *types.Content) (string, error)
	SaveVideo(ctx context.Context, ts, path string) (string, error)
}

type Ledger interface {
	Start(ctx context.Context, runID, ts string, startedAt time.Time) error
	Finish(ctx context.Context, r *types.RunReport, completedAt time.Time) error
}

// Deps are the stage collaborators. Music, Publisher and Ledger are optional;
// a nil Publisher means uploads are disabled and the run ends at VideoReady.
type Deps struct {
	History   History
	Topics    TopicSelector
	Research  Researcher
	Images    ImageSynthesizer
	Narrator  Narrator
	Music     MusicPicker
	Assembler Assembler
	Metadata  *metadata.Generator
	Artifacts Artifacts
	Publisher upload.Publisher
	Ledger    Ledger
}

// Controller owns the state of one run at a time
type Controller struct {
	cfg   *config.Config
	deps  Deps
	now   func() time.Time
	newID func() string
}

func New(cfg *config.Config, deps Deps) *Controller {
	if deps.Metadata == nil {
		deps.Metadata = metadata.New(cfg.Upload)
	}
	return &Controller{
		cfg:   cfg,
		deps:  deps,
		now:   time.Now,
		newID: func() string { return uuid.NewString()[:8] },
	}
}

// run is the mutable state of a single execution
type run struct {
	report *types.RunReport
	state  types.PipelineState
	log    *logrus.Entry
}

func (r *run) advance(next types.PipelineState) error {
	if !r.state.CanAdvance(next) {
		return fmt.Errorf("illegal transition %s -> %s", r.state, next)
	}
	r.log.Infof("State: %s -> %s", r.state, next)
	r.state = next
	r.report.State = next
	r.report.LastGoodState = next
	return nil
}

func (r *run) fail(err error) error {
	stageErr := &types.StageError{State: r.state, Err: err}
	r.report.LastGoodState = r.state
	r.report.State = types.StateFailed
	r.report.Err = stageErr
	r.report.Error = stageErr.Error()
	r.state = types.StateFailed
	return stageErr
}

// Run executes the pipeline once. The returned error is the stage failure or,
// for a rendered but unpublished video, the publish error.
func (c *Controller) Run(ctx context.Context) (*types.RunReport, error) {
	started := c.now()
	ts := started.UTC().Format(TimestampLayout)
	r := &run{
		report: &types.RunReport{
			RunID:         c.newID(),
			Timestamp:     ts,
			StartedAt:     started.UTC().Format(time.RFC3339),
			State:         types.StateIdle,
			LastGoodState: types.StateIdle,
		},
		state: types.StateIdle,
	}
	r.log = log.WithField("run_id", r.report.RunID)
	r.log.Infof("🎬 Toppers pipeline starting (ts %s)", ts)

	if c.deps.Ledger != nil {
		if err := c.deps.Ledger.Start(ctx, r.report.RunID, ts, started); err != nil {
			r.log.WithError(err).Warn("Run ledger unavailable")
		}
	}

	if err := c.execute(ctx, r, ts); err != nil && r.state != types.StateFailed {
		r.fail(err)
	}

	completed := c.now()
	r.report.CompletedAt = completed.UTC().Format(time.RFC3339)
	if c.deps.Ledger != nil {
		if lerr := c.deps.Ledger.Finish(context.WithoutCancel(ctx), r.report, completed); lerr != nil {
			r.log.WithError(lerr).Warn("Could not record run outcome")
		}
	}
	c.saveReport(r.report, ts)

	switch {
	case r.report.Err != nil:
		r.log.WithError(r.report.Err).Errorf("❌ Pipeline failed after %s", r.report.LastGoodState)
		return r.report, r.report.Err
	case r.report.PublishErr != nil:
		r.log.WithError(r.report.PublishErr).Error("❌ Video rendered but not published")
		return r.report, r.report.PublishErr
	}
	r.log.Infof("✅ Pipeline complete: %s", r.report.State)
	return r.report, nil
}

func (c *Controller) execute(ctx context.Context, r *run, ts string) error {
	// Topic
	r.log.Info("━━━ STAGE 1: Topic ━━━")
	history, err := c.deps.History.Load(ctx)
	if err != nil {
		return r.fail(fmt.Errorf("load history: %w", err))
	}
	topic, err := c.deps.Topics.Select(ctx, history)
	if err != nil {
		return r.fail(fmt.Errorf("select topic: %w", err))
	}
	r.report.Topic = &topic
	if err := r.advance(types.StateTopicSelected); err != nil {
		return err
	}

	// Research
	r.log.Info("━━━ STAGE 2: Research ━━━")
	items, err := c.deps.Research.Research(ctx, topic)
	if err != nil {
		return r.fail(err)
	}
	if err := r.advance(types.StateResearched); err != nil {
		return err
	}

	// Script and prompts
	r.log.Info("━━━ STAGE 3: Script ━━━")
	script, err := c.deps.Research.WriteScript(ctx, topic, items)
	if err != nil {
		return r.fail(err)
	}
	prompts, err := c.deps.Research.ImagePrompts(items)
	if err != nil {
		return r.fail(err)
	}
	content := &types.Content{Topic: topic, Items: items, Script: *script, Prompts: prompts}
	name, err := c.deps.Artifacts.SaveContent(ctx, ts, content)
	if err != nil {
		return r.fail(err)
	}
	r.report.ContentPath = name
	if err := r.advance(types.StateScripted); err != nil {
		return err
	}

	// Images
	r.log.Info("━━━ STAGE 4: Images ━━━")
	result, err := c.deps.Images.Synthesize(ctx, prompts, c.outputPath(c.cfg.Paths.Slides, "slides_"+ts))
	if err != nil {
		return r.fail(fmt.Errorf("%w: %w", types.ErrImageSynthesisFailure, err))
	}
	r.report.FailedRanks = result.FailedRanks
	if got := result.Generated(); got < c.cfg.Images.MinGenerated {
		return r.fail(fmt.Errorf("%w: %d of %d images generated, need %d",
			types.ErrImageSynthesisFailure, got, len(result.Slides), c.cfg.Images.MinGenerated))
	}
	if !result.AllSucceeded {
		r.log.WithField("failed_ranks", result.FailedRanks).Warn("⚠️  Continuing with placeholders")
	}
	if err := r.advance(types.StateImagesReady); err != nil {
		return err
	}

	// Video
	r.log.Info("━━━ STAGE 5: Video ━━━")
	video, err := c.renderVideo(ctx, topic, script, result.Slides, ts)
	if err != nil {
		return r.fail(err)
	}
	r.report.Video = video
	if err := r.advance(types.StateVideoReady); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return r.fail(err)
	}
	if err := c.deps.History.Append(ctx, topic); err != nil {
		return r.fail(fmt.Errorf("append history: %w", err))
	}
	r.report.HistoryUpdated = true

	if _, err := c.deps.Artifacts.SaveVideo(ctx, ts, video.Path); err != nil {
		r.log.WithError(err).Warn("⚠️  Video not archived, local copy kept")
	}

	// Publish
	md := c.deps.Metadata.Run(topic, script)
	saveJSON(c.outputPath(c.cfg.Paths.Work, ts, "metadata.json"), md)
	if c.deps.Publisher == nil {
		r.log.Info("Upload disabled, stopping at video_ready")
		return nil
	}
	r.log.Info("━━━ STAGE 6: Publish ━━━")
	id, url, err := c.deps.Publisher.Publish(ctx, video.Path, md)
	if err != nil {
		if !errors.Is(err, types.ErrPublishFailure) {
			err = fmt.Errorf("%w: %w", types.ErrPublishFailure, err)
		}
		r.report.PublishErr = err
		r.report.PublishError = err.Error()
		r.report.State = types.StateFailed
		r.state = types.StateFailed
		return nil
	}
	r.report.VideoID = id
	r.report.VideoURL = url
	return r.advance(types.StatePublished)
}

// renderVideo lays out the timeline, narrates it and assembles the final mp4
func (c *Controller) renderVideo(ctx context.Context, topic types.Topic, script *types.Script, slides []types.SlideAsset, ts string) (*types.VideoArtifact, error) {
	tl, err := render.BuildTimeline(topic, script, c.cfg.Video)
	if err != nil {
		return nil, fmt.Errorf("%w: timeline: %w", types.ErrRenderFailure, err)
	}
	work := c.outputPath(c.cfg.Paths.Work, ts)

	narration, err := c.deps.Narrator.Narrate(ctx, tl.Segments, filepath.Join(work, "narration"))
	if err != nil {
		return nil, fmt.Errorf("%w: narration: %w", types.ErrRenderFailure, err)
	}

	music := ""
	if c.deps.Music != nil {
		music = c.deps.Music.Pick(topic)
	}

	return c.deps.Assembler.Assemble(ctx, render.Input{
		Topic:     topic,
		Timeline:  tl,
		Slides:    slides,
		Narration: narration,
		MusicPath: music,
		WorkDir:   work,
		OutPath:   c.outputPath(c.cfg.Paths.Videos, "videos_"+ts+".mp4"),
	})
}

func (c *Controller) outputPath(parts ...string) string {
	return filepath.Join(append([]string{c.cfg.Paths.Output}, parts...)...)
}

func (c *Controller) saveReport(report *types.RunReport, ts string) {
	saveJSON(c.outputPath(c.cfg.Paths.Work, ts, "run_report.json"), report)
}

func saveJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.WithError(err).Warnf("Could not marshal JSON for %s", path)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.WithError(err).Warnf("Could not create %s", filepath.Dir(path))
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.WithError(err).Warnf("Could not save %s", path)
	}
}
