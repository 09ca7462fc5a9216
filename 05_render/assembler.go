// Package render assembles slides, narration, music and captions into the
// final fixed-length vertical video with ffmpeg.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	audio "toppers-pipeline/04_audio"
	"toppers-pipeline/config"
	"toppers-pipeline/types"
)

var log = logrus.WithField("stage", "render")

const (
	musicFadeIn  = time.Second
	musicFadeOut = 2 * time.Second
)

// Assembler builds the final video from prepared assets
type Assembler struct {
	cfg    *config.Config
	runner Runner
	prober audio.Prober
}

// New creates an Assembler that shells out through runner and measures
// audio with prober
func New(cfg *config.Config, runner Runner, prober audio.Prober) *Assembler {
	return &Assembler{cfg: cfg, runner: runner, prober: prober}
}

// Input is everything the assembler needs for one video
type Input struct {
	Topic     types.Topic
	Timeline  *types.Timeline
	Slides    []types.SlideAsset
	Narration []types.Utterance // one per timeline segment
	MusicPath string            // optional
	WorkDir   string
	OutPath   string
}

// Assemble renders the video and checks its duration. Every failure wraps
// ErrRenderFailure. in.Timeline is left untouched.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*types.VideoArtifact, error) {
	art, err := a.assemble(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRenderFailure, err)
	}
	return art, nil
}

func (a *Assembler) assemble(ctx context.Context, in Input) (*types.VideoArtifact, error) {
	if in.Timeline == nil {
		return nil, fmt.Errorf("no timeline")
	}
	tl := &types.Timeline{Total: in.Timeline.Total, Segments: slices.Clone(in.Timeline.Segments)}
	if len(in.Narration) != len(tl.Segments) {
		return nil, fmt.Errorf("%d narration clips for %d segments", len(in.Narration), len(tl.Segments))
	}
	dirs := map[string]string{
		"frames": filepath.Join(in.WorkDir, "frames"),
		"clips":  filepath.Join(in.WorkDir, "clips"),
		"audio":  filepath.Join(in.WorkDir, "audio"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(in.OutPath), 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	log.Info("Composing slide frames...")
	if err := a.composeFrames(tl, in.Topic, in.Slides, dirs["frames"]); err != nil {
		return nil, fmt.Errorf("compose frames: %w", err)
	}

	log.Infof("Rendering %d Ken Burns clips...", len(tl.Segments))
	frames := frameCounts(tl, a.cfg.Video.FPS)
	clips := make([]string, len(tl.Segments))
	for i, seg := range tl.Segments {
		clips[i] = filepath.Join(dirs["clips"], fmt.Sprintf("clip_%02d.mp4", i))
		if err := a.kenBurns(ctx, seg.VisualRef, frames[i], clips[i]); err != nil {
			return nil, fmt.Errorf("clip %d: %w", i, err)
		}
	}
	silent := filepath.Join(in.WorkDir, "visuals.mp4")
	if err := a.concat(ctx, clips, filepath.Join(in.WorkDir, "clips.txt"), silent); err != nil {
		return nil, fmt.Errorf("concat clips: %w", err)
	}

	log.Info("Fitting narration to the timeline...")
	fitted := make([]string, len(tl.Segments))
	for i, seg := range tl.Segments {
		fitted[i] = filepath.Join(dirs["audio"], fmt.Sprintf("fit_%02d.wav", i))
		if err := a.fitUtterance(ctx, in.Narration[i], seg, fitted[i]); err != nil {
			return nil, fmt.Errorf("fit narration %d: %w", i, err)
		}
		tl.Segments[i].AudioRef = fitted[i]
	}
	narration := filepath.Join(in.WorkDir, "narration.wav")
	if err := a.concat(ctx, fitted, filepath.Join(in.WorkDir, "audio.txt"), narration); err != nil {
		return nil, fmt.Errorf("concat narration: %w", err)
	}

	soundtrack := narration
	if in.MusicPath != "" {
		mixed := filepath.Join(in.WorkDir, "mixed.wav")
		if err := a.mixMusic(ctx, narration, in.MusicPath, tl.Total, mixed); err != nil {
			log.WithError(err).Warn("Music mix failed, using narration only")
		} else {
			soundtrack = mixed
		}
	}

	srt := ""
	if a.cfg.Render.Captions {
		srt = filepath.Join(in.WorkDir, "captions.srt")
		if err := a.writeSRT(tl, srt); err != nil {
			log.WithError(err).Warn("Captions skipped")
			srt = ""
		}
	}

	log.Info("Muxing final video...")
	if err := a.mux(ctx, silent, soundtrack, srt, tl, in.OutPath); err != nil {
		return nil, fmt.Errorf("mux: %w", err)
	}

	got, err := a.prober.Duration(ctx, in.OutPath)
	if err != nil {
		return nil, fmt.Errorf("probe output: %w", err)
	}
	if diff := got - tl.Total; diff > a.cfg.Video.Tolerance() || -diff > a.cfg.Video.Tolerance() {
		return nil, fmt.Errorf("output is %s, want %s ± %s", got, tl.Total, a.cfg.Video.Tolerance())
	}

	log.Infof("✅ Final video ready: %s (%s)", in.OutPath, got)
	return &types.VideoArtifact{
		Path:     in.OutPath,
		Width:    a.cfg.Video.Width,
		Height:   a.cfg.Video.Height,
		FPS:      a.cfg.Video.FPS,
		Duration: got,
	}, nil
}

// mixMusic loops the track under the narration at the configured gain,
// fading it in at the start and out before the end
func (a *Assembler) mixMusic(ctx context.Context, narration, music string, total time.Duration, out string) error {
	fadeOut := max(total-musicFadeOut, 0)
	filter := fmt.Sprintf(
		"[1:a]volume=%.2f,afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s[m];[0:a][m]amix=inputs=2:duration=first:normalize=0[aout]",
		a.cfg.Render.MusicGain, seconds(musicFadeIn), seconds(fadeOut), seconds(musicFadeOut),
	)
	return a.runner.Run(ctx, "ffmpeg", "-y",
		"-i", narration,
		"-stream_loop", "-1",
		"-i", music,
		"-filter_complex", filter,
		"-map", "[aout]",
		"-c:a", "pcm_s16le",
		out,
	)
}

func (a *Assembler) mux(ctx context.Context, video, soundtrack, srt string, tl *types.Timeline, out string) error {
	v := a.cfg.Video
	args := []string{"-y", "-i", video, "-i", soundtrack, "-map", "0:v:0", "-map", "1:a:0"}
	if srt != "" {
		args = append(args,
			"-vf", a.subtitleFilter(srt),
			"-c:v", "libx264",
			"-preset", v.Preset,
			"-crf", strconv.Itoa(v.CRF),
			"-pix_fmt", "yuv420p",
		)
	} else {
		args = append(args, "-c:v", "copy")
	}
	args = append(args,
		"-c:a", "aac",
		"-b:a", v.AudioBitrate,
		"-t", seconds(tl.Total),
		"-movflags", "+faststart",
		out,
	)
	return a.runner.Run(ctx, "ffmpeg", args...)
}
