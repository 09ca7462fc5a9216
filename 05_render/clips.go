package render

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"toppers-pipeline/types"
)

// frameCounts converts segment boundaries to frame boundaries so the clip
// lengths add up to the total frame count exactly.
func frameCounts(tl *types.Timeline, fps int) []int {
	out := make([]int, len(tl.Segments))
	for i, seg := range tl.Segments {
		start := int(math.Round(seg.Start.Seconds() * float64(fps)))
		end := int(math.Round(seg.End().Seconds() * float64(fps)))
		out[i] = max(end-start, 1)
	}
	return out
}

// kenBurns renders a slow centred zoom over one still
func (a *Assembler) kenBurns(ctx context.Context, frame string, frames int, out string) error {
	v := a.cfg.Video
	step := (v.KenBurnsZoom - 1.0) / float64(frames)
	filter := fmt.Sprintf(
		"scale=%d:%d,zoompan=z='min(zoom+%.6f,%.3f)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d,setsar=1",
		v.Width*2, v.Height*2, step, v.KenBurnsZoom, frames, v.Width, v.Height, v.FPS,
	)
	return a.runner.Run(ctx, "ffmpeg", "-y",
		"-i", frame,
		"-vf", filter,
		"-frames:v", strconv.Itoa(frames),
		"-c:v", "libx264",
		"-preset", v.Preset,
		"-crf", strconv.Itoa(v.CRF),
		"-pix_fmt", "yuv420p",
		"-an",
		out,
	)
}

// TempoChain returns the atempo filters that speed audio up by factor.
// atempo accepts at most 2.0 per stage, so larger factors are chained.
func TempoChain(factor float64) []string {
	var stages []string
	for factor > 2.0 {
		stages = append(stages, "atempo=2.0")
		factor /= 2.0
	}
	if factor > 1.0001 {
		stages = append(stages, fmt.Sprintf("atempo=%.4f", factor))
	}
	return stages
}

// fitUtterance stretches or pads one narration clip to exactly its segment.
// Speech is sped up when too long and padded with silence when short, never cut.
func (a *Assembler) fitUtterance(ctx context.Context, utt types.Utterance, seg types.Segment, out string) error {
	var filters []string
	if utt.Duration > seg.Duration {
		factor := float64(utt.Duration) / float64(seg.Duration)
		if factor > a.cfg.Video.MaxNarrationTempo {
			log.WithField("rank", seg.Rank).Warnf("Narration needs %.2fx speed-up to fit %s", factor, seg.Duration)
		}
		filters = append(filters, TempoChain(factor)...)
	}
	filters = append(filters, "apad")

	return a.runner.Run(ctx, "ffmpeg", "-y",
		"-i", utt.Path,
		"-af", strings.Join(filters, ","),
		"-t", seconds(seg.Duration),
		"-ar", "44100",
		"-ac", "2",
		"-c:a", "pcm_s16le",
		out,
	)
}

// concat joins media files with the concat demuxer without re-encoding
func (a *Assembler) concat(ctx context.Context, files []string, listFile, out string) error {
	var lines []string
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf("file '%s'", strings.ReplaceAll(abs, "'", `'\''`)))
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return a.runner.Run(ctx, "ffmpeg", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		out,
	)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
