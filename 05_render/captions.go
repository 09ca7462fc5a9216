package render

import (
	"fmt"
	"os"
	"strings"
	"time"

	audio "toppers-pipeline/04_audio"
	"toppers-pipeline/types"
)

// Cue is one caption line
type Cue struct {
	Start, End time.Duration
	Text       string
}

// BuildCues splits each segment's narration into chunks of at most
// wordsPerCue words and spreads them over the segment by word count.
func BuildCues(tl *types.Timeline, wordsPerCue int) []Cue {
	if wordsPerCue <= 0 {
		wordsPerCue = 4
	}
	var cues []Cue
	for _, seg := range tl.Segments {
		words := strings.Fields(audio.CleanText(seg.Narration))
		if len(words) == 0 {
			continue
		}
		per := seg.Duration / time.Duration(len(words))
		cursor := seg.Start
		for i := 0; i < len(words); i += wordsPerCue {
			chunk := words[i:min(i+wordsPerCue, len(words))]
			end := cursor + per*time.Duration(len(chunk))
			if i+wordsPerCue >= len(words) {
				end = seg.End()
			}
			cues = append(cues, Cue{Start: cursor, End: end, Text: strings.Join(chunk, " ")})
			cursor = end
		}
	}
	return cues
}

// FormatSRT renders cues in SubRip format
func FormatSRT(cues []Cue) string {
	var sb strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n", i+1, srtTime(c.Start), srtTime(c.End), c.Text)
	}
	return sb.String()
}

func srtTime(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

func (a *Assembler) writeSRT(tl *types.Timeline, path string) error {
	cues := BuildCues(tl, a.cfg.Render.CaptionWords)
	if len(cues) == 0 {
		return fmt.Errorf("no captions to write")
	}
	return os.WriteFile(path, []byte(FormatSRT(cues)), 0644)
}

// subtitleFilter burns the SRT with a bold white, outlined style
func (a *Assembler) subtitleFilter(srtFile string) string {
	r := a.cfg.Render
	return fmt.Sprintf(
		"subtitles=%s:force_style='FontName=%s,FontSize=%d,Bold=1,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000,Outline=2,Alignment=2,MarginV=%d'",
		escapeSubtitlePath(srtFile), r.CaptionFont, r.CaptionFontSize, r.CaptionMarginV,
	)
}

func escapeSubtitlePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "\\'")
	return path
}
